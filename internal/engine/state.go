// Package engine implements the core of loom: the state stores, the
// argument interpolator, the result-commit virtual machine, the exception
// unwinder and the dispatcher that drives per-thread state machines.
package engine

import (
	"github.com/ternarybob/loom/internal/common"
	"github.com/ternarybob/loom/internal/models"
)

// State owns all mutable engine data: the program table (read-only after
// load), the context store and the thread table. It is exclusively owned by
// the dispatcher and accessed without locks.
type State struct {
	commands map[models.CommandID]models.Cmd
	contexts map[models.ContextID]*models.Ctx
	threads  map[models.ThreadID]*models.Thread
}

// NewState creates empty stores.
func NewState() *State {
	return &State{
		commands: make(map[models.CommandID]models.Cmd),
		contexts: make(map[models.ContextID]*models.Ctx),
		threads:  make(map[models.ThreadID]*models.Thread),
	}
}

// MintID returns a fresh random identifier.
func (s *State) MintID() string {
	return common.NewID()
}

// InsertCommands loads commands into the program table.
func (s *State) InsertCommands(cmds []models.Cmd) {
	for _, c := range cmds {
		s.commands[c.ID] = c
	}
}

// Command fetches a command by id.
func (s *State) Command(id models.CommandID) (models.Cmd, bool) {
	c, ok := s.commands[id]
	return c, ok
}

// InsertContext stores a context, replacing any previous one with the id.
func (s *State) InsertContext(ctx *models.Ctx) {
	s.contexts[ctx.ID] = ctx
}

// Context fetches a context by id.
func (s *State) Context(id models.ContextID) (*models.Ctx, bool) {
	c, ok := s.contexts[id]
	return c, ok
}

// RemoveContext destroys a context; reports whether it existed.
func (s *State) RemoveContext(id models.ContextID) bool {
	if _, ok := s.contexts[id]; !ok {
		return false
	}
	delete(s.contexts, id)
	return true
}

// InsertThread stores a thread.
func (s *State) InsertThread(t *models.Thread) {
	s.threads[t.ID] = t
}

// Thread fetches a thread by id.
func (s *State) Thread(id models.ThreadID) (*models.Thread, bool) {
	t, ok := s.threads[id]
	return t, ok
}

// RemoveThread destroys a thread; reports whether it existed.
func (s *State) RemoveThread(id models.ThreadID) bool {
	if _, ok := s.threads[id]; !ok {
		return false
	}
	delete(s.threads, id)
	return true
}

// NumCommands reports the program table size.
func (s *State) NumCommands() int { return len(s.commands) }

// NumContexts reports the number of live contexts.
func (s *State) NumContexts() int { return len(s.contexts) }

// NumThreads reports the number of live threads.
func (s *State) NumThreads() int { return len(s.threads) }

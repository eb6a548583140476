// Package schedule spawns program entry threads on cron schedules declared
// in config.
package schedule

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/common"
	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/program"
)

// Service owns the cron runner. Each configured program is loaded into the
// dispatcher's program table at registration; every tick submits a fresh
// entry thread.
type Service struct {
	dispatcher *engine.Dispatcher
	cron       *cron.Cron
	logger     arbor.ILogger
}

// NewService builds the service; Register must be called before Start.
func NewService(dispatcher *engine.Dispatcher, logger arbor.ILogger) *Service {
	return &Service{
		dispatcher: dispatcher,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Register loads each configured program and schedules its entry thread.
// defaultEntry is used when a program declares no entry label. Labels share
// one program table; keeping scheduled programs disjoint is the embedder's
// concern.
func (s *Service) Register(programs []common.ProgramConfig, defaultEntry string) error {
	for _, pc := range programs {
		src, err := os.ReadFile(pc.File)
		if err != nil {
			return fmt.Errorf("read program %s: %w", pc.File, err)
		}
		cmds, loadErr := program.Load(string(src))
		if loadErr != nil {
			return fmt.Errorf("load program %s: %w", pc.File, loadErr)
		}
		s.dispatcher.LoadProgram(cmds)

		entry := pc.Entry
		if entry == "" {
			entry = defaultEntry
		}

		file := pc.File
		if _, err := s.cron.AddFunc(pc.Schedule, func() {
			s.logger.Info().Str("file", file).Str("entry", entry).Msg("Scheduled program tick")
			s.dispatcher.Submit(engine.JobAddRequest{IP: entry})
		}); err != nil {
			return fmt.Errorf("schedule %q for %s: %w", pc.Schedule, pc.File, err)
		}

		s.logger.Info().Str("file", file).Str("schedule", pc.Schedule).Msg("Program scheduled")
	}
	return nil
}

// Start begins firing schedules.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts the cron runner; in-flight submissions drain through the
// dispatcher channel.
func (s *Service) Stop() {
	s.cron.Stop()
}

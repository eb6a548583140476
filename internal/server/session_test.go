package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/models"
	"github.com/ternarybob/loom/internal/program"
	"github.com/ternarybob/loom/internal/worker"
)

func pollThreadState(t *testing.T, d *engine.Dispatcher, tid models.ThreadID, match func(models.ThreadState) bool) models.ThreadState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		reply := make(chan models.ThreadState, 1)
		d.Submit(engine.ThreadStateRequest{Thread: tid, Reply: reply})
		state := <-reply
		if state != nil && match(state) {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("thread never reached the expected state")
	return nil
}

func pollStatus(t *testing.T, d *engine.Dispatcher, match func(engine.Status) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		reply := make(chan engine.Status, 1)
		d.Submit(engine.StatusRequest{Reply: reply})
		if match(<-reply) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("status never matched")
}

func TestSessionEndToEnd(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)

	cmds, loadErr := program.Load("ep: push 01\n01: set $ag '1' 02\n02: log $ag 03\n")
	require.Nil(t, loadErr)
	d.LoadProgram(cmds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Loop(ctx)

	serverConn, clientConn := net.Pipe()
	session := NewSession(serverConn, d, logger)
	go session.Run()

	client := worker.NewClient(clientConn, worker.NewBuiltin(logger), logger)
	go func() { _ = client.Run() }()

	// The worker registers once its Header frame arrives.
	pollStatus(t, d, func(s engine.Status) bool { return s.Workers == 1 })

	reply := make(chan models.ThreadID, 1)
	d.Submit(engine.JobAddRequest{IP: "ep", Reply: reply})
	tid := <-reply

	// push and set execute over the wire; the thread parks on the unserved
	// "log" opcode with its argument resolved.
	state := pollThreadState(t, d, tid, func(s models.ThreadState) bool {
		queued, ok := s.(models.StateQueued)
		return ok && queued.Cmd.Opcode == "log"
	})

	queued := state.(models.StateQueued)
	assert.Equal(t, models.CommandID("02"), queued.Cmd.ID)
	require.Len(t, queued.Cmd.Args, 2)
	val, ok := queued.Cmd.Args[0].Value()
	require.True(t, ok)
	assert.Equal(t, "1", val)

	// Disconnect: the session deregisters the worker.
	require.NoError(t, client.Close())
	pollStatus(t, d, func(s engine.Status) bool { return s.Workers == 0 })
}

func TestSessionRejectsNonHeaderFirstFrame(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Loop(ctx)

	serverConn, clientConn := net.Pipe()
	session := NewSession(serverConn, d, logger)

	done := make(chan struct{})
	go func() {
		session.Run()
		close(done)
	}()

	// A Result before the Header is a protocol violation: the session closes
	// without registering a worker.
	go func() {
		frame := models.ResultFrame{Seq: 0, Result: models.OkResult()}
		payload, _ := frame.MarshalJSON()
		var prefix [2]byte
		prefix[0] = byte(len(payload))
		prefix[1] = byte(len(payload) >> 8)
		_, _ = clientConn.Write(prefix[:])
		_, _ = clientConn.Write(payload)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close on protocol violation")
	}

	reply := make(chan engine.Status, 1)
	d.Submit(engine.StatusRequest{Reply: reply})
	assert.Equal(t, 0, (<-reply).Workers)
}

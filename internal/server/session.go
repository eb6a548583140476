// Package server hosts the network surfaces of the engine: the TCP worker
// port speaking length-prefixed JSON frames, and the optional admin HTTP
// endpoint with a WebSocket event feed.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/models"
	"github.com/ternarybob/loom/internal/wire"
)

// Session is one worker connection. Lifecycle: accept → Header → register →
// Request/Result per seq → disconnect → worker removal (which re-queues
// in-flight jobs). Any framing or protocol error closes the connection.
type Session struct {
	conn       net.Conn
	dispatcher *engine.Dispatcher
	logger     arbor.ILogger

	// outbound serialises dispatcher-side deliveries onto the connection in
	// order; the writer goroutine is the only writer.
	outbound chan models.RequestFrame

	mu      sync.Mutex
	worker  models.WorkerID
	nextSeq uint32
	// inflight maps a request seq to the job it carries.
	inflight map[uint32]jobRef

	closeOnce sync.Once
}

type jobRef struct {
	thread models.ThreadID
	step   models.StepID
	queue  string
}

// NewSession wraps an accepted connection.
func NewSession(conn net.Conn, dispatcher *engine.Dispatcher, logger arbor.ILogger) *Session {
	return &Session{
		conn:       conn,
		dispatcher: dispatcher,
		logger:     logger,
		outbound:   make(chan models.RequestFrame, 64),
		inflight:   make(map[uint32]jobRef),
	}
}

// WorkerCreated implements interfaces.WorkerStream. The id is not echoed to
// the remote worker; it keys this session in the dispatcher.
func (s *Session) WorkerCreated(id models.WorkerID) error {
	s.mu.Lock()
	s.worker = id
	s.mu.Unlock()
	s.logger.Debug().Str("worker", id).Str("remote", s.conn.RemoteAddr().String()).Msg("Worker id assigned")
	return nil
}

// JobAssigned implements interfaces.WorkerStream: frame the command and hand
// it to the writer goroutine.
func (s *Session) JobAssigned(thread models.ThreadID, step models.StepID, queue string, cmd models.XCmd) error {
	s.mu.Lock()
	seq := s.nextSeq
	s.nextSeq++
	s.inflight[seq] = jobRef{thread: thread, step: step, queue: queue}
	s.mu.Unlock()

	select {
	case s.outbound <- models.RequestFrame{Seq: seq, Cmd: cmd}:
		return nil
	default:
		return fmt.Errorf("worker session outbound queue full")
	}
}

// Run services the connection until it errors or closes. It registers the
// worker after the Header frame and guarantees deregistration on the way
// out.
func (s *Session) Run() {
	defer s.close()

	payload, err := wire.ReadFrame(s.conn)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", s.conn.RemoteAddr().String()).Msg("Worker disconnected before header")
		return
	}
	frame, err := models.UnmarshalClientFrame(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Bad first frame from worker")
		return
	}
	header, ok := frame.(models.HeaderFrame)
	if !ok {
		s.logger.Warn().Str("remote", s.conn.RemoteAddr().String()).Msg("First frame is not a header")
		return
	}

	done := make(chan struct{})
	go s.writeLoop(done)
	defer close(done)

	s.dispatcher.Submit(engine.WorkerAddRequest{Info: header.Info, Stream: s})
	defer func() {
		s.mu.Lock()
		worker := s.worker
		s.mu.Unlock()
		if worker != "" {
			s.dispatcher.Submit(engine.WorkerRemoveRequest{Worker: worker})
		}
	}()

	for {
		payload, err := wire.ReadFrame(s.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Msg("Worker read failed")
			}
			return
		}
		frame, err := models.UnmarshalClientFrame(payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Bad frame from worker; closing")
			return
		}

		switch f := frame.(type) {
		case models.ResultFrame:
			if err := s.finish(f); err != nil {
				s.logger.Warn().Err(err).Msg("Protocol error; closing")
				return
			}
		case models.HeaderFrame:
			s.logger.Warn().Msg("Duplicate header from worker; closing")
			return
		}
	}
}

func (s *Session) finish(f models.ResultFrame) error {
	s.mu.Lock()
	ref, ok := s.inflight[f.Seq]
	if ok {
		delete(s.inflight, f.Seq)
	}
	worker := s.worker
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("result for unknown seq %d", f.Seq)
	}

	s.dispatcher.Submit(engine.FinishedRequest{
		Worker: worker,
		Thread: ref.thread,
		Step:   ref.step,
		Queue:  ref.queue,
		Result: f.Result,
	})
	return nil
}

func (s *Session) writeLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-s.outbound:
			if err := wire.WriteJSON(s.conn, frame); err != nil {
				s.logger.Warn().Err(err).Msg("Worker write failed")
				s.close()
				return
			}
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

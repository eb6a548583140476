package engine

import (
	"context"

	"github.com/ternarybob/loom/internal/interfaces"
	"github.com/ternarybob/loom/internal/models"
)

// Request is one message into the dispatcher actor. The Loop goroutine is
// the only caller of the synchronous dispatcher methods; everything else
// talks to it through Submit.
type Request interface {
	isRequest()
}

// JobAddRequest mints and starts a thread. The new thread id is sent on
// Reply if it is non-nil.
type JobAddRequest struct {
	IP    models.CommandID
	Ctx   models.ContextID
	Reply chan<- models.ThreadID
}

// WorkerAddRequest registers a worker stream. The minted id is reported via
// the stream's WorkerCreated and on Reply if non-nil.
type WorkerAddRequest struct {
	Info   models.WorkerInfo
	Stream interfaces.WorkerStream
	Reply  chan<- models.WorkerID
}

// WorkerRemoveRequest deregisters a worker, re-queueing its in-flight jobs.
type WorkerRemoveRequest struct {
	Worker models.WorkerID
}

// FinishedRequest delivers a worker result for (Thread, Step) on Queue.
type FinishedRequest struct {
	Worker models.WorkerID
	Thread models.ThreadID
	Step   models.StepID
	Queue  string
	Result models.WorkerResult
}

// StatusRequest asks for a snapshot of engine counters.
type StatusRequest struct {
	Reply chan<- Status
}

// ThreadStateRequest asks for one thread's current state; nil is sent when
// the thread does not exist.
type ThreadStateRequest struct {
	Thread models.ThreadID
	Reply  chan<- models.ThreadState
}

func (JobAddRequest) isRequest()       {}
func (WorkerAddRequest) isRequest()    {}
func (WorkerRemoveRequest) isRequest() {}
func (FinishedRequest) isRequest()     {}
func (StatusRequest) isRequest()       {}
func (ThreadStateRequest) isRequest()  {}

// Status is a point-in-time snapshot of engine counters.
type Status struct {
	Commands    int `json:"commands"`
	Contexts    int `json:"contexts"`
	Threads     int `json:"threads"`
	Workers     int `json:"workers"`
	PendingJobs int `json:"pending_jobs"`
}

// Submit enqueues a request for the Loop goroutine.
func (d *Dispatcher) Submit(req Request) {
	d.requests <- req
}

// Loop runs the dispatcher actor until ctx is cancelled. All engine state is
// touched only from this goroutine; the handlers never block on I/O (worker
// streams buffer their deliveries).
func (d *Dispatcher) Loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			d.handle(req)
		}
	}
}

func (d *Dispatcher) handle(req Request) {
	switch r := req.(type) {
	case JobAddRequest:
		id := d.JobAdd(r.IP, r.Ctx)
		if r.Reply != nil {
			r.Reply <- id
		}
	case WorkerAddRequest:
		id := d.WorkerAdd(r.Info, r.Stream)
		if r.Reply != nil {
			r.Reply <- id
		}
	case WorkerRemoveRequest:
		d.WorkerRemove(r.Worker)
	case FinishedRequest:
		d.Finished(r.Worker, r.Thread, r.Step, r.Queue, r.Result)
	case StatusRequest:
		r.Reply <- d.Status()
	case ThreadStateRequest:
		if thread, ok := d.state.Thread(r.Thread); ok {
			r.Reply <- thread.State
		} else {
			r.Reply <- nil
		}
	}
}

// Status snapshots engine counters.
func (d *Dispatcher) Status() Status {
	return Status{
		Commands:    d.state.NumCommands(),
		Contexts:    d.state.NumContexts(),
		Threads:     d.state.NumThreads(),
		Workers:     len(d.workers),
		PendingJobs: d.queue.PendingTotal(),
	}
}

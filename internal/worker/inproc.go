package worker

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/models"
)

type inprocJob struct {
	thread models.ThreadID
	step   models.StepID
	queue  string
	cmd    models.XCmd
}

// InProc is a worker living inside the dispatcher process. It implements
// interfaces.WorkerStream; assignments are buffered and executed either by
// Pump (single-threaded tests) or by the Run goroutine (production).
type InProc struct {
	exec       Executor
	dispatcher *engine.Dispatcher
	logger     arbor.ILogger

	mu   sync.Mutex
	id   models.WorkerID
	jobs []inprocJob
	wake chan struct{}
}

// NewInProc builds an in-process worker around an executor.
func NewInProc(exec Executor, dispatcher *engine.Dispatcher, logger arbor.ILogger) *InProc {
	return &InProc{
		exec:       exec,
		dispatcher: dispatcher,
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// Attach registers the worker synchronously with the dispatcher. Only valid
// from the goroutine that owns the dispatcher (tests); production code uses
// AttachAsync.
func (w *InProc) Attach() models.WorkerID {
	return w.dispatcher.WorkerAdd(Info(w.exec), w)
}

// AttachAsync registers the worker through the dispatcher's request channel.
func (w *InProc) AttachAsync() {
	w.dispatcher.Submit(engine.WorkerAddRequest{Info: Info(w.exec), Stream: w})
}

// WorkerCreated implements interfaces.WorkerStream.
func (w *InProc) WorkerCreated(id models.WorkerID) error {
	w.mu.Lock()
	w.id = id
	w.mu.Unlock()
	return nil
}

// JobAssigned implements interfaces.WorkerStream: buffer the job and signal
// the Run loop if one is active.
func (w *InProc) JobAssigned(thread models.ThreadID, step models.StepID, queue string, cmd models.XCmd) error {
	w.mu.Lock()
	w.jobs = append(w.jobs, inprocJob{thread: thread, step: step, queue: queue, cmd: cmd})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// ID reports the id the dispatcher minted; empty before registration.
func (w *InProc) ID() models.WorkerID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// Pump executes every buffered job and feeds results straight back through
// the dispatcher's synchronous entry point. Returns how many jobs ran. Only
// valid from the goroutine that owns the dispatcher.
func (w *InProc) Pump() int {
	count := 0
	for {
		job, ok := w.pop()
		if !ok {
			return count
		}
		result := w.exec.Exec(job.cmd)
		w.dispatcher.Finished(w.ID(), job.thread, job.step, job.queue, result)
		count++
	}
}

// Run executes buffered jobs until ctx is cancelled, feeding results through
// the dispatcher's request channel.
func (w *InProc) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			job, ok := w.pop()
			if !ok {
				break
			}
			result := w.exec.Exec(job.cmd)
			w.dispatcher.Submit(engine.FinishedRequest{
				Worker: w.ID(),
				Thread: job.thread,
				Step:   job.step,
				Queue:  job.queue,
				Result: result,
			})
		}
	}
}

func (w *InProc) pop() (inprocJob, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.jobs) == 0 {
		return inprocJob{}, false
	}
	job := w.jobs[0]
	w.jobs = w.jobs[1:]
	return job, true
}

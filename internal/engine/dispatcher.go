package engine

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/interfaces"
	"github.com/ternarybob/loom/internal/models"
	"github.com/ternarybob/loom/internal/scheduler"
)

// Dispatcher owns the engine state and advances thread state machines. All
// methods are synchronous and must only be called from one goroutine — in
// production that is the Loop goroutine fed through Submit; tests may call
// the methods directly.
type Dispatcher struct {
	state   *State
	queue   *scheduler.MultiQueue
	workers map[models.WorkerID]*workerHandle

	// pending holds Started assignments produced by the scheduler that have
	// not yet been shipped to their worker streams.
	pending []scheduler.Assignment

	events   interfaces.EventService
	logger   arbor.ILogger
	requests chan Request
}

type workerHandle struct {
	key    models.WorkerID
	info   models.WorkerInfo
	stream interfaces.WorkerStream
}

// NewDispatcher creates a dispatcher with empty state. events may be nil.
func NewDispatcher(events interfaces.EventService, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		state:    NewState(),
		queue:    scheduler.NewMultiQueue(),
		workers:  make(map[models.WorkerID]*workerHandle),
		events:   events,
		logger:   logger,
		requests: make(chan Request, 64),
	}
}

// State exposes the stores for loading and for single-threaded tests.
func (d *Dispatcher) State() *State { return d.state }

// LoadProgram installs commands into the program table.
func (d *Dispatcher) LoadProgram(cmds []models.Cmd) {
	d.state.InsertCommands(cmds)
	d.logger.Info().Int("commands", len(cmds)).Msg("Program loaded")
}

// JobAdd mints a thread starting at ip with an optional context and drives
// it to quiescence.
func (d *Dispatcher) JobAdd(ip models.CommandID, ctx models.ContextID) models.ThreadID {
	id := d.state.MintID()
	d.state.InsertThread(models.NewThread(id, ip, ctx))

	d.logger.Debug().Str("thread", id).Str("ip", ip).Msg("Thread created")
	d.publish(interfaces.EventThreadStarted, map[string]interface{}{"thread": id, "ip": ip})

	d.drive(id)
	d.dispatchAssignments()
	return id
}

// WorkerAdd registers a worker stream, mints its id, reports the id back on
// the stream and drains any pending work it can take.
func (d *Dispatcher) WorkerAdd(info models.WorkerInfo, stream interfaces.WorkerStream) models.WorkerID {
	id := d.state.MintID()
	d.workers[id] = &workerHandle{key: id, info: info, stream: stream}

	d.pending = append(d.pending, d.queue.WorkerAdd(id, info.Capacity, info.Queues)...)

	if err := stream.WorkerCreated(id); err != nil {
		d.logger.Warn().Err(err).Str("worker", id).Msg("Failed to deliver worker id")
	}

	d.logger.Info().Str("worker", id).Strs("queues", info.Queues).Msg("Worker registered")
	d.publish(interfaces.EventWorkerRegistered, map[string]interface{}{
		"worker": id,
		"queues": info.Queues,
	})

	d.dispatchAssignments()
	return id
}

// WorkerRemove deregisters a worker. Jobs it held are re-queued at the tail
// of their queues and the owning threads return to Queued so a surviving or
// future worker can pick them up.
func (d *Dispatcher) WorkerRemove(key models.WorkerID) {
	if _, ok := d.workers[key]; !ok {
		return
	}
	delete(d.workers, key)

	cancelled := d.queue.WorkerRemove(key)
	for _, ass := range cancelled {
		thread, ok := d.state.Thread(ass.Job.Thread)
		if !ok || thread.Step != ass.Job.Step {
			continue
		}
		if assigned, ok := thread.State.(models.StateAssigned); ok {
			thread.State = models.StateQueued{Cmd: assigned.Cmd}
		}
	}

	d.logger.Info().Str("worker", key).Int("cancelled", len(cancelled)).Msg("Worker removed")
	d.publish(interfaces.EventWorkerRemoved, map[string]interface{}{
		"worker":    key,
		"cancelled": len(cancelled),
	})

	d.dispatchAssignments()
}

// Finished commits a worker result for (thread, step). Results carrying a
// stale step, an unknown thread or a thread that is not awaiting work are
// rejected with a warning.
func (d *Dispatcher) Finished(worker models.WorkerID, threadID models.ThreadID, step models.StepID, queue string, result models.WorkerResult) {
	thread, ok := d.state.Thread(threadID)
	if !ok {
		d.logger.Warn().Str("thread", threadID).Str("worker", worker).Msg("Result for unknown thread discarded")
		return
	}
	if thread.Step != step {
		d.logger.Warn().
			Str("thread", threadID).
			Str("reason", models.ReasonPostStepped{Current: thread.Step, Selected: step}.String()).
			Msg("Stale result discarded")
		return
	}
	switch thread.State.(type) {
	case models.StateQueued, models.StateAssigned:
	default:
		d.logger.Warn().Str("thread", threadID).Msg("Result for thread not awaiting work discarded")
		return
	}

	thread.State = models.StateDone{Result: result}
	d.pending = append(d.pending, started(d.queue.JobFinish(queue, scheduler.JobKey{Thread: threadID, Step: step}))...)

	d.drive(threadID)
	d.dispatchAssignments()
}

// drive advances one thread until it reaches a quiescent state. Transitions
// are pure computations over state and stores; no I/O happens here.
func (d *Dispatcher) drive(id models.ThreadID) {
	thread, ok := d.state.Thread(id)
	if !ok {
		return
	}

	for {
		// A commit may have removed the thread (ThreadRemove on itself);
		// stop instead of resurrecting it.
		if current, ok := d.state.Thread(id); !ok || current != thread {
			return
		}

		var next models.ThreadState

		switch s := thread.State.(type) {
		case models.StateCreated:
			next = models.StateFetching{IP: thread.IP}

		case models.StateFetching:
			if cmd, ok := d.state.Command(s.IP); ok {
				next = models.StateFetched{Cmd: cmd}
			} else {
				next = models.StateErr{Err: models.FetchError{IP: s.IP}}
			}

		case models.StateFetched:
			next = models.StateInterpolating{Cmd: s.Cmd}

		case models.StateInterpolating:
			// A dangling context id is only an error if the command actually
			// references the current context.
			var curr *models.Ctx
			if thread.Ctx != "" {
				if c, ok := d.state.Context(thread.Ctx); ok {
					curr = c
				}
			}
			if x, ierr := Interpolate(d.state, s.Cmd, curr); ierr != nil {
				next = models.StateErr{Err: models.InterpolateError{Err: ierr}}
			} else {
				next = models.StateInterpolated{Cmd: x}
			}

		case models.StateInterpolated:
			thread.Step++
			job := scheduler.JobKey{Thread: thread.ID, Step: thread.Step}
			d.pending = append(d.pending, d.queue.JobCreate(s.Cmd.Opcode, job)...)
			next = models.StateQueued{Cmd: s.Cmd}

		case models.StateDone:
			if s.Result.Err != nil {
				next = models.StateErr{Err: models.WorkerDuringError{Err: s.Result.Err}}
			} else if opErr := Commit(thread, d.state, s.Result.Ops); opErr != nil {
				next = models.StateErr{Err: models.WorkerPostError{Err: *opErr}}
			} else {
				next = models.StateFetching{IP: thread.IP}
			}

		case models.StateErr:
			if thread.EIP != "" {
				next = models.StateDone{Result: models.OkResult(UnwindOps(s.Err, thread.EIP)...)}
			} else {
				d.logger.Warn().Str("thread", thread.ID).Str("error", s.Err.String()).Msg("Thread exited with error")
				d.publish(interfaces.EventThreadExited, map[string]interface{}{
					"thread": thread.ID,
					"error":  s.Err.String(),
				})
				next = models.StateExited{Err: s.Err}
			}

		case models.StateQueued, models.StateAssigned, models.StatePaused, models.StateExited:
			return

		default:
			return
		}

		thread.State = next
	}
}

// dispatchAssignments ships every pending Started assignment to its worker
// stream together with the queued XCmd snapshot, moving the thread to
// Assigned. Called after every entry point.
func (d *Dispatcher) dispatchAssignments() {
	for len(d.pending) > 0 {
		ass := d.pending[0]
		d.pending = d.pending[1:]

		if ass.Action != scheduler.Started {
			continue
		}

		handle, ok := d.workers[ass.Worker]
		if !ok {
			d.logger.Warn().Str("worker", ass.Worker).Msg("Assignment for unknown worker dropped")
			continue
		}
		thread, ok := d.state.Thread(ass.Job.Thread)
		if !ok || thread.Step != ass.Job.Step {
			d.logger.Warn().Str("thread", ass.Job.Thread).Msg("Assignment for stale job dropped")
			continue
		}
		queued, ok := thread.State.(models.StateQueued)
		if !ok {
			d.logger.Warn().Str("thread", ass.Job.Thread).Msg("Assignment for thread not queued dropped")
			continue
		}

		thread.State = models.StateAssigned{Cmd: queued.Cmd, Worker: ass.Worker}

		if err := handle.stream.JobAssigned(ass.Job.Thread, ass.Job.Step, ass.Queue, queued.Cmd); err != nil {
			d.logger.Warn().Err(err).Str("worker", ass.Worker).Msg("Failed to deliver assignment")
			continue
		}

		d.publish(interfaces.EventJobAssigned, map[string]interface{}{
			"worker": ass.Worker,
			"thread": ass.Job.Thread,
			"queue":  ass.Queue,
			"opcode": queued.Cmd.Opcode,
		})
	}
}

func (d *Dispatcher) publish(eventType string, payload map[string]interface{}) {
	if d.events != nil {
		d.events.Publish(interfaces.Event{Type: eventType, Payload: payload})
	}
}

// started filters a scheduler result down to its Started assignments.
func started(assignments []scheduler.Assignment) []scheduler.Assignment {
	out := assignments[:0:0]
	for _, a := range assignments {
		if a.Action == scheduler.Started {
			out = append(out, a)
		}
	}
	return out
}

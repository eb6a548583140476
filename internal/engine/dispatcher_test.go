package engine_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/engine"
	"github.com/ternarybob/loom/internal/models"
	"github.com/ternarybob/loom/internal/program"
	"github.com/ternarybob/loom/internal/worker"
)

// testExec serves a fixed opcode set with a function table.
type testExec struct {
	queues []string
	fns    map[string]func(models.XCmd) models.WorkerResult
}

func (e *testExec) Capacity() *int   { return nil }
func (e *testExec) Queues() []string { return e.queues }

func (e *testExec) Exec(cmd models.XCmd) models.WorkerResult {
	fn, ok := e.fns[cmd.Opcode]
	if !ok {
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonUnknownOp{}})
	}
	return fn(cmd)
}

func jump(target models.Value) models.Op {
	return models.OpLocalSet{
		Ident: models.LocalNIP,
		Value: models.RLocal{Local: models.LocalConst{Value: target}},
	}
}

func loadInto(t *testing.T, d *engine.Dispatcher, src string) {
	t.Helper()
	cmds, err := program.Load(src)
	require.Nil(t, err)
	d.LoadProgram(cmds)
}

func pumpAll(w *worker.InProc) {
	for w.Pump() > 0 {
	}
}

func TestPushAndSetScenario(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: push 01\n01: set $ag '1' 02\n02: log $ag 03\n")

	w := worker.NewInProc(worker.NewBuiltin(logger), d, logger)
	w.Attach()

	tid := d.JobAdd("ep", "")
	pumpAll(w)

	thread, ok := d.State().Thread(tid)
	require.True(t, ok)

	// No worker serves "log": the thread is parked on command 02 with the
	// argument already resolved from the pushed context.
	queued, ok := thread.State.(models.StateQueued)
	require.True(t, ok, "state: %#v", thread.State)
	assert.Equal(t, models.CommandID("02"), queued.Cmd.ID)
	assert.Equal(t, "log", queued.Cmd.Opcode)
	require.Len(t, queued.Cmd.Args, 2)
	assert.Equal(t,
		models.ResolvedRef(models.XCtxRef{Ns: models.XNsCurr{}, Ident: "ag"}, "1"),
		queued.Cmd.Args[0])

	require.NotEmpty(t, thread.Ctx)
	ctx, ok := d.State().Context(thread.Ctx)
	require.True(t, ok)
	assert.Equal(t, "1", ctx.Vals["ag"])

	// push, set and the queued log each consumed a step.
	assert.Equal(t, models.StepID(3), thread.Step)
}

func TestFetchMissWithoutHandlerExits(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: jmp 99\n")

	exec := &testExec{
		queues: []string{"jmp"},
		fns: map[string]func(models.XCmd) models.WorkerResult{
			"jmp": func(cmd models.XCmd) models.WorkerResult {
				target, _ := cmd.Args[0].Value()
				return models.OkResult(jump(target))
			},
		},
	}
	w := worker.NewInProc(exec, d, logger)
	w.Attach()

	tid := d.JobAdd("ep", "")
	pumpAll(w)

	thread, ok := d.State().Thread(tid)
	require.True(t, ok)
	assert.Equal(t, models.StateExited{Err: models.FetchError{IP: "99"}}, thread.State)
}

func TestFetchMissWithHandlerUnwinds(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: jmp 99\n50: log_exc $exc\n")

	// Start the thread first so the handler can be armed before any worker
	// picks the job up.
	tid := d.JobAdd("ep", "")
	thread, ok := d.State().Thread(tid)
	require.True(t, ok)
	thread.EIP = "50"

	exec := &testExec{
		queues: []string{"jmp"},
		fns: map[string]func(models.XCmd) models.WorkerResult{
			"jmp": func(cmd models.XCmd) models.WorkerResult {
				target, _ := cmd.Args[0].Value()
				return models.OkResult(jump(target))
			},
		},
	}
	w := worker.NewInProc(exec, d, logger)
	w.Attach()
	pumpAll(w)

	// The thread caught the fetch miss: it sits on the handler command in a
	// fresh child context chaining back to the pre-error frame.
	queued, ok := thread.State.(models.StateQueued)
	require.True(t, ok, "state: %#v", thread.State)
	assert.Equal(t, models.CommandID("50"), queued.Cmd.ID)
	assert.Equal(t, "log_exc", queued.Cmd.Opcode)

	require.NotEmpty(t, thread.Ctx)
	child, ok := d.State().Context(thread.Ctx)
	require.True(t, ok)

	assert.True(t, strings.HasPrefix(child.Vals[models.ExcKey], "Fetch{"),
		"exc = %q", child.Vals[models.ExcKey])
	assert.Equal(t, "99", child.Vals[models.ParentIPKey])
	assert.Equal(t, "", child.Vals[models.ParentCtxKey])
	assert.Equal(t, "", thread.EIP)

	// The handler argument was interpolated from the child context.
	excArg, ok := queued.Cmd.Args[0].Value()
	require.True(t, ok)
	assert.NotEmpty(t, excArg)
}

// recordingStream captures assignments without answering them.
type recordingStream struct {
	id   models.WorkerID
	jobs []models.ThreadID
	cmds []models.XCmd
}

func (s *recordingStream) WorkerCreated(id models.WorkerID) error {
	s.id = id
	return nil
}

func (s *recordingStream) JobAssigned(thread models.ThreadID, step models.StepID, queue string, cmd models.XCmd) error {
	s.jobs = append(s.jobs, thread)
	s.cmds = append(s.cmds, cmd)
	return nil
}

func TestWorkerRemoveRequeuesInFlightJobs(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: push 01\n")

	first := &recordingStream{}
	d.WorkerAdd(models.Unbounded("push"), first)

	tid := d.JobAdd("ep", "")
	require.Len(t, first.jobs, 1)

	thread, _ := d.State().Thread(tid)
	_, assigned := thread.State.(models.StateAssigned)
	require.True(t, assigned)

	d.WorkerRemove(first.id)

	// Back to Queued, waiting for a new worker.
	_, queued := thread.State.(models.StateQueued)
	require.True(t, queued)

	second := &recordingStream{}
	d.WorkerAdd(models.Unbounded("push"), second)
	require.Len(t, second.jobs, 1)
	assert.Equal(t, tid, second.jobs[0])
	assert.Equal(t, "push", second.cmds[0].Opcode)
}

func TestStaleStepResultDiscarded(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: push 01\n")

	tid := d.JobAdd("ep", "")
	thread, _ := d.State().Thread(tid)
	require.Equal(t, models.StepID(1), thread.Step)

	before := thread.State
	d.Finished("W", tid, 42, "push", models.OkResult())
	assert.Equal(t, before, thread.State)
	assert.Equal(t, models.StepID(1), thread.Step)

	// Unknown threads are discarded too, not crashed on.
	d.Finished("W", "NOPE", 1, "push", models.OkResult())
}

func TestWorkerErrorWithoutHandlerExits(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: boom 01\n")

	exec := &testExec{
		queues: []string{"boom"},
		fns: map[string]func(models.XCmd) models.WorkerResult{
			"boom": func(cmd models.XCmd) models.WorkerResult {
				return models.ErrResult(models.WorkerErrCustom{Fields: map[string]string{"kind": "exploded"}})
			},
		},
	}
	w := worker.NewInProc(exec, d, logger)
	w.Attach()

	tid := d.JobAdd("ep", "")
	pumpAll(w)

	thread, _ := d.State().Thread(tid)
	exited, ok := thread.State.(models.StateExited)
	require.True(t, ok, "state: %#v", thread.State)

	during, ok := exited.Err.(models.WorkerDuringError)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(during.String(), "WorkerDuring{"))
}

func TestCommitFailureBecomesWorkerPost(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: bad 01\n")

	exec := &testExec{
		queues: []string{"bad"},
		fns: map[string]func(models.XCmd) models.WorkerResult{
			"bad": func(cmd models.XCmd) models.WorkerResult {
				// References a local that was never set.
				return models.OkResult(models.OpLocalSet{
					Ident: "x",
					Value: models.RLocal{Local: models.LocalRef{Ident: "missing"}},
				})
			},
		},
	}
	w := worker.NewInProc(exec, d, logger)
	w.Attach()

	tid := d.JobAdd("ep", "")
	pumpAll(w)

	thread, _ := d.State().Thread(tid)
	exited, ok := thread.State.(models.StateExited)
	require.True(t, ok, "state: %#v", thread.State)

	post, ok := exited.Err.(models.WorkerPostError)
	require.True(t, ok)
	require.NotNil(t, post.Err.Index)
	assert.Equal(t, 0, *post.Err.Index)
	assert.Equal(t, models.ReasonLocalRefInvalid{Ident: "missing"}, post.Err.Reason)
}

func TestStatusCounters(t *testing.T) {
	logger := arbor.NewLogger()
	d := engine.NewDispatcher(nil, logger)
	loadInto(t, d, "ep: push 01\n")

	d.JobAdd("ep", "")
	status := d.Status()
	assert.Equal(t, 1, status.Commands)
	assert.Equal(t, 1, status.Threads)
	assert.Equal(t, 0, status.Workers)
	assert.Equal(t, 1, status.PendingJobs)
}

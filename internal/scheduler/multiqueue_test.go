package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capacity(n int) *int { return &n }

func job(thread string, step uint64) JobKey {
	return JobKey{Thread: thread, Step: step}
}

func TestJobCreateEnqueuesWithoutWorkers(t *testing.T) {
	mq := NewMultiQueue()

	assert.Empty(t, mq.JobCreate("push", job("A", 1)))
	assert.Equal(t, 1, mq.PendingLen("push"))

	_, assigned := mq.AssignedWorker(job("A", 1))
	assert.False(t, assigned)
}

func TestWorkerAddDrainsPendingFIFO(t *testing.T) {
	mq := NewMultiQueue()

	a, b, c := job("A", 1), job("B", 1), job("C", 1)
	require.Empty(t, mq.JobCreate("q", a))
	require.Empty(t, mq.JobCreate("q", b))
	require.Empty(t, mq.JobCreate("q", c))

	started := mq.WorkerAdd("w", capacity(2), []QueueKey{"q"})
	require.Len(t, started, 2)
	assert.Equal(t, Assignment{Action: Started, Worker: "w", Queue: "q", Job: a}, started[0])
	assert.Equal(t, Assignment{Action: Started, Worker: "w", Queue: "q", Job: b}, started[1])

	// C stays pending; the worker is at capacity.
	assert.Equal(t, 1, mq.PendingLen("q"))
	assert.Equal(t, 2, mq.WorkerLoad("w"))

	// Freeing one slot immediately absorbs the pending job.
	finished := mq.JobFinish("q", a)
	require.Len(t, finished, 2)
	assert.Equal(t, Assignment{Action: Done, Worker: "w", Queue: "q", Job: a}, finished[0])
	assert.Equal(t, Assignment{Action: Started, Worker: "w", Queue: "q", Job: c}, finished[1])
	assert.Equal(t, 0, mq.PendingLen("q"))
}

func TestJobCreatePrefersReadyWorker(t *testing.T) {
	mq := NewMultiQueue()
	mq.WorkerAdd("w", nil, []QueueKey{"q"})

	a := job("A", 1)
	started := mq.JobCreate("q", a)
	require.Len(t, started, 1)
	assert.Equal(t, Started, started[0].Action)
	assert.Equal(t, WorkerKey("w"), started[0].Worker)

	owner, ok := mq.AssignedWorker(a)
	require.True(t, ok)
	assert.Equal(t, WorkerKey("w"), owner)
	assert.Equal(t, 0, mq.PendingLen("q"))
}

func TestWorkerRemoveCancelsAndRequeuesInOrder(t *testing.T) {
	mq := NewMultiQueue()
	mq.WorkerAdd("w1", nil, []QueueKey{"q"})

	a, b := job("A", 1), job("B", 1)
	require.Len(t, mq.JobCreate("q", a), 1)
	require.Len(t, mq.JobCreate("q", b), 1)

	cancelled := mq.WorkerRemove("w1")
	require.Len(t, cancelled, 2)
	assert.Equal(t, Assignment{Action: Cancelled, Worker: "w1", Queue: "q", Job: a}, cancelled[0])
	assert.Equal(t, Assignment{Action: Cancelled, Worker: "w1", Queue: "q", Job: b}, cancelled[1])
	assert.Equal(t, 2, mq.PendingLen("q"))

	started := mq.WorkerAdd("w2", nil, []QueueKey{"q"})
	require.Len(t, started, 2)
	assert.Equal(t, Assignment{Action: Started, Worker: "w2", Queue: "q", Job: a}, started[0])
	assert.Equal(t, Assignment{Action: Started, Worker: "w2", Queue: "q", Job: b}, started[1])
}

func TestJobFinishOfPendingJobRemovesIt(t *testing.T) {
	mq := NewMultiQueue()

	a := job("A", 1)
	require.Empty(t, mq.JobCreate("q", a))
	require.Equal(t, 1, mq.PendingLen("q"))

	assert.Empty(t, mq.JobFinish("q", a))
	assert.Equal(t, 0, mq.PendingLen("q"))
}

func TestWorkerAddDrainsDeclaredQueueOrder(t *testing.T) {
	mq := NewMultiQueue()

	first, second := job("A", 1), job("B", 1)
	mq.JobCreate("beta", second)
	mq.JobCreate("alpha", first)

	started := mq.WorkerAdd("w", capacity(2), []QueueKey{"alpha", "beta"})
	require.Len(t, started, 2)
	assert.Equal(t, QueueKey("alpha"), started[0].Queue)
	assert.Equal(t, QueueKey("beta"), started[1].Queue)
}

func TestDuplicateWorkerPanics(t *testing.T) {
	mq := NewMultiQueue()
	mq.WorkerAdd("w", nil, []QueueKey{"q"})

	assert.Panics(t, func() {
		mq.WorkerAdd("w", nil, []QueueKey{"q"})
	})
}

func TestCapacityAccounting(t *testing.T) {
	mq := NewMultiQueue()
	mq.WorkerAdd("w", capacity(1), []QueueKey{"q"})

	a, b := job("A", 1), job("B", 1)
	require.Len(t, mq.JobCreate("q", a), 1)

	// Worker is full: the next job queues.
	require.Empty(t, mq.JobCreate("q", b))
	assert.Equal(t, 1, mq.PendingLen("q"))

	// A job is either assigned or pending, never both.
	_, assigned := mq.AssignedWorker(b)
	assert.False(t, assigned)

	finished := mq.JobFinish("q", a)
	require.Len(t, finished, 2)
	assert.Equal(t, Done, finished[0].Action)
	assert.Equal(t, Started, finished[1].Action)
	assert.Equal(t, b, finished[1].Job)
}

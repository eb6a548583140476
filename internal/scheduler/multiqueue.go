package scheduler

import "fmt"

// Action tags one scheduling decision.
type Action int

const (
	// Started: the job has been handed to the worker.
	Started Action = iota
	// Done: the worker finished the job and resigned it.
	Done
	// Cancelled: the worker went away; the job has been re-queued.
	Cancelled
)

func (a Action) String() string {
	switch a {
	case Started:
		return "Started"
	case Done:
		return "Done"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Assignment is one scheduling action produced by a MultiQueue operation.
type Assignment struct {
	Action Action
	Worker WorkerKey
	Queue  QueueKey
	Job    JobKey
}

// MultiQueue combines FIFO job queues with the pub/sub worker matcher. All
// operations are synchronous and single-threaded; the dispatcher owns the
// instance exclusively.
type MultiQueue struct {
	queues       map[QueueKey][]JobKey
	pubsub       pubSub
	workerQueues map[WorkerKey][]QueueKey
}

// NewMultiQueue creates an empty scheduler.
func NewMultiQueue() *MultiQueue {
	return &MultiQueue{
		queues:       make(map[QueueKey][]JobKey),
		pubsub:       newPubSub(),
		workerQueues: make(map[WorkerKey][]QueueKey),
	}
}

// JobCreate offers the job to a ready worker on the queue, or enqueues it at
// the tail. Returns the Started assignment if a worker took it.
func (m *MultiQueue) JobCreate(queue QueueKey, job JobKey) []Assignment {
	if worker, ok := m.pubsub.assign(queue, job); ok {
		return []Assignment{{Action: Started, Worker: worker, Queue: queue, Job: job}}
	}
	m.jobPending(queue, job)
	return nil
}

// JobFinish resigns the job from its worker and immediately offers the freed
// slot one pending job from that worker's declared queues, in order. If the
// job was still pending it is removed from its queue and nothing is
// returned.
func (m *MultiQueue) JobFinish(queue QueueKey, job JobKey) []Assignment {
	worker, ok := m.pubsub.resign(queue, job)
	if !ok {
		// Never assigned: drop it from the pending queue if it is there.
		pending := m.queues[queue]
		for i, j := range pending {
			if j == job {
				m.queues[queue] = append(pending[:i], pending[i+1:]...)
				break
			}
		}
		return nil
	}

	one := 1
	out := make([]Assignment, 0, 2)
	out = append(out, Assignment{Action: Done, Worker: worker, Queue: queue, Job: job})
	out = append(out, m.assignQueues(m.workerQueues[worker], &one)...)
	return out
}

// WorkerAdd registers a worker and drains up to capacity pending jobs across
// its declared queues in order (strict FIFO within a queue). Registering a
// duplicate key is a programmer error.
func (m *MultiQueue) WorkerAdd(key WorkerKey, capacity *int, queues []QueueKey) []Assignment {
	if _, ok := m.workerQueues[key]; ok {
		panic(fmt.Sprintf("scheduler: worker %q already exists", key))
	}

	m.pubsub.add(key, capacity, queues)
	m.workerQueues[key] = append([]QueueKey(nil), queues...)

	var budget *int
	if capacity != nil {
		c := *capacity
		budget = &c
	}
	return m.assignQueues(queues, budget)
}

// WorkerRemove deregisters the worker, re-queues every job it held at the
// tail of its queue, and returns the Cancelled assignments. The caller may
// re-drive to offer the jobs to surviving workers.
func (m *MultiQueue) WorkerRemove(key WorkerKey) []Assignment {
	held, ok := m.pubsub.remove(key)
	if !ok {
		panic(fmt.Sprintf("scheduler: worker %q does not exist", key))
	}
	delete(m.workerQueues, key)

	out := make([]Assignment, 0, len(held))
	for _, h := range held {
		m.jobPending(h.queue, h.job)
		out = append(out, Assignment{Action: Cancelled, Worker: key, Queue: h.queue, Job: h.job})
	}
	return out
}

// PendingLen reports the number of jobs waiting in a queue.
func (m *MultiQueue) PendingLen(queue QueueKey) int {
	return len(m.queues[queue])
}

// PendingTotal reports the number of jobs waiting across all queues.
func (m *MultiQueue) PendingTotal() int {
	total := 0
	for _, q := range m.queues {
		total += len(q)
	}
	return total
}

// AssignedWorker reports which worker currently holds the job.
func (m *MultiQueue) AssignedWorker(job JobKey) (WorkerKey, bool) {
	w, ok := m.pubsub.jobWorkers[job]
	return w, ok
}

// WorkerLoad reports how many jobs a worker currently holds.
func (m *MultiQueue) WorkerLoad(key WorkerKey) int {
	if w, ok := m.pubsub.workers[key]; ok {
		return w.current.len()
	}
	return 0
}

// NumWorkers reports the number of registered workers.
func (m *MultiQueue) NumWorkers() int {
	return len(m.workerQueues)
}

func (m *MultiQueue) jobPending(queue QueueKey, job JobKey) {
	m.queues[queue] = append(m.queues[queue], job)
}

// assignQueues drains pending jobs from the given queues in declared order
// until the budget runs out (nil = unbounded). A refused assign puts the job
// back; with a budget it ends the drain, without one the drain moves on to
// the next queue.
func (m *MultiQueue) assignQueues(queues []QueueKey, budget *int) []Assignment {
	var out []Assignment

	hasBudget := func() bool { return budget == nil || *budget > 0 }

	for _, queue := range queues {
		if !hasBudget() {
			break
		}
		for hasBudget() {
			pending := m.queues[queue]
			if len(pending) == 0 {
				break
			}
			job := pending[0]
			m.queues[queue] = pending[1:]

			worker, ok := m.pubsub.assign(queue, job)
			if !ok {
				// No ready worker after all; put the job back at the head and
				// stop consuming the budget.
				m.queues[queue] = append([]JobKey{job}, m.queues[queue]...)
				if budget != nil {
					zero := 0
					budget = &zero
				}
				break
			}
			out = append(out, Assignment{Action: Started, Worker: worker, Queue: queue, Job: job})
			if budget != nil {
				*budget--
			}
		}
	}
	return out
}

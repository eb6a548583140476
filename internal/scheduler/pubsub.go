// Package scheduler implements the multi-queue job scheduler: FIFO queues
// keyed by opcode name, a capacity-aware worker registry, and the pub/sub
// matcher that turns queue/worker changes into assignment actions.
package scheduler

import "github.com/ternarybob/loom/internal/models"

// QueueKey is an opcode name; WorkerKey identifies a registered worker.
type (
	QueueKey  = string
	WorkerKey = models.WorkerID
)

// JobKey identifies one invocation of a worker for a thread.
type JobKey struct {
	Thread models.ThreadID
	Step   models.StepID
}

type pubsubJob struct {
	queue QueueKey
	job   JobKey
}

type workerInfo struct {
	key      WorkerKey
	current  *jobSet
	capacity *int // nil = unbounded
	queues   []QueueKey
}

// ready reports whether the worker can take another job.
func (w *workerInfo) ready() bool {
	return w.capacity == nil || w.current.len() < *w.capacity
}

// jobSet holds a worker's current jobs in assignment order, so cancellation
// re-queues them in the order they were handed out.
type jobSet struct {
	order   []pubsubJob
	present map[pubsubJob]struct{}
}

func newJobSet() *jobSet {
	return &jobSet{present: make(map[pubsubJob]struct{})}
}

func (s *jobSet) insert(j pubsubJob) {
	if _, ok := s.present[j]; ok {
		return
	}
	s.present[j] = struct{}{}
	s.order = append(s.order, j)
}

func (s *jobSet) remove(j pubsubJob) {
	if _, ok := s.present[j]; !ok {
		return
	}
	delete(s.present, j)
	for i, held := range s.order {
		if held == j {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *jobSet) len() int { return len(s.order) }

// pubSub matches queues to workers that are below capacity. queueWorkers
// keeps insertion order so the pick on assign is deterministic.
type pubSub struct {
	workers      map[WorkerKey]*workerInfo
	queueWorkers map[QueueKey]*orderedSet
	jobWorkers   map[JobKey]WorkerKey
}

func newPubSub() pubSub {
	return pubSub{
		workers:      make(map[WorkerKey]*workerInfo),
		queueWorkers: make(map[QueueKey]*orderedSet),
		jobWorkers:   make(map[JobKey]WorkerKey),
	}
}

func (p *pubSub) add(key WorkerKey, capacity *int, queues []QueueKey) {
	worker := &workerInfo{
		key:      key,
		current:  newJobSet(),
		capacity: capacity,
		queues:   append([]QueueKey(nil), queues...),
	}
	p.workers[key] = worker
	if worker.ready() {
		p.enable(key)
	}
}

// remove deregisters the worker and returns the (queue, job) pairs it held.
func (p *pubSub) remove(key WorkerKey) ([]pubsubJob, bool) {
	worker, ok := p.workers[key]
	if !ok {
		return nil, false
	}
	delete(p.workers, key)

	for _, q := range worker.queues {
		if set, ok := p.queueWorkers[q]; ok {
			set.remove(key)
			if set.len() == 0 {
				delete(p.queueWorkers, q)
			}
		}
	}

	held := append([]pubsubJob(nil), worker.current.order...)
	for _, j := range held {
		delete(p.jobWorkers, j.job)
	}
	return held, true
}

func (p *pubSub) enable(key WorkerKey) {
	worker := p.workers[key]
	for _, q := range worker.queues {
		set, ok := p.queueWorkers[q]
		if !ok {
			set = newOrderedSet()
			p.queueWorkers[q] = set
		}
		set.insert(key)
	}
}

func (p *pubSub) disable(key WorkerKey) {
	worker := p.workers[key]
	for _, q := range worker.queues {
		set, ok := p.queueWorkers[q]
		if !ok {
			continue
		}
		set.remove(key)
		if set.len() == 0 {
			delete(p.queueWorkers, q)
		}
	}
}

// assign hands the job to a ready worker on the queue, or reports none.
// The pick is the first worker in the queue's set: workers enter it in
// registration order, and one re-enabled after being full goes to the back.
// Tests must not rely on which ready worker is chosen.
func (p *pubSub) assign(queue QueueKey, job JobKey) (WorkerKey, bool) {
	set, ok := p.queueWorkers[queue]
	if !ok || set.len() == 0 {
		return "", false
	}
	key := set.first()
	worker := p.workers[key]

	worker.current.insert(pubsubJob{queue: queue, job: job})
	p.jobWorkers[job] = key

	if !worker.ready() {
		p.disable(key)
	}
	return key, true
}

// resign releases the job from its worker and re-enables the worker if it
// was at capacity.
func (p *pubSub) resign(queue QueueKey, job JobKey) (WorkerKey, bool) {
	key, ok := p.jobWorkers[job]
	if !ok {
		return "", false
	}
	delete(p.jobWorkers, job)

	worker := p.workers[key]
	wasFull := !worker.ready()
	worker.current.remove(pubsubJob{queue: queue, job: job})
	if wasFull {
		p.enable(key)
	}
	return key, true
}

// orderedSet is a set of worker keys with deterministic insertion-order
// iteration.
type orderedSet struct {
	keys    []WorkerKey
	present map[WorkerKey]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{present: make(map[WorkerKey]struct{})}
}

func (s *orderedSet) insert(key WorkerKey) {
	if _, ok := s.present[key]; ok {
		return
	}
	s.present[key] = struct{}{}
	s.keys = append(s.keys, key)
}

func (s *orderedSet) remove(key WorkerKey) {
	if _, ok := s.present[key]; !ok {
		return
	}
	delete(s.present, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

func (s *orderedSet) len() int { return len(s.keys) }

func (s *orderedSet) first() WorkerKey { return s.keys[0] }

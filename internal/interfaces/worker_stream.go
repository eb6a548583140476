package interfaces

import "github.com/ternarybob/loom/internal/models"

// WorkerStream is the dispatcher's view of one connected worker. Messages to
// a single stream are delivered in the order the dispatcher produced them;
// each stream is single-producer/single-consumer.
type WorkerStream interface {
	// WorkerCreated reports the id the dispatcher minted for this stream.
	WorkerCreated(id models.WorkerID) error

	// JobAssigned ships one queued command to the worker. queue is the opcode
	// queue the job was drawn from; the worker must echo thread/step/queue in
	// its Finished reply.
	JobAssigned(thread models.ThreadID, step models.StepID, queue string, cmd models.XCmd) error
}

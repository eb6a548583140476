// Package worker provides the worker side of the engine contract: a
// pluggable Executor, a TCP client that serves it over the wire protocol,
// an in-process worker bound straight to the dispatcher, and a builtin
// executor with the stock opcode set.
package worker

import "github.com/ternarybob/loom/internal/models"

// Executor performs the actual work of opcodes.
type Executor interface {
	// Capacity is the number of concurrent jobs the worker accepts; nil
	// means unbounded. This should not change over the worker's life.
	Capacity() *int

	// Queues lists the opcode queues the worker serves.
	Queues() []string

	// Exec runs one interpolated command and returns the commit op-list or
	// an error.
	Exec(cmd models.XCmd) models.WorkerResult
}

// Info assembles the registration header for an executor.
func Info(exec Executor) models.WorkerInfo {
	return models.WorkerInfo{Capacity: exec.Capacity(), Queues: exec.Queues()}
}

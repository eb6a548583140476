package models

import "fmt"

// InterpolationError is the failure taxonomy of argument interpolation. The
// String form of each variant is stable; the unwinder's exc serialisation
// relies on it.
type InterpolationError interface {
	isInterpolationError()
	String() string
}

// ErrCtxNull: the command references the current context but the thread has
// none.
type ErrCtxNull struct{}

// ErrCtxMiss: a referenced context id does not exist.
type ErrCtxMiss struct {
	ID ContextID
}

// ErrCmdNull: the opcode resolved to an absent value.
type ErrCmdNull struct{}

// ErrRef: a namespace variable lookup failed for the given reference.
type ErrRef struct {
	Ref CtxRef
}

func (ErrCtxNull) isInterpolationError() {}
func (ErrCtxMiss) isInterpolationError() {}
func (ErrCmdNull) isInterpolationError() {}
func (ErrRef) isInterpolationError()     {}

func (ErrCtxNull) String() string   { return "CtxNull" }
func (e ErrCtxMiss) String() string { return fmt.Sprintf("CtxMiss(%q)", e.ID) }
func (ErrCmdNull) String() string   { return "CmdNull" }
func (e ErrRef) String() string     { return fmt.Sprintf("Ref(%s)", e.Ref) }

// ThreadError is the per-thread error taxonomy. Every variant's String has a
// stable per-kind prefix, asserted by tests and written under the exc key by
// the unwinder.
type ThreadError interface {
	isThreadError()
	String() string
}

// FetchError: the referenced command id is absent from the program table.
type FetchError struct {
	IP CommandID
}

// InterpolateError wraps an InterpolationError.
type InterpolateError struct {
	Err InterpolationError
}

// WorkerDuringError: the worker itself reported an error.
type WorkerDuringError struct {
	Err WorkerErr
}

// WorkerPostError: the commit VM failed while applying the worker's ops.
type WorkerPostError struct {
	Err OpErr
}

func (FetchError) isThreadError()        {}
func (InterpolateError) isThreadError()  {}
func (WorkerDuringError) isThreadError() {}
func (WorkerPostError) isThreadError()   {}

func (e FetchError) String() string        { return fmt.Sprintf("Fetch{ip:%q}", e.IP) }
func (e InterpolateError) String() string  { return fmt.Sprintf("Interpolate{err:%s}", e.Err) }
func (e WorkerDuringError) String() string { return fmt.Sprintf("WorkerDuring{%s}", e.Err) }
func (e WorkerPostError) String() string   { return fmt.Sprintf("WorkerPost{%s}", e.Err) }

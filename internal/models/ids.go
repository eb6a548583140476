package models

// Identifier aliases. All ids are opaque strings minted from 128 bits of
// randomness (see internal/common.NewID); the wire protocol carries them
// verbatim. StepID is the per-thread step counter and wraps with ordinary
// unsigned arithmetic.
type (
	ThreadID  = string
	ContextID = string
	CommandID = string
	WorkerID  = string
	PauseID   = string

	StepID = uint64

	// Ident names a slot inside a context; Value is what the slot holds.
	Ident = string
	Value = string
)

package models

// Ctx is a named key-value scope. The engine state store exclusively owns
// every Ctx; other entities refer to it by id only.
type Ctx struct {
	ID   ContextID
	Vals map[Ident]Value
}

// NewCtx creates a context with the given values. A nil map is replaced with
// an empty one so callers can always write through Vals.
func NewCtx(id ContextID, vals map[Ident]Value) *Ctx {
	if vals == nil {
		vals = make(map[Ident]Value)
	}
	return &Ctx{ID: id, Vals: vals}
}

// EmptyCtx creates a context with no values.
func EmptyCtx(id ContextID) *Ctx {
	return NewCtx(id, nil)
}

// Get returns the value stored under ident and whether it is present.
func (c *Ctx) Get(ident Ident) (Value, bool) {
	v, ok := c.Vals[ident]
	return v, ok
}

package models

import (
	"encoding/json"
	"fmt"
)

// CtxNs selects the context a static reference resolves against: the thread's
// current context, or the context whose id is held by a named variable of the
// current context.
type CtxNs interface {
	isCtxNs()
}

// NsCurr resolves against the current context.
type NsCurr struct{}

// NsRef resolves against the context whose id the current context stores
// under Name.
type NsRef struct {
	Name Ident
}

func (NsCurr) isCtxNs() {}
func (NsRef) isCtxNs()  {}

// CtxRef is a static reference into a context: namespace plus slot name.
type CtxRef struct {
	Ns    CtxNs
	Ident Ident
}

// CurrRef builds a reference into the current context.
func CurrRef(ident Ident) CtxRef {
	return CtxRef{Ns: NsCurr{}, Ident: ident}
}

// NamedRef builds a reference into the context named by the current context's
// variable name.
func NamedRef(name, ident Ident) CtxRef {
	return CtxRef{Ns: NsRef{Name: name}, Ident: ident}
}

func (r CtxRef) String() string {
	switch ns := r.Ns.(type) {
	case NsCurr:
		return "$" + r.Ident
	case NsRef:
		return "$" + ns.Name + "." + r.Ident
	default:
		return "$?" + r.Ident
	}
}

// CmdArg is one argument of a static command: a literal value or a context
// reference.
type CmdArg interface {
	isCmdArg()
}

// ArgConst is a literal argument.
type ArgConst struct {
	Value Value
}

// ArgRef is a context-reference argument.
type ArgRef struct {
	Ref CtxRef
}

func (ArgConst) isCmdArg() {}
func (ArgRef) isCmdArg()   {}

// Cmd is a single static instruction in the program graph. Immutable after
// load.
type Cmd struct {
	ID     CommandID
	Opcode CmdArg
	Args   []CmdArg
}

// NewCmd assembles a command.
func NewCmd(id CommandID, opcode CmdArg, args ...CmdArg) Cmd {
	return Cmd{ID: id, Opcode: opcode, Args: args}
}

// XCtxNs is CtxNs after interpolation: the named variant has been resolved to
// a concrete context id.
type XCtxNs interface {
	isXCtxNs()
}

type XNsCurr struct{}

type XNsRef struct {
	Ctx ContextID
}

func (XNsCurr) isXCtxNs() {}
func (XNsRef) isXCtxNs()  {}

// XCtxRef is a resolved reference: which context (current or by id) and which
// slot the value came from.
type XCtxRef struct {
	Ns    XCtxNs
	Ident Ident
}

// SetOp builds the commit op that writes val back through this reference.
func (r XCtxRef) SetOp(val RValueLocal) Op {
	var ctx RValueLocal
	switch ns := r.Ns.(type) {
	case XNsCurr:
		ctx = LocalRef{Ident: LocalCtx}
	case XNsRef:
		ctx = LocalConst{Value: ns.Ctx}
	}
	return OpContextSet{Ctx: ctx, Key: LocalConst{Value: r.Ident}, Value: val}
}

// XCmdArg is an argument after interpolation. A Ref carries the origin
// reference and the resolved value; a nil value means the slot was absent,
// which is a legal state.
type XCmdArg interface {
	isXCmdArg()
	// Ref returns the origin reference for reference arguments.
	Ref() (XCtxRef, bool)
	// Value returns the resolved value; ok is false for an absent Ref slot.
	Value() (Value, bool)
}

type XArgConst struct {
	Val Value
}

type XArgRef struct {
	Origin   XCtxRef
	Resolved *Value
}

func (XArgConst) isXCmdArg() {}
func (XArgRef) isXCmdArg()   {}

func (a XArgConst) Ref() (XCtxRef, bool) { return XCtxRef{}, false }
func (a XArgConst) Value() (Value, bool) { return a.Val, true }

func (a XArgRef) Ref() (XCtxRef, bool) { return a.Origin, true }
func (a XArgRef) Value() (Value, bool) {
	if a.Resolved == nil {
		return "", false
	}
	return *a.Resolved, true
}

// ResolvedRef builds an XArgRef with a present value.
func ResolvedRef(ref XCtxRef, val Value) XArgRef {
	return XArgRef{Origin: ref, Resolved: &val}
}

// XCmd is a command after interpolation: the opcode is a concrete value and
// every argument reference has been resolved.
type XCmd struct {
	ID     CommandID
	Opcode Value
	Args   []XCmdArg
}

// --- wire codecs (externally tagged, see json.go) ---

func (n NsCurr) MarshalJSON() ([]byte, error) { return encodeVariant("Curr", nil) }
func (n NsRef) MarshalJSON() ([]byte, error)  { return encodeVariant("Ref", n.Name) }

func unmarshalCtxNs(data []byte) (CtxNs, error) {
	name, payload, err := decodeVariant(data)
	if err != nil {
		return nil, err
	}
	switch name {
	case "Curr":
		return NsCurr{}, nil
	case "Ref":
		var ident Ident
		if err := json.Unmarshal(payload, &ident); err != nil {
			return nil, err
		}
		return NsRef{Name: ident}, nil
	default:
		return nil, fmt.Errorf("unknown CtxNs variant %q", name)
	}
}

func (r CtxRef) MarshalJSON() ([]byte, error) {
	ns, err := json.Marshal(r.Ns)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{ns, mustMarshal(r.Ident)})
}

func (r *CtxRef) UnmarshalJSON(data []byte) error {
	parts, err := decodeTuple(data, 2)
	if err != nil {
		return err
	}
	ns, err := unmarshalCtxNs(parts[0])
	if err != nil {
		return err
	}
	var ident Ident
	if err := json.Unmarshal(parts[1], &ident); err != nil {
		return err
	}
	r.Ns = ns
	r.Ident = ident
	return nil
}

func (a ArgConst) MarshalJSON() ([]byte, error) { return encodeVariant("Const", a.Value) }
func (a ArgRef) MarshalJSON() ([]byte, error)   { return encodeVariant("Ref", a.Ref) }

// UnmarshalCmdArg decodes one CmdArg variant.
func UnmarshalCmdArg(data []byte) (CmdArg, error) {
	name, payload, err := decodeVariant(data)
	if err != nil {
		return nil, err
	}
	switch name {
	case "Const":
		var v Value
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return ArgConst{Value: v}, nil
	case "Ref":
		var r CtxRef
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		return ArgRef{Ref: r}, nil
	default:
		return nil, fmt.Errorf("unknown CmdArg variant %q", name)
	}
}

func (c Cmd) MarshalJSON() ([]byte, error) {
	opcode, err := json.Marshal(c.Opcode)
	if err != nil {
		return nil, err
	}
	args := make([]json.RawMessage, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = json.Marshal(a); err != nil {
			return nil, err
		}
	}
	return json.Marshal(struct {
		ID     CommandID         `json:"id"`
		Opcode json.RawMessage   `json:"opcode"`
		Args   []json.RawMessage `json:"args"`
	}{c.ID, opcode, args})
}

func (c *Cmd) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     CommandID         `json:"id"`
		Opcode json.RawMessage   `json:"opcode"`
		Args   []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	opcode, err := UnmarshalCmdArg(raw.Opcode)
	if err != nil {
		return err
	}
	args := make([]CmdArg, len(raw.Args))
	for i, a := range raw.Args {
		if args[i], err = UnmarshalCmdArg(a); err != nil {
			return err
		}
	}
	c.ID = raw.ID
	c.Opcode = opcode
	c.Args = args
	return nil
}

func (n XNsCurr) MarshalJSON() ([]byte, error) { return encodeVariant("Curr", nil) }
func (n XNsRef) MarshalJSON() ([]byte, error)  { return encodeVariant("Ref", n.Ctx) }

func unmarshalXCtxNs(data []byte) (XCtxNs, error) {
	name, payload, err := decodeVariant(data)
	if err != nil {
		return nil, err
	}
	switch name {
	case "Curr":
		return XNsCurr{}, nil
	case "Ref":
		var id ContextID
		if err := json.Unmarshal(payload, &id); err != nil {
			return nil, err
		}
		return XNsRef{Ctx: id}, nil
	default:
		return nil, fmt.Errorf("unknown XCtxNs variant %q", name)
	}
}

func (r XCtxRef) MarshalJSON() ([]byte, error) {
	ns, err := json.Marshal(r.Ns)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{ns, mustMarshal(r.Ident)})
}

func (r *XCtxRef) UnmarshalJSON(data []byte) error {
	parts, err := decodeTuple(data, 2)
	if err != nil {
		return err
	}
	ns, err := unmarshalXCtxNs(parts[0])
	if err != nil {
		return err
	}
	var ident Ident
	if err := json.Unmarshal(parts[1], &ident); err != nil {
		return err
	}
	r.Ns = ns
	r.Ident = ident
	return nil
}

func (a XArgConst) MarshalJSON() ([]byte, error) { return encodeVariant("Const", a.Val) }

func (a XArgRef) MarshalJSON() ([]byte, error) {
	origin, err := json.Marshal(a.Origin)
	if err != nil {
		return nil, err
	}
	resolved := json.RawMessage("null")
	if a.Resolved != nil {
		if resolved, err = json.Marshal(*a.Resolved); err != nil {
			return nil, err
		}
	}
	return encodeVariant("Ref", []json.RawMessage{origin, resolved})
}

// UnmarshalXCmdArg decodes one XCmdArg variant.
func UnmarshalXCmdArg(data []byte) (XCmdArg, error) {
	name, payload, err := decodeVariant(data)
	if err != nil {
		return nil, err
	}
	switch name {
	case "Const":
		var v Value
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return XArgConst{Val: v}, nil
	case "Ref":
		parts, err := decodeTuple(payload, 2)
		if err != nil {
			return nil, err
		}
		var origin XCtxRef
		if err := json.Unmarshal(parts[0], &origin); err != nil {
			return nil, err
		}
		arg := XArgRef{Origin: origin}
		if !isJSONNull(parts[1]) {
			var v Value
			if err := json.Unmarshal(parts[1], &v); err != nil {
				return nil, err
			}
			arg.Resolved = &v
		}
		return arg, nil
	default:
		return nil, fmt.Errorf("unknown XCmdArg variant %q", name)
	}
}

func (c XCmd) MarshalJSON() ([]byte, error) {
	args := make([]json.RawMessage, len(c.Args))
	var err error
	for i, a := range c.Args {
		if args[i], err = json.Marshal(a); err != nil {
			return nil, err
		}
	}
	return json.Marshal(struct {
		ID     CommandID         `json:"id"`
		Opcode Value             `json:"opcode"`
		Args   []json.RawMessage `json:"args"`
	}{c.ID, c.Opcode, args})
}

func (c *XCmd) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     CommandID         `json:"id"`
		Opcode Value             `json:"opcode"`
		Args   []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	args := make([]XCmdArg, len(raw.Args))
	var err error
	for i, a := range raw.Args {
		if args[i], err = UnmarshalXCmdArg(a); err != nil {
			return err
		}
	}
	c.ID = raw.ID
	c.Opcode = raw.Opcode
	c.Args = args
	return nil
}

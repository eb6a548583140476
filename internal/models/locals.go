package models

// Pseudo-register names seeded into the commit VM's scratch locals, plus the
// well-known context keys written by the exception unwinder. The empty string
// stands for "unset" when $eip/$ctx are written back to the thread; that
// mapping happens at the commit boundary and nowhere else.
const (
	LocalTID = "$tid"
	LocalNIP = "$nip"
	LocalEIP = "$eip"
	LocalCtx = "$ctx"

	ParentCtxKey = "^ctx"
	ParentIPKey  = "^ip"
	ExcKey       = "exc"
)

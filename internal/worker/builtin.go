package worker

import (
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/models"
)

// Builtin is the stock executor: context/thread plumbing opcodes plus a few
// list helpers. Every opcode takes its jump target as the last argument
// unless noted.
type Builtin struct {
	logger arbor.ILogger
}

// NewBuiltin creates the builtin executor.
func NewBuiltin(logger arbor.ILogger) *Builtin {
	return &Builtin{logger: logger}
}

// Capacity is unbounded: every opcode completes immediately.
func (b *Builtin) Capacity() *int { return nil }

// Queues lists the opcodes Exec understands.
func (b *Builtin) Queues() []string {
	return []string{
		"nop", "jmp", "push", "set", "if", "icmp",
		"list_create", "list_length", "list_get",
		"db_user_list", "log_exc",
	}
}

// Exec dispatches on the opcode.
func (b *Builtin) Exec(cmd models.XCmd) models.WorkerResult {
	switch cmd.Opcode {
	case "nop":
		return b.execNop(cmd)
	case "jmp":
		return b.execJmp(cmd)
	case "push":
		return b.execPush(cmd)
	case "set":
		return b.execSet(cmd)
	case "if":
		return b.execIf(cmd)
	case "icmp":
		return b.execIcmp(cmd)
	case "list_create":
		return b.execListCreate(cmd)
	case "list_length":
		return b.execListLength(cmd)
	case "list_get":
		return b.execListGet(cmd)
	case "db_user_list":
		return b.execDbUserList(cmd)
	case "log_exc":
		return b.execLogExc(cmd)
	default:
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonUnknownOp{}})
	}
}

// nextIP reads the jump target from the last argument.
func nextIP(cmd models.XCmd) (models.Value, models.WorkerErr) {
	if len(cmd.Args) == 0 {
		return "", models.WorkerErrDefault{Reason: models.ReasonMissingArg{Index: 0}}
	}
	last := len(cmd.Args) - 1
	v, ok := cmd.Args[last].Value()
	if !ok {
		return "", models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: last}}
	}
	return v, nil
}

func argValue(cmd models.XCmd, i int) (models.Value, models.WorkerErr) {
	if i >= len(cmd.Args) {
		return "", models.WorkerErrDefault{Reason: models.ReasonMissingArg{Index: i}}
	}
	v, ok := cmd.Args[i].Value()
	if !ok {
		return "", models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: i}}
	}
	return v, nil
}

func argRef(cmd models.XCmd, i int) (models.XCtxRef, models.WorkerErr) {
	if i >= len(cmd.Args) {
		return models.XCtxRef{}, models.WorkerErrDefault{Reason: models.ReasonMissingArg{Index: i}}
	}
	ref, ok := cmd.Args[i].Ref()
	if !ok {
		return models.XCtxRef{}, models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: i}}
	}
	return ref, nil
}

func jumpOp(target models.Value) models.Op {
	return models.OpLocalSet{
		Ident: models.LocalNIP,
		Value: models.RLocal{Local: models.LocalConst{Value: target}},
	}
}

// nop: jump to the target without touching state.
func (b *Builtin) execNop(cmd models.XCmd) models.WorkerResult {
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(jumpOp(nip))
}

// jmp target
func (b *Builtin) execJmp(cmd models.XCmd) models.WorkerResult {
	target, werr := argValue(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(jumpOp(target))
}

// push target — enter a fresh context and jump.
func (b *Builtin) execPush(cmd models.XCmd) models.WorkerResult {
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(
		models.OpLocalSet{
			Ident: "new_ctx",
			Value: models.RExtern{Extern: models.ExternContextCreate{}},
		},
		models.OpLocalSet{
			Ident: models.LocalCtx,
			Value: models.RLocal{Local: models.LocalRef{Ident: "new_ctx"}},
		},
		jumpOp(nip),
	)
}

// set ($ref value)... target — write each pair, then jump.
func (b *Builtin) execSet(cmd models.XCmd) models.WorkerResult {
	ops := make([]models.Op, 0, len(cmd.Args)/2+1)

	i := 0
	for {
		if i >= len(cmd.Args) {
			return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonMissingArg{Index: i}})
		}
		if i == len(cmd.Args)-1 {
			nip, ok := cmd.Args[i].Value()
			if !ok {
				return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: i}})
			}
			ops = append(ops, jumpOp(nip))
			return models.OkResult(ops...)
		}

		ref, werr := argRef(cmd, i)
		if werr != nil {
			return models.ErrResult(werr)
		}
		val, werr := argValue(cmd, i+1)
		if werr != nil {
			return models.ErrResult(werr)
		}
		ops = append(ops, ref.SetOp(models.LocalConst{Value: val}))
		i += 2
	}
}

// if cond then else
func (b *Builtin) execIf(cmd models.XCmd) models.WorkerResult {
	condRaw, werr := argValue(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	cond, err := strconv.ParseBool(condRaw)
	if err != nil {
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 0}})
	}
	thenIP, werr := argValue(cmd, 1)
	if werr != nil {
		return models.ErrResult(werr)
	}
	elseIP, werr := argValue(cmd, 2)
	if werr != nil {
		return models.ErrResult(werr)
	}
	if cond {
		return models.OkResult(jumpOp(thenIP))
	}
	return models.OkResult(jumpOp(elseIP))
}

// icmp a op b $dest target — compare integers, write "true"/"false".
func (b *Builtin) execIcmp(cmd models.XCmd) models.WorkerResult {
	aRaw, werr := argValue(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	a, err := strconv.ParseUint(aRaw, 10, 64)
	if err != nil {
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 0}})
	}
	op, werr := argValue(cmd, 1)
	if werr != nil {
		return models.ErrResult(werr)
	}
	bRaw, werr := argValue(cmd, 2)
	if werr != nil {
		return models.ErrResult(werr)
	}
	bVal, err := strconv.ParseUint(bRaw, 10, 64)
	if err != nil {
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 2}})
	}
	dest, werr := argRef(cmd, 3)
	if werr != nil {
		return models.ErrResult(werr)
	}

	var res bool
	switch op {
	case "<":
		res = a < bVal
	case ">":
		res = a > bVal
	case "=":
		res = a == bVal
	default:
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 1}})
	}

	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(
		dest.SetOp(models.LocalConst{Value: strconv.FormatBool(res)}),
		jumpOp(nip),
	)
}

// list_create $dest target — an empty list is the empty string.
func (b *Builtin) execListCreate(cmd models.XCmd) models.WorkerResult {
	dest, werr := argRef(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(
		dest.SetOp(models.LocalConst{Value: ""}),
		jumpOp(nip),
	)
}

// list_length $list $dest target
func (b *Builtin) execListLength(cmd models.XCmd) models.WorkerResult {
	list, werr := argValue(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	dest, werr := argRef(cmd, 1)
	if werr != nil {
		return models.ErrResult(werr)
	}
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	count := 0
	if list != "" {
		count = len(strings.Split(list, ","))
	}
	return models.OkResult(
		dest.SetOp(models.LocalConst{Value: strconv.Itoa(count)}),
		jumpOp(nip),
	)
}

// list_get $list $index dest target — dest names a current-context slot.
func (b *Builtin) execListGet(cmd models.XCmd) models.WorkerResult {
	list, werr := argValue(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	idxRaw, werr := argValue(cmd, 1)
	if werr != nil {
		return models.ErrResult(werr)
	}
	idx, err := strconv.Atoi(idxRaw)
	if err != nil {
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 1}})
	}
	dest, werr := argValue(cmd, 2)
	if werr != nil {
		return models.ErrResult(werr)
	}
	var items []string
	if list != "" {
		items = strings.Split(list, ",")
	}
	if idx < 0 || idx >= len(items) {
		return models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 1}})
	}
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: models.LocalCtx},
			Key:   models.LocalConst{Value: dest},
			Value: models.LocalConst{Value: items[idx]},
		},
		jumpOp(nip),
	)
}

// db_user_list $dest target — canned fixture data.
func (b *Builtin) execDbUserList(cmd models.XCmd) models.WorkerResult {
	dest, werr := argRef(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(
		dest.SetOp(models.LocalConst{Value: "foo@bar.com,zeta@beta.org,culinary@sky.net"}),
		jumpOp(nip),
	)
}

// log_exc $exc [target] — log the caught exception; jump when a target is
// given, otherwise leave the instruction pointer alone.
func (b *Builtin) execLogExc(cmd models.XCmd) models.WorkerResult {
	exc, werr := argValue(cmd, 0)
	if werr != nil {
		return models.ErrResult(werr)
	}
	b.logger.Warn().Str("exc", exc).Msg("Program exception")

	if len(cmd.Args) < 2 {
		return models.OkResult()
	}
	nip, werr := nextIP(cmd)
	if werr != nil {
		return models.ErrResult(werr)
	}
	return models.OkResult(jumpOp(nip))
}

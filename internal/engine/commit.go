package engine

import "github.com/ternarybob/loom/internal/models"

// Commit applies a worker's op-list to the thread and the state stores.
//
// A scratch locals map is seeded with the $nip/$eip/$ctx/$tid
// pseudo-registers; ops run in order against it and the stores. Store
// mutations are applied as they happen and not rolled back on failure; the
// thread's registers are rewritten from the locals only when every op
// succeeded, so a failed commit leaves the registers untouched and the
// failure propagates as WorkerPost.
//
// The empty string stands for an unset $eip/$ctx; the mapping to and from
// the thread's registers happens here and nowhere else.
func Commit(thread *models.Thread, st *State, ops []models.Op) *models.OpErr {
	locals := map[models.Ident]models.Value{
		models.LocalNIP: thread.IP,
		models.LocalEIP: thread.EIP,
		models.LocalCtx: thread.Ctx,
		models.LocalTID: thread.ID,
	}

	for i, op := range ops {
		if reason := applyOp(op, locals, st); reason != nil {
			return models.OpErrAt(i, reason)
		}
	}

	thread.IP = locals[models.LocalNIP]
	thread.EIP = locals[models.LocalEIP]
	thread.Ctx = locals[models.LocalCtx]
	return nil
}

func applyOp(op models.Op, locals map[models.Ident]models.Value, st *State) models.OpErrReason {
	switch o := op.(type) {
	case models.OpLocalSet:
		val, reason := resolveRValue(o.Value, locals, st)
		if reason != nil {
			return reason
		}
		locals[o.Ident] = val
		return nil

	case models.OpContextSet:
		ctxID, reason := resolveLocal(o.Ctx, locals)
		if reason != nil {
			return reason
		}
		key, reason := resolveLocal(o.Key, locals)
		if reason != nil {
			return reason
		}
		val, reason := resolveLocal(o.Value, locals)
		if reason != nil {
			return reason
		}
		ctx, ok := st.Context(ctxID)
		if !ok {
			return models.ReasonContextRefInvalid{Ident: ctxID}
		}
		ctx.Vals[key] = val
		return nil

	case models.OpContextRemove:
		id, reason := resolveLocal(o.Value, locals)
		if reason != nil {
			return reason
		}
		if !st.RemoveContext(id) {
			return models.ReasonContextDoesNotExist{ID: id}
		}
		return nil

	case models.OpThreadRemove:
		id, reason := resolveLocal(o.Value, locals)
		if reason != nil {
			return reason
		}
		if !st.RemoveThread(id) {
			return models.ReasonThreadDoesNotExist{ID: id}
		}
		return nil

	default:
		return models.ReasonUnknownOp{}
	}
}

func resolveLocal(rv models.RValueLocal, locals map[models.Ident]models.Value) (models.Value, models.OpErrReason) {
	switch v := rv.(type) {
	case models.LocalConst:
		return v.Value, nil
	case models.LocalRef:
		val, ok := locals[v.Ident]
		if !ok {
			return "", models.ReasonLocalRefInvalid{Ident: v.Ident}
		}
		return val, nil
	default:
		return "", models.ReasonUnknownOp{}
	}
}

func resolveExtern(rv models.RValueExtern, locals map[models.Ident]models.Value, st *State) (models.Value, models.OpErrReason) {
	switch v := rv.(type) {
	case models.ExternContextCreate:
		id := st.MintID()
		st.InsertContext(models.EmptyCtx(id))
		return id, nil

	case models.ExternThreadCreate:
		ip, reason := resolveLocal(v.IP, locals)
		if reason != nil {
			return "", reason
		}
		ctx := models.Value("")
		if v.Ctx != nil {
			if ctx, reason = resolveLocal(v.Ctx, locals); reason != nil {
				return "", reason
			}
		}
		id := st.MintID()
		st.InsertThread(models.NewThread(id, ip, ctx))
		return id, nil

	default:
		return "", models.ReasonUnknownOp{}
	}
}

func resolveRValue(rv models.RValue, locals map[models.Ident]models.Value, st *State) (models.Value, models.OpErrReason) {
	switch v := rv.(type) {
	case models.RLocal:
		return resolveLocal(v.Local, locals)
	case models.RExtern:
		return resolveExtern(v.Extern, locals, st)
	default:
		return "", models.ReasonUnknownOp{}
	}
}

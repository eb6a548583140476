package engine

import "github.com/ternarybob/loom/internal/models"

// Interpolate resolves every argument of cmd against the current context and
// the context store, producing an XCmd. curr may be nil; that only fails if
// the command actually references the current context.
//
// Ordinary arguments may resolve to an absent value; the opcode may not
// (nothing could be dispatched), so an absent opcode fails with CmdNull.
func Interpolate(st *State, cmd models.Cmd, curr *models.Ctx) (models.XCmd, models.InterpolationError) {
	resolve := func(arg models.CmdArg) (models.XCmdArg, models.InterpolationError) {
		switch a := arg.(type) {
		case models.ArgConst:
			return models.XArgConst{Val: a.Value}, nil

		case models.ArgRef:
			switch ns := a.Ref.Ns.(type) {
			case models.NsCurr:
				if curr == nil {
					return nil, models.ErrCtxNull{}
				}
				out := models.XArgRef{Origin: models.XCtxRef{Ns: models.XNsCurr{}, Ident: a.Ref.Ident}}
				if v, ok := curr.Get(a.Ref.Ident); ok {
					out.Resolved = &v
				}
				return out, nil

			case models.NsRef:
				if curr == nil {
					return nil, models.ErrCtxNull{}
				}
				ctxID, ok := curr.Get(ns.Name)
				if !ok {
					return nil, models.ErrRef{Ref: models.CurrRef(ns.Name)}
				}
				other, ok := st.Context(ctxID)
				if !ok {
					return nil, models.ErrCtxMiss{ID: ctxID}
				}
				out := models.XArgRef{Origin: models.XCtxRef{Ns: models.XNsRef{Ctx: ctxID}, Ident: a.Ref.Ident}}
				if v, ok := other.Get(a.Ref.Ident); ok {
					out.Resolved = &v
				}
				return out, nil
			}
		}
		return nil, models.ErrCmdNull{}
	}

	args := make([]models.XCmdArg, len(cmd.Args))
	for i, a := range cmd.Args {
		x, err := resolve(a)
		if err != nil {
			return models.XCmd{}, err
		}
		args[i] = x
	}

	opcodeArg, err := resolve(cmd.Opcode)
	if err != nil {
		return models.XCmd{}, err
	}
	opcode, ok := opcodeArg.Value()
	if !ok {
		return models.XCmd{}, models.ErrCmdNull{}
	}

	return models.XCmd{ID: cmd.ID, Opcode: opcode, Args: args}, nil
}

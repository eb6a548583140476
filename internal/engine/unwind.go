package engine

import "github.com/ternarybob/loom/internal/models"

// UnwindOps synthesises the commit op-list that catches err and transfers
// control to the handler at target. The op-list, applied by the normal
// commit path:
//
//   - creates a new parent context,
//   - chains the pre-error frame into it (^ctx, ^ip),
//   - records the serialised error under exc,
//   - and jumps: $ctx ← new context, $nip ← target, $eip ← unset.
//
// Reusing the commit VM for error flow keeps a single mutation path; the
// observable thread/context state is what matters.
func UnwindOps(err models.ThreadError, target models.CommandID) []models.Op {
	const newCtx = "new_ctx"

	return []models.Op{
		models.OpLocalSet{
			Ident: models.ExcKey,
			Value: models.RLocal{Local: models.LocalConst{Value: err.String()}},
		},
		models.OpLocalSet{
			Ident: newCtx,
			Value: models.RExtern{Extern: models.ExternContextCreate{}},
		},
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: newCtx},
			Key:   models.LocalConst{Value: models.ParentCtxKey},
			Value: models.LocalRef{Ident: models.LocalCtx},
		},
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: newCtx},
			Key:   models.LocalConst{Value: models.ParentIPKey},
			Value: models.LocalRef{Ident: models.LocalNIP},
		},
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: newCtx},
			Key:   models.LocalConst{Value: models.ExcKey},
			Value: models.LocalRef{Ident: models.ExcKey},
		},
		models.OpLocalSet{
			Ident: models.LocalCtx,
			Value: models.RLocal{Local: models.LocalRef{Ident: newCtx}},
		},
		models.OpLocalSet{
			Ident: models.LocalNIP,
			Value: models.RLocal{Local: models.LocalConst{Value: target}},
		},
		models.OpLocalSet{
			Ident: models.LocalEIP,
			Value: models.RLocal{Local: models.LocalConst{Value: ""}},
		},
	}
}

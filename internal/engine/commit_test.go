package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/loom/internal/models"
)

func newCommitThread(st *State, ctx models.ContextID) *models.Thread {
	thread := models.NewThread("T1", "ip0", ctx)
	st.InsertThread(thread)
	return thread
}

func TestCommitRewritesRegistersFromLocals(t *testing.T) {
	st := NewState()
	thread := newCommitThread(st, "")

	ops := []models.Op{
		models.OpLocalSet{Ident: models.LocalNIP, Value: models.RLocal{Local: models.LocalConst{Value: "ip1"}}},
		models.OpLocalSet{Ident: models.LocalEIP, Value: models.RLocal{Local: models.LocalConst{Value: "handler"}}},
	}
	require.Nil(t, Commit(thread, st, ops))

	assert.Equal(t, "ip1", thread.IP)
	assert.Equal(t, "handler", thread.EIP)
	assert.Equal(t, "", thread.Ctx)
}

func TestCommitEmptyStringClearsEIP(t *testing.T) {
	st := NewState()
	thread := newCommitThread(st, "")
	thread.EIP = "handler"

	ops := []models.Op{
		models.OpLocalSet{Ident: models.LocalEIP, Value: models.RLocal{Local: models.LocalConst{Value: ""}}},
	}
	require.Nil(t, Commit(thread, st, ops))
	assert.Equal(t, "", thread.EIP)
}

func TestCommitSeedsPseudoRegisters(t *testing.T) {
	st := NewState()
	ctx := models.EmptyCtx("C1")
	st.InsertContext(ctx)
	thread := newCommitThread(st, "C1")

	// Copy $tid and $nip into the context to observe their seeds.
	ops := []models.Op{
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: models.LocalCtx},
			Key:   models.LocalConst{Value: "saw_tid"},
			Value: models.LocalRef{Ident: models.LocalTID},
		},
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: models.LocalCtx},
			Key:   models.LocalConst{Value: "saw_nip"},
			Value: models.LocalRef{Ident: models.LocalNIP},
		},
	}
	require.Nil(t, Commit(thread, st, ops))

	assert.Equal(t, "T1", ctx.Vals["saw_tid"])
	assert.Equal(t, "ip0", ctx.Vals["saw_nip"])
}

func TestCommitLocalSetLastWriterWins(t *testing.T) {
	st := NewState()
	ctx := models.EmptyCtx("C1")
	st.InsertContext(ctx)
	thread := newCommitThread(st, "C1")

	ops := []models.Op{
		models.OpLocalSet{Ident: "x", Value: models.RLocal{Local: models.LocalConst{Value: "first"}}},
		models.OpLocalSet{Ident: "x", Value: models.RLocal{Local: models.LocalConst{Value: "second"}}},
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: models.LocalCtx},
			Key:   models.LocalConst{Value: "out"},
			Value: models.LocalRef{Ident: "x"},
		},
	}
	require.Nil(t, Commit(thread, st, ops))
	assert.Equal(t, "second", ctx.Vals["out"])
}

func TestCommitLocalRefMustExist(t *testing.T) {
	st := NewState()
	thread := newCommitThread(st, "")

	ops := []models.Op{
		models.OpLocalSet{Ident: "y", Value: models.RLocal{Local: models.LocalRef{Ident: "nope"}}},
	}
	opErr := Commit(thread, st, ops)
	require.NotNil(t, opErr)
	require.NotNil(t, opErr.Index)
	assert.Equal(t, 0, *opErr.Index)
	assert.Equal(t, models.ReasonLocalRefInvalid{Ident: "nope"}, opErr.Reason)

	// Registers untouched on failure.
	assert.Equal(t, "ip0", thread.IP)
}

func TestCommitContextSetRequiresContext(t *testing.T) {
	st := NewState()
	thread := newCommitThread(st, "")

	ops := []models.Op{
		models.OpContextSet{
			Ctx:   models.LocalConst{Value: "GONE"},
			Key:   models.LocalConst{Value: "k"},
			Value: models.LocalConst{Value: "v"},
		},
	}
	opErr := Commit(thread, st, ops)
	require.NotNil(t, opErr)
	assert.Equal(t, models.ReasonContextRefInvalid{Ident: "GONE"}, opErr.Reason)
}

func TestCommitContextRemove(t *testing.T) {
	st := NewState()
	st.InsertContext(models.EmptyCtx("C1"))
	thread := newCommitThread(st, "")

	ops := []models.Op{
		models.OpContextRemove{Value: models.LocalConst{Value: "C1"}},
	}
	require.Nil(t, Commit(thread, st, ops))
	_, ok := st.Context("C1")
	assert.False(t, ok)

	// Removing it again fails.
	opErr := Commit(thread, st, ops)
	require.NotNil(t, opErr)
	assert.Equal(t, models.ReasonContextDoesNotExist{ID: "C1"}, opErr.Reason)
}

func TestCommitThreadRemove(t *testing.T) {
	st := NewState()
	victim := models.NewThread("T2", "ip", "")
	st.InsertThread(victim)
	thread := newCommitThread(st, "")

	ops := []models.Op{
		models.OpThreadRemove{Value: models.LocalConst{Value: "T2"}},
	}
	require.Nil(t, Commit(thread, st, ops))
	_, ok := st.Thread("T2")
	assert.False(t, ok)

	opErr := Commit(thread, st, ops)
	require.NotNil(t, opErr)
	assert.Equal(t, models.ReasonThreadDoesNotExist{ID: "T2"}, opErr.Reason)
}

func TestCommitContextCreateExtern(t *testing.T) {
	st := NewState()
	thread := newCommitThread(st, "")

	ops := []models.Op{
		models.OpLocalSet{Ident: "new_ctx", Value: models.RExtern{Extern: models.ExternContextCreate{}}},
		models.OpLocalSet{Ident: models.LocalCtx, Value: models.RLocal{Local: models.LocalRef{Ident: "new_ctx"}}},
	}
	require.Nil(t, Commit(thread, st, ops))

	require.NotEmpty(t, thread.Ctx)
	created, ok := st.Context(thread.Ctx)
	require.True(t, ok)
	assert.Empty(t, created.Vals)
}

func TestCommitThreadCreateExtern(t *testing.T) {
	st := NewState()
	st.InsertContext(models.EmptyCtx("C1"))
	thread := newCommitThread(st, "C1")

	ops := []models.Op{
		models.OpLocalSet{
			Ident: "child",
			Value: models.RExtern{Extern: models.ExternThreadCreate{
				IP:  models.LocalConst{Value: "entry"},
				Ctx: models.LocalRef{Ident: models.LocalCtx},
			}},
		},
		models.OpContextSet{
			Ctx:   models.LocalRef{Ident: models.LocalCtx},
			Key:   models.LocalConst{Value: "child_id"},
			Value: models.LocalRef{Ident: "child"},
		},
	}
	require.Nil(t, Commit(thread, st, ops))

	ctx, _ := st.Context("C1")
	childID := ctx.Vals["child_id"]
	require.NotEmpty(t, childID)

	child, ok := st.Thread(childID)
	require.True(t, ok)
	assert.Equal(t, "entry", child.IP)
	assert.Equal(t, "C1", child.Ctx)
	assert.Equal(t, models.StateCreated{}, child.State)
}

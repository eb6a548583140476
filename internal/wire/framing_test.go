package wire

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/loom/internal/models"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, []byte(`{"x":1}`)))
	require.NoError(t, WriteFrame(&buf, []byte{}))
	require.NoError(t, WriteFrame(&buf, []byte("second")))

	// u16 little-endian prefix.
	raw := buf.Bytes()
	assert.Equal(t, byte(7), raw[0])
	assert.Equal(t, byte(0), raw[1])

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"x":1}`), first)

	empty, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, empty)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), second)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestHeaderFrameEncoding(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, models.HeaderFrame{Info: models.Capped(5, "push", "set")}))

	payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Header":[5,["push","set"]]}`, string(payload))

	frame, err := models.UnmarshalClientFrame(payload)
	require.NoError(t, err)
	header, ok := frame.(models.HeaderFrame)
	require.True(t, ok)
	require.NotNil(t, header.Info.Capacity)
	assert.Equal(t, 5, *header.Info.Capacity)
	assert.Equal(t, []string{"push", "set"}, header.Info.Queues)
}

func TestUnboundedHeaderEncodesNullCapacity(t *testing.T) {
	payload, err := json.Marshal(models.HeaderFrame{Info: models.Unbounded("q")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Header":[null,["q"]]}`, string(payload))
}

func TestRequestFrameRoundTrip(t *testing.T) {
	resolved := "42"
	frame := models.RequestFrame{
		Seq: 7,
		Cmd: models.XCmd{
			ID:     "01",
			Opcode: "set",
			Args: []models.XCmdArg{
				models.XArgConst{Val: "lit"},
				models.XArgRef{
					Origin:   models.XCtxRef{Ns: models.XNsCurr{}, Ident: "a"},
					Resolved: &resolved,
				},
				models.XArgRef{
					Origin: models.XCtxRef{Ns: models.XNsRef{Ctx: "C2"}, Ident: "b"},
				},
			},
		},
	}

	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"Request":[7,{"id":"01","opcode":"set","args":[
			{"Const":"lit"},
			{"Ref":[["Curr","a"],"42"]},
			{"Ref":[[{"Ref":"C2"},"b"],null]}
		]}]}`,
		string(payload))

	var back models.RequestFrame
	require.NoError(t, json.Unmarshal(payload, &back))
	assert.Equal(t, frame, back)
}

func TestResultFrameRoundTrip(t *testing.T) {
	frame := models.ResultFrame{
		Seq: 3,
		Result: models.OkResult(
			models.OpLocalSet{
				Ident: "$nip",
				Value: models.RLocal{Local: models.LocalConst{Value: "02"}},
			},
			models.OpLocalSet{
				Ident: "new_ctx",
				Value: models.RExtern{Extern: models.ExternContextCreate{}},
			},
			models.OpContextSet{
				Ctx:   models.LocalRef{Ident: "new_ctx"},
				Key:   models.LocalConst{Value: "k"},
				Value: models.LocalConst{Value: "v"},
			},
		),
	}

	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"Result":[3,{"Ok":[
			{"LocalSet":["$nip",{"Local":{"Const":"02"}}]},
			{"LocalSet":["new_ctx",{"Extern":"ContextCreate"}]},
			{"ContextSet":[{"Ref":"new_ctx"},{"Const":"k"},{"Const":"v"}]}
		]}]}`,
		string(payload))

	back, err := models.UnmarshalClientFrame(payload)
	require.NoError(t, err)
	assert.Equal(t, frame, back.(models.ResultFrame))
}

func TestWorkerErrEncoding(t *testing.T) {
	payload, err := json.Marshal(models.ResultFrame{
		Seq:    1,
		Result: models.ErrResult(models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 2}}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Result":[1,{"Err":{"Default":{"InvalidArg":2}}}]}`, string(payload))

	back, err := models.UnmarshalClientFrame(payload)
	require.NoError(t, err)
	result := back.(models.ResultFrame).Result
	require.NotNil(t, result.Err)
	assert.Equal(t, models.WorkerErrDefault{Reason: models.ReasonInvalidArg{Index: 2}}, result.Err)
}

package models

import (
	"encoding/json"
	"fmt"
)

// WorkerInfo is what a worker declares in its Header frame: an optional
// capacity (nil = unbounded) and the opcode queues it serves.
type WorkerInfo struct {
	Capacity *int
	Queues   []string
}

// Unbounded builds a WorkerInfo with no capacity limit.
func Unbounded(queues ...string) WorkerInfo {
	return WorkerInfo{Queues: queues}
}

// Capped builds a WorkerInfo with a fixed capacity.
func Capped(capacity int, queues ...string) WorkerInfo {
	return WorkerInfo{Capacity: &capacity, Queues: queues}
}

// RequestFrame is the dispatcher→worker direction: execute cmd, reply with
// the same seq.
type RequestFrame struct {
	Seq uint32
	Cmd XCmd
}

// ClientFrame is the worker→dispatcher direction.
type ClientFrame interface {
	isClientFrame()
}

// HeaderFrame registers the worker; sent exactly once, first.
type HeaderFrame struct {
	Info WorkerInfo
}

// ResultFrame answers a RequestFrame by seq.
type ResultFrame struct {
	Seq    uint32
	Result WorkerResult
}

func (HeaderFrame) isClientFrame() {}
func (ResultFrame) isClientFrame() {}

func (f RequestFrame) MarshalJSON() ([]byte, error) {
	cmd, err := json.Marshal(f.Cmd)
	if err != nil {
		return nil, err
	}
	return encodeVariant("Request", []json.RawMessage{mustMarshal(f.Seq), cmd})
}

func (f *RequestFrame) UnmarshalJSON(data []byte) error {
	name, payload, err := decodeVariant(data)
	if err != nil {
		return err
	}
	if name != "Request" {
		return fmt.Errorf("unknown server frame %q", name)
	}
	parts, err := decodeTuple(payload, 2)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(parts[0], &f.Seq); err != nil {
		return err
	}
	return json.Unmarshal(parts[1], &f.Cmd)
}

func (f HeaderFrame) MarshalJSON() ([]byte, error) {
	capacity := json.RawMessage("null")
	if f.Info.Capacity != nil {
		capacity = mustMarshal(*f.Info.Capacity)
	}
	queues := f.Info.Queues
	if queues == nil {
		queues = []string{}
	}
	return encodeVariant("Header", []json.RawMessage{capacity, mustMarshal(queues)})
}

func (f ResultFrame) MarshalJSON() ([]byte, error) {
	res, err := json.Marshal(f.Result)
	if err != nil {
		return nil, err
	}
	return encodeVariant("Result", []json.RawMessage{mustMarshal(f.Seq), res})
}

// UnmarshalClientFrame decodes a worker→dispatcher frame.
func UnmarshalClientFrame(data []byte) (ClientFrame, error) {
	name, payload, err := decodeVariant(data)
	if err != nil {
		return nil, err
	}
	switch name {
	case "Header":
		parts, err := decodeTuple(payload, 2)
		if err != nil {
			return nil, err
		}
		var frame HeaderFrame
		if !isJSONNull(parts[0]) {
			var capacity int
			if err := json.Unmarshal(parts[0], &capacity); err != nil {
				return nil, err
			}
			frame.Info.Capacity = &capacity
		}
		if err := json.Unmarshal(parts[1], &frame.Info.Queues); err != nil {
			return nil, err
		}
		return frame, nil
	case "Result":
		parts, err := decodeTuple(payload, 2)
		if err != nil {
			return nil, err
		}
		var frame ResultFrame
		if err := json.Unmarshal(parts[0], &frame.Seq); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[1], &frame.Result); err != nil {
			return nil, err
		}
		return frame, nil
	default:
		return nil, fmt.Errorf("unknown client frame %q", name)
	}
}

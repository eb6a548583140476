package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The wire protocol uses externally tagged sums: a variant with a payload
// encodes as a single-key object {"Variant": payload}, a unit variant as the
// bare string "Variant". These helpers are shared by every sum type below.

func encodeVariant(name string, payload interface{}) ([]byte, error) {
	if payload == nil {
		return json.Marshal(name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	key, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(raw)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeVariant splits data into a variant name and its raw payload. Unit
// variants ("Name") return a nil payload.
func decodeVariant(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, fmt.Errorf("empty variant")
	}
	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return "", nil, err
		}
		return name, nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("variant object must have exactly one key, got %d", len(m))
	}
	for name, payload := range m {
		return name, payload, nil
	}
	return "", nil, fmt.Errorf("unreachable")
}

func decodeTuple(data json.RawMessage, want int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, err
	}
	if len(parts) != want {
		return nil, fmt.Errorf("tuple length %d, want %d", len(parts), want)
	}
	return parts, nil
}

func isJSONNull(data json.RawMessage) bool {
	return len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

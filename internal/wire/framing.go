// Package wire implements the byte-level worker protocol framing: a u16
// little-endian payload length followed by a JSON payload.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxPayload is the largest frame body the u16 prefix can describe.
const MaxPayload = 65535

// ErrFrameTooLarge is returned when a payload exceeds the u16 length prefix.
var ErrFrameTooLarge = fmt.Errorf("frame payload exceeds %d bytes", MaxPayload)

// ReadFrame reads one length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint16(prefix[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	var prefix [2]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadJSON reads a frame and unmarshals it into v.
func ReadJSON(r io.Reader, v interface{}) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// WriteJSON marshals v and writes it as one frame.
func WriteJSON(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

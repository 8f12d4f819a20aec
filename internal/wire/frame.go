// Package wire implements the binary frame envelope used by the yamux
// relay: a small [type:1][length:4][payload] header in front of either
// a JSON control message or a raw PTY byte chunk, so both travel over
// one connection.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frame types carried over the wire connection.
const (
	TypeJSON   byte = 0x01 // a control message: create/resize/close/etc.
	TypeBinary byte = 0x02 // a raw byte chunk; relay.StreamFrame puts its own 0x80+ opcode in the type byte instead
)

// maxFrameSize guards against a corrupt or hostile length prefix
// forcing an unbounded allocation.
const maxFrameSize = 64 * 1024 * 1024

// Frame is one length-prefixed message.
type Frame struct {
	Type    byte
	Payload []byte
}

// Write encodes msgType and payload as [type][length][payload].
func Write(w io.Writer, msgType byte, payload []byte) error {
	if _, err := w.Write([]byte{msgType}); err != nil {
		return fmt.Errorf("wire: write frame type: %w", err)
	}
	length := uint32(len(payload))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("wire: write frame payload: %w", err)
		}
	}
	return nil
}

// Read decodes one Frame from r.
func Read(r io.Reader) (*Frame, error) {
	typeBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, typeBuf); err != nil {
		return nil, fmt.Errorf("wire: read frame type: %w", err)
	}

	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("wire: read frame length: %w", err)
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("wire: frame too large: %d bytes (max %d)", length, maxFrameSize)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}
	return &Frame{Type: typeBuf[0], Payload: payload}, nil
}

// WriteJSON marshals v and writes it as a TypeJSON frame.
func WriteJSON(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal json: %w", err)
	}
	return Write(w, TypeJSON, payload)
}

// ReadJSON reads one frame and unmarshals its payload into v,
// returning the frame's type tag.
func ReadJSON(r io.Reader, v any) (byte, error) {
	frame, err := Read(r)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return 0, fmt.Errorf("wire: unmarshal json: %w", err)
	}
	return frame.Type, nil
}

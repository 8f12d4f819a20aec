// Package relay implements the host bridge's optional raw byte-stream
// multiplexer: one yamux stream per terminal id, carrying
// terminal-data/terminal-input bytes outside the JSON control channel.
// Frames reuse internal/wire's codec with the opcode carried in the
// frame type byte. Wired into internal/bridge via Bridge.OpenRelay.
package relay

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/libp2p/go-yamux/v4"
	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/wire"
)

// Config returns the default yamux configuration for the relay.
func Config() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.AcceptBacklog = 256
	cfg.EnableKeepAlive = true
	cfg.KeepAliveInterval = 30 * time.Second
	cfg.ConnectionWriteTimeout = 10 * time.Second
	cfg.MaxStreamWindowSize = 256 * 1024
	return cfg
}

// Session wraps a yamux session with idempotent close tracking.
type Session struct {
	*yamux.Session

	mu      sync.Mutex
	closed  bool
	onClose func()
}

// NewServerSession opens a server-side yamux session over conn.
func NewServerSession(conn net.Conn) (*Session, error) {
	s, err := yamux.Server(conn, Config(), nil)
	if err != nil {
		return nil, err
	}
	return &Session{Session: s}, nil
}

// NewClientSession opens a client-side yamux session over conn.
func NewClientSession(conn net.Conn) (*Session, error) {
	s, err := yamux.Client(conn, Config(), nil)
	if err != nil {
		return nil, err
	}
	return &Session{Session: s}, nil
}

// SetOnClose registers a callback fired exactly once, on Close.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Close closes the session idempotently and fires the onClose callback.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	err := s.Session.Close()
	if onClose != nil {
		onClose()
	}
	return err
}

// Stream opcodes, namespaced from 0x80 up so a byte stream never
// collides with internal/wire's [0x01, 0x02] frame types if the two
// are ever multiplexed over the same connection.
const (
	OpStreamOpen   byte = 0x80 // [opcode][terminal id length-prefixed][cols:2][rows:2]
	OpStreamData   byte = 0x81 // [opcode][payload]
	OpStreamResize byte = 0x82 // [opcode][cols:2][rows:2]
	OpStreamClose  byte = 0x83 // [opcode]
)

// StreamFrame is one opcode-tagged message exchanged over a
// terminal's dedicated yamux stream. It is the same [type:1][length:4]
// shape as internal/wire.Frame — WriteFrame/ReadFrame are thin
// opcode/type adapters over wire.Write/wire.Read rather than a second
// length-prefixed codec.
type StreamFrame struct {
	Opcode  byte
	Payload []byte
}

// WriteFrame writes f as a wire.Frame tagged by its opcode.
func WriteFrame(w io.Writer, f StreamFrame) error {
	if err := wire.Write(w, f.Opcode, f.Payload); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// ReadFrame reads one StreamFrame from r via wire.Read.
func ReadFrame(r io.Reader) (StreamFrame, error) {
	frame, err := wire.Read(r)
	if err != nil {
		return StreamFrame{}, fmt.Errorf("relay: %w", err)
	}
	return StreamFrame{Opcode: frame.Type, Payload: frame.Payload}, nil
}

// EncodeResize packs cols/rows into an OpStreamResize payload.
func EncodeResize(cols, rows uint16) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], cols)
	binary.BigEndian.PutUint16(buf[2:4], rows)
	return buf
}

// DecodeResize unpacks an OpStreamResize payload.
func DecodeResize(payload []byte) (cols, rows uint16, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("relay: resize payload must be 4 bytes, got %d", len(payload))
	}
	return binary.BigEndian.Uint16(payload[0:2]), binary.BigEndian.Uint16(payload[2:4]), nil
}

// EncodeOpen packs a terminal id and initial size into an OpStreamOpen
// payload: [idLen:1][id][cols:2][rows:2].
func EncodeOpen(id string, cols, rows uint16) []byte {
	buf := make([]byte, 1+len(id)+4)
	buf[0] = byte(len(id))
	copy(buf[1:], id)
	binary.BigEndian.PutUint16(buf[1+len(id):], cols)
	binary.BigEndian.PutUint16(buf[3+len(id):], rows)
	return buf
}

// DecodeOpen unpacks an OpStreamOpen payload.
func DecodeOpen(payload []byte) (id string, cols, rows uint16, err error) {
	if len(payload) < 1 {
		return "", 0, 0, fmt.Errorf("relay: open payload too short")
	}
	idLen := int(payload[0])
	if len(payload) != 1+idLen+4 {
		return "", 0, 0, fmt.Errorf("relay: open payload has wrong length for id of %d bytes", idLen)
	}
	id = string(payload[1 : 1+idLen])
	cols = binary.BigEndian.Uint16(payload[1+idLen : 3+idLen])
	rows = binary.BigEndian.Uint16(payload[3+idLen : 5+idLen])
	return id, cols, rows, nil
}

// Writer exposes just what PumpStream needs from a terminal manager,
// so this package stays independent of internal/terminal's full API.
type Writer interface {
	SendData(id string, data []byte) bool
	Resize(id string, cols, rows uint16) bool
	Close(id string) bool
}

// PumpStream reads frames from one terminal's dedicated yamux stream
// and applies them to mgr, until the stream errors or an
// OpStreamClose frame arrives. Errors are logged, not returned: a
// single bad stream must not take down the relay session.
func PumpStream(stream io.ReadWriteCloser, id string, mgr Writer) {
	defer stream.Close()
	for {
		frame, err := ReadFrame(stream)
		if err != nil {
			logger.Debugf("[relay] stream %s ended: %v", id, err)
			return
		}
		switch frame.Opcode {
		case OpStreamData:
			mgr.SendData(id, frame.Payload)
		case OpStreamResize:
			cols, rows, err := DecodeResize(frame.Payload)
			if err != nil {
				logger.Warnf("[relay] stream %s bad resize frame: %v", id, err)
				continue
			}
			mgr.Resize(id, cols, rows)
		case OpStreamClose:
			mgr.Close(id)
			return
		default:
			logger.Warnf("[relay] stream %s unknown opcode %#x", id, frame.Opcode)
		}
	}
}

// WriteData frames and writes one terminal-data chunk onto stream.
func WriteData(stream io.Writer, data []byte) error {
	return WriteFrame(stream, StreamFrame{Opcode: OpStreamData, Payload: data})
}

// Package wstransport is the host bridge's default, always-available
// transport: a gorilla/websocket connection carrying the wire channels
// as JSON envelopes tagged by "type".
package wstransport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/bridge"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// envelope is the renderer<->host wire shape: Type discriminates the
// channel, RequestID correlates an invoke's request with its reply,
// and Payload/Error/Data carry the channel-specific body.
type envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Data      any             `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Transport is a bridge.Transport backed by one websocket connection.
type Transport struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	closed    uint32
}

// Upgrade upgrades an HTTP request to a websocket and returns the
// Transport wrapping it.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn}, nil
}

// Send implements bridge.Transport: it writes one envelope tagged by
// channel. Safe for concurrent use.
func (t *Transport) Send(channel string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(envelope{Type: channel, Data: payload})
}

// Connected implements bridge.Transport.
func (t *Transport) Connected() bool {
	return atomic.LoadUint32(&t.closed) == 0
}

// Close closes the underlying connection exactly once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.conn.Close()
		t.mu.Unlock()
		atomic.StoreUint32(&t.closed, 1)
	})
	return err
}

func (t *Transport) writeResponse(resp envelope) {
	t.mu.Lock()
	err := t.conn.WriteJSON(resp)
	t.mu.Unlock()
	if err != nil {
		logger.Warnf("[wstransport] write response %s failed: %v", resp.Type, err)
	}
}

// Serve runs the read loop: it decodes incoming envelopes and
// dispatches them onto b, until ctx is done or the connection errors.
// Invoke channels get a correlated response; fire-and-forget channels
// get none. Serve blocks; call it from its own goroutine per
// connection.
func Serve(ctx context.Context, t *Transport, b *bridge.Bridge) {
	defer func() { _ = t.Close() }()

	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			logger.Debugf("[wstransport] read loop ending: %v", err)
			return
		}

		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warnf("[wstransport] invalid envelope: %v", err)
			continue
		}
		t.dispatch(ctx, b, msg)
	}
}

func (t *Transport) dispatch(ctx context.Context, b *bridge.Bridge, msg envelope) {
	switch msg.Type {
	case bridge.ChannelCreateTerminal:
		var in bridge.CreateTerminalMessage
		if err := json.Unmarshal(msg.Payload, &in); err != nil {
			t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Error: err.Error()})
			return
		}
		resp, err := b.CreateTerminal(ctx, in)
		if err != nil {
			t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Error: err.Error()})
			return
		}
		t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Data: resp})

	case bridge.ChannelListTerminals:
		t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Data: b.ListTerminals()})

	case bridge.ChannelListBackends:
		t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Data: b.ListBackends(ctx)})

	case bridge.ChannelTerminalBacklog:
		var id string
		if err := json.Unmarshal(msg.Payload, &id); err != nil {
			t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Error: err.Error()})
			return
		}
		backlog, ok := b.TerminalBacklog(id)
		if !ok {
			t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Error: "terminal not found"})
			return
		}
		t.writeResponse(envelope{Type: msg.Type, RequestID: msg.RequestID, Data: backlog})

	case bridge.ChannelTerminalInput:
		var in bridge.TerminalInputMessage
		if err := json.Unmarshal(msg.Payload, &in); err == nil {
			b.TerminalInput(in)
		}

	case bridge.ChannelResizeTerminal:
		var in bridge.TerminalResizeMessage
		if err := json.Unmarshal(msg.Payload, &in); err == nil {
			b.ResizeTerminal(in)
		}

	case bridge.ChannelCloseTerminal:
		var id string
		if err := json.Unmarshal(msg.Payload, &id); err == nil {
			b.CloseTerminal(id)
		}

	default:
		logger.Warnf("[wstransport] unknown channel %q", msg.Type)
	}
}

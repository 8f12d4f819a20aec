// Package bridge implements the host bridge: the translation layer
// between the in-process terminal manager and the wire channels
// consumed by a renderer over some Transport (normally
// internal/bridge/wstransport).
package bridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/ptybackend"
	"github.com/hatcherdx/termcore/internal/ptyfactory"
	"github.com/hatcherdx/termcore/internal/relay"
	"github.com/hatcherdx/termcore/internal/terminal"
)

// Wire channel names. Every terminal-related identifier contains the
// word "terminal" except the backend-diagnostics channel, which is
// deliberately generic since it predates any particular terminal.
const (
	ChannelTerminalCreated = "terminal-created"
	ChannelTerminalData    = "terminal-data"
	ChannelTerminalExit    = "terminal-exit"
	ChannelTerminalError   = "terminal-error"

	ChannelCreateTerminal  = "create-terminal"
	ChannelTerminalInput   = "terminal-input"
	ChannelCloseTerminal   = "close-terminal"
	ChannelResizeTerminal  = "resize-terminal"
	ChannelListTerminals   = "list-terminals"
	ChannelTerminalBacklog = "terminal-backlog"

	ChannelListBackends = "list-backends"
)

// Transport is whatever carries wire messages to the renderer. Send
// must be safe for concurrent use; Connected reports whether a send
// would currently succeed, so the Bridge can drop outbound
// notifications silently instead of erroring.
type Transport interface {
	Send(channel string, payload any) error
	Connected() bool
}

// CreateTerminalMessage is the create-terminal invoke payload.
type CreateTerminalMessage struct {
	Name  string            `json:"name,omitempty"`
	Shell string            `json:"shell,omitempty"`
	Cwd   string            `json:"cwd,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
	Cols  uint16            `json:"cols,omitempty"`
	Rows  uint16            `json:"rows,omitempty"`
}

// TerminalCreatedMessage answers create-terminal and also backs the
// terminal-created notification.
type TerminalCreatedMessage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

// TerminalInputMessage is the terminal-input fire-and-forget payload.
type TerminalInputMessage struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// TerminalResizeMessage is the resize-terminal fire-and-forget payload.
type TerminalResizeMessage struct {
	ID   string `json:"id"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// TerminalDataMessage is the terminal-data notification payload.
type TerminalDataMessage struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// TerminalExitMessage is the terminal-exit notification payload.
type TerminalExitMessage struct {
	ID       string `json:"id"`
	ExitCode int    `json:"exitCode"`
}

// TerminalErrorMessage is the terminal-error notification payload.
// Error defaults to "Unknown error" when the source error has no
// message.
type TerminalErrorMessage struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// TerminalStateDTO is the list-terminals element shape.
type TerminalStateDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsActive     bool   `json:"isActive"`
	IsRunning    bool   `json:"isRunning"`
	PID          int    `json:"pid,omitempty"`
	ExitCode     int    `json:"exitCode,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	LastActivity int64  `json:"lastActivity"`
}

// BackendProbeDTO is one list-backends element.
type BackendProbeDTO struct {
	Kind         string                  `json:"kind"`
	Available    bool                    `json:"available"`
	Capabilities ptybackend.Capabilities `json:"capabilities"`
	Error        string                  `json:"error,omitempty"`
}

// Bridge holds a Terminal Manager and a handle to the renderer
// channel, and translates between in-process calls/events and the
// wire protocol.
type Bridge struct {
	terminals *terminal.Manager
	factory   *ptyfactory.Factory

	mu        sync.Mutex
	transport Transport

	relayMu      sync.Mutex
	relayStreams map[string]io.Writer
}

// NewBridge wires terminals' created/data/exit/error events into
// outbound notifications and returns the Bridge. factory backs the
// list-backends diagnostic channel.
func NewBridge(terminals *terminal.Manager, factory *ptyfactory.Factory) *Bridge {
	b := &Bridge{
		terminals:    terminals,
		factory:      factory,
		relayStreams: make(map[string]io.Writer),
	}
	terminals.OnCreated(b.onTerminalCreated)
	terminals.OnData(b.onTerminalData)
	terminals.OnExit(b.onTerminalExit)
	terminals.OnError(b.onTerminalError)
	return b
}

// SetTransport attaches (or detaches, with nil) the renderer channel.
func (b *Bridge) SetTransport(t Transport) {
	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
}

// send drops the payload silently if the renderer channel is
// disconnected or absent.
func (b *Bridge) send(channel string, payload any) {
	b.mu.Lock()
	t := b.transport
	b.mu.Unlock()
	if t == nil || !t.Connected() {
		return
	}
	if err := t.Send(channel, payload); err != nil {
		logger.Warnf("[bridge] send on %s failed: %v", channel, err)
	}
}

func (b *Bridge) onTerminalCreated(ev terminal.CreatedEvent) {
	b.send(ChannelTerminalCreated, TerminalCreatedMessage{ID: ev.ID, Name: ev.Name, PID: ev.PID})
}

func (b *Bridge) onTerminalData(ev terminal.DataEvent) {
	b.send(ChannelTerminalData, TerminalDataMessage{ID: ev.ID, Data: ev.Data})
	b.writeRelay(ev.ID, []byte(ev.Data))
}

func (b *Bridge) onTerminalExit(ev terminal.ExitEvent) {
	b.send(ChannelTerminalExit, TerminalExitMessage{ID: ev.ID, ExitCode: ev.ExitCode})
}

func (b *Bridge) onTerminalError(ev terminal.ErrorEvent) {
	msg := ev.Error
	if msg == "" {
		msg = "Unknown error"
	}
	b.send(ChannelTerminalError, TerminalErrorMessage{ID: ev.ID, Error: msg})
}

// CreateTerminal implements the create-terminal invoke channel.
func (b *Bridge) CreateTerminal(ctx context.Context, msg CreateTerminalMessage) (TerminalCreatedMessage, error) {
	id, err := b.terminals.Create(ctx, terminal.CreateOptions{
		Name: msg.Name,
		SpawnOptions: ptybackend.SpawnOptions{
			Shell: msg.Shell,
			Cwd:   msg.Cwd,
			Env:   msg.Env,
			Cols:  msg.Cols,
			Rows:  msg.Rows,
		},
	})
	if err != nil {
		return TerminalCreatedMessage{}, err
	}
	state, _ := b.terminals.Get(id)
	return TerminalCreatedMessage{ID: id, Name: state.Name, PID: state.PID}, nil
}

// TerminalInput implements the terminal-input fire-and-forget channel.
func (b *Bridge) TerminalInput(msg TerminalInputMessage) {
	b.terminals.SendData(msg.ID, []byte(msg.Data))
}

// ResizeTerminal implements the resize-terminal fire-and-forget channel.
func (b *Bridge) ResizeTerminal(msg TerminalResizeMessage) {
	b.terminals.Resize(msg.ID, msg.Cols, msg.Rows)
}

// CloseTerminal implements the close-terminal fire-and-forget channel.
func (b *Bridge) CloseTerminal(id string) {
	b.terminals.Close(id)
}

// ListTerminals implements the list-terminals invoke channel.
func (b *Bridge) ListTerminals() []TerminalStateDTO {
	states := b.terminals.All()
	out := make([]TerminalStateDTO, 0, len(states))
	for _, s := range states {
		out = append(out, TerminalStateDTO{
			ID:           s.ID,
			Name:         s.Name,
			IsActive:     s.IsActive,
			IsRunning:    s.IsRunning,
			PID:          s.PID,
			ExitCode:     s.ExitCode,
			CreatedAt:    s.CreatedAt.UnixMilli(),
			LastActivity: s.LastActivity.UnixMilli(),
		})
	}
	return out
}

// TerminalBacklog implements the terminal-backlog invoke channel: it
// returns the retained scrollback for id without draining it, for a
// renderer reconnecting to an already-running terminal.
func (b *Bridge) TerminalBacklog(id string) (string, bool) {
	return b.terminals.Backlog(id)
}

// ListBackends implements the diagnostic list-backends invoke channel.
func (b *Bridge) ListBackends(ctx context.Context) []BackendProbeDTO {
	probes := b.factory.TestAllBackends(ctx)
	out := make([]BackendProbeDTO, 0, len(probes))
	for _, p := range probes {
		out = append(out, BackendProbeDTO{
			Kind:         string(p.Kind),
			Available:    p.Available,
			Capabilities: p.Capabilities,
			Error:        p.Error,
		})
	}
	return out
}

// OpenRelay accepts a yamux session over conn and serves its streams:
// each stream opens by declaring a terminal id via an OpStreamOpen
// frame, after which
// terminal-input/resize/close frames on that stream apply directly to
// terminals, and terminal-data for that id is additionally mirrored
// onto the stream by writeRelay, bypassing the JSON wire channel for
// bulk output. OpenRelay blocks until the session's accept loop ends.
func (b *Bridge) OpenRelay(conn net.Conn) error {
	session, err := relay.NewServerSession(conn)
	if err != nil {
		return fmt.Errorf("bridge: open relay: %w", err)
	}
	b.acceptRelayStreams(session)
	return nil
}

func (b *Bridge) acceptRelayStreams(session *relay.Session) {
	for {
		stream, err := session.Accept()
		if err != nil {
			logger.Debugf("[bridge] relay session accept loop ending: %v", err)
			return
		}
		go b.serveRelayStream(stream)
	}
}

func (b *Bridge) serveRelayStream(stream net.Conn) {
	frame, err := relay.ReadFrame(stream)
	if err != nil {
		logger.Warnf("[bridge] relay stream closed before open frame: %v", err)
		_ = stream.Close()
		return
	}
	if frame.Opcode != relay.OpStreamOpen {
		logger.Warnf("[bridge] relay stream's first frame was opcode %#x, not OpStreamOpen", frame.Opcode)
		_ = stream.Close()
		return
	}
	id, cols, rows, err := relay.DecodeOpen(frame.Payload)
	if err != nil {
		logger.Warnf("[bridge] bad relay open frame: %v", err)
		_ = stream.Close()
		return
	}
	b.terminals.Resize(id, cols, rows)

	b.relayMu.Lock()
	b.relayStreams[id] = stream
	b.relayMu.Unlock()
	defer func() {
		b.relayMu.Lock()
		if b.relayStreams[id] == io.Writer(stream) {
			delete(b.relayStreams, id)
		}
		b.relayMu.Unlock()
	}()

	relay.PumpStream(stream, id, b.terminals)
}

// writeRelay mirrors one terminal-data chunk onto id's relay stream, if
// a renderer has opened one. Write errors are logged, not propagated:
// the JSON terminal-data notification already carries the same bytes.
func (b *Bridge) writeRelay(id string, data []byte) {
	b.relayMu.Lock()
	stream, ok := b.relayStreams[id]
	b.relayMu.Unlock()
	if !ok {
		return
	}
	if err := relay.WriteData(stream, data); err != nil {
		logger.Warnf("[bridge] relay write id=%s failed: %v", id, err)
	}
}

// Cleanup disposes the Terminal Manager (which also drops this
// Bridge's own listeners) and detaches the transport.
func (b *Bridge) Cleanup() {
	b.terminals.Cleanup()
	b.SetTransport(nil)
}

package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hatcherdx/termcore/internal/process"
	"github.com/hatcherdx/termcore/internal/ptybackend"
	"github.com/hatcherdx/termcore/internal/ptyfactory"
	"github.com/hatcherdx/termcore/internal/terminal"
)

type fakeBackend struct {
	available bool
	procs     []*fakeProcess
}

func (f *fakeBackend) Kind() ptybackend.BackendKind          { return ptybackend.KindSubprocess }
func (f *fakeBackend) Capabilities() ptybackend.Capabilities { return ptybackend.Capabilities{} }
func (f *fakeBackend) IsAvailable(ctx context.Context) bool  { return f.available }
func (f *fakeBackend) Spawn(ctx context.Context, opts ptybackend.SpawnOptions) (ptybackend.BackendProcess, error) {
	p := &fakeProcess{EventHub: ptybackend.NewEventHub(), pid: 77}
	f.procs = append(f.procs, p)
	return p, nil
}

type fakeProcess struct {
	ptybackend.EventHub
	pid int
}

func (p *fakeProcess) PID() int                      { return p.pid }
func (p *fakeProcess) Write(data []byte) error        { return nil }
func (p *fakeProcess) Resize(cols, rows uint16) error { return nil }
func (p *fakeProcess) Kill(signal string) error       { return nil }
func (p *fakeProcess) Info() ptybackend.ProcessInfo   { return ptybackend.ProcessInfo{PID: p.pid} }

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []sentMessage
}

type sentMessage struct {
	Channel string
	Payload any
}

func (t *fakeTransport) Send(channel string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMessage{Channel: channel, Payload: payload})
	return nil
}
func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
func (t *fakeTransport) snapshot() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *fakeBackend, *ptyfactory.Factory) {
	t.Helper()
	sub := &fakeBackend{available: true}
	factory := ptyfactory.NewFactoryForTesting(&fakeBackend{available: false}, sub)
	tm := terminal.NewManager(process.NewManager(factory))
	return NewBridge(tm, factory), sub, factory
}

func TestCreateTerminalReturnsIDNameAndPID(t *testing.T) {
	b, _, _ := newTestBridge(t)
	resp, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{Name: "work"})
	require.NoError(t, err)
	require.Equal(t, "work", resp.Name)
	require.Equal(t, 77, resp.PID)
	require.NotEmpty(t, resp.ID)
}

func TestNotificationsDroppedWhenTransportDisconnected(t *testing.T) {
	b, sub, _ := newTestBridge(t)
	transport := &fakeTransport{connected: false}
	b.SetTransport(transport)

	_, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{})
	require.NoError(t, err)
	sub.procs[0].EmitData("dropped")

	require.Empty(t, transport.snapshot())
}

func TestNotificationsDeliveredWhenTransportConnected(t *testing.T) {
	b, sub, _ := newTestBridge(t)
	transport := &fakeTransport{connected: true}
	b.SetTransport(transport)

	_, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{})
	require.NoError(t, err)

	sent := transport.snapshot()
	require.NotEmpty(t, sent)
	require.Equal(t, ChannelTerminalCreated, sent[0].Channel)

	sub.procs[0].EmitData("hello")
	sent = transport.snapshot()
	last := sent[len(sent)-1]
	require.Equal(t, ChannelTerminalData, last.Channel)
	require.Equal(t, TerminalDataMessage{ID: sent[0].Payload.(TerminalCreatedMessage).ID, Data: "hello"}, last.Payload)
}

func TestTerminalErrorDefaultsMessageWhenEmpty(t *testing.T) {
	b, sub, _ := newTestBridge(t)
	transport := &fakeTransport{connected: true}
	b.SetTransport(transport)

	_, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{})
	require.NoError(t, err)

	sub.procs[0].EmitError(errEmptyMessage{})

	sent := transport.snapshot()
	last := sent[len(sent)-1]
	require.Equal(t, ChannelTerminalError, last.Channel)
	require.Equal(t, "Unknown error", last.Payload.(TerminalErrorMessage).Error)
}

type errEmptyMessage struct{}

func (errEmptyMessage) Error() string { return "" }

func TestListTerminalsReflectsCreatedEntries(t *testing.T) {
	b, _, _ := newTestBridge(t)
	_, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{Name: "a"})
	require.NoError(t, err)
	_, err = b.CreateTerminal(context.Background(), CreateTerminalMessage{Name: "b"})
	require.NoError(t, err)

	list := b.ListTerminals()
	require.Len(t, list, 2)
}

func TestTerminalBacklogReflectsEmittedData(t *testing.T) {
	b, sub, _ := newTestBridge(t)
	resp, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{Name: "work"})
	require.NoError(t, err)

	sub.procs[0].EmitData("line one\n")

	backlog, ok := b.TerminalBacklog(resp.ID)
	require.True(t, ok)
	require.Equal(t, "line one\n", backlog)

	_, ok = b.TerminalBacklog("missing")
	require.False(t, ok)
}

func TestListBackendsProbesBothKinds(t *testing.T) {
	b, _, _ := newTestBridge(t)
	probes := b.ListBackends(context.Background())
	require.Len(t, probes, 2)
}

func TestCleanupDetachesTransportAndClearsTerminals(t *testing.T) {
	b, _, _ := newTestBridge(t)
	transport := &fakeTransport{connected: true}
	b.SetTransport(transport)

	_, err := b.CreateTerminal(context.Background(), CreateTerminalMessage{})
	require.NoError(t, err)

	b.Cleanup()
	require.Empty(t, b.ListTerminals())
}

// Package process implements the process manager: the layer that owns
// every live backend process by an opaque id and fans its
// data/exit/error events up to whatever owns the Manager (normally the
// terminal manager).
package process

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/eventbus"
	"github.com/hatcherdx/termcore/internal/ptybackend"
	"github.com/hatcherdx/termcore/internal/ptyfactory"
)

// Errors surfaced by the Manager. Unknown-id and not-running cases
// never raise through the bool-returning operations below; ErrDisposed
// is the one case that does raise, from Spawn.
var (
	ErrNotFound = errors.New("process: terminal id not found")
	ErrNotRunning = errors.New("process: terminal is not running")
	ErrDisposed = errors.New("process: manager disposed")
)

// State is the lifecycle of one TerminalProcess. It only ever moves
// forward: Starting -> Running -> {Exited | Error}.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateError    State = "error"
)

// TerminalProcess is the Manager's record for one spawned backend
// process. ExitCode and Err are only meaningful once State reaches the
// matching terminal value.
type TerminalProcess struct {
	ID           string
	Backend      ptybackend.BackendProcess
	Info         ptybackend.ProcessInfo
	Capabilities ptybackend.Capabilities
	State        State
	ExitCode     int
	Err          error
}

// CreatedEvent is emitted once a spawn completes and the entry is live.
type CreatedEvent struct {
	ID  string
	PID int
}

// DataEvent carries one chunk of output for a terminal id.
type DataEvent struct {
	ID   string
	Data string
}

// ExitEvent reports a terminal's final exit code.
type ExitEvent struct {
	ID       string
	ExitCode int
}

// ErrorEvent reports a runtime backend fault for a still-retained entry.
type ErrorEvent struct {
	ID  string
	Err error
}

const (
	evCreated = "process_created"
	evData    = "process_data"
	evExit    = "process_exit"
	evError   = "process_error"
)

// Manager owns the id -> TerminalProcess map and wires every spawned
// process's backend events into its own process_* notifications.
type Manager struct {
	factory *ptyfactory.Factory
	newID   func() string

	mu       sync.Mutex
	procs    map[string]*TerminalProcess
	disposed bool

	created *eventbus.Bus[CreatedEvent]
	data    *eventbus.Bus[DataEvent]
	exit    *eventbus.Bus[ExitEvent]
	fault   *eventbus.Bus[ErrorEvent]
}

// NewManager returns a Manager backed by factory. Tests that need
// deterministic ids can set Manager.newID after construction.
func NewManager(factory *ptyfactory.Factory) *Manager {
	return &Manager{
		factory: factory,
		newID:   uuid.NewString,
		procs:   make(map[string]*TerminalProcess),
		created: eventbus.New[CreatedEvent](),
		data:    eventbus.New[DataEvent](),
		exit:    eventbus.New[ExitEvent](),
		fault:   eventbus.New[ErrorEvent](),
	}
}

func (m *Manager) OnCreated(fn func(CreatedEvent)) uint64 { return m.created.On(evCreated, fn) }
func (m *Manager) OnData(fn func(DataEvent)) uint64       { return m.data.On(evData, fn) }
func (m *Manager) OnExit(fn func(ExitEvent)) uint64       { return m.exit.On(evExit, fn) }
func (m *Manager) OnError(fn func(ErrorEvent)) uint64     { return m.fault.On(evError, fn) }

// Spawn assigns a fresh id, asks the factory for a process, wires its
// backend event subscriptions, and inserts it as Running. The entry is
// never left in Starting once Spawn returns: the backend's Spawn call
// itself is the only suspension point.
func (m *Manager) Spawn(ctx context.Context, opts ptybackend.SpawnOptions) (string, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return "", ErrDisposed
	}
	m.mu.Unlock()

	result, err := m.factory.CreateTerminal(ctx, opts)
	if err != nil {
		return "", err
	}

	id := m.newID()
	entry := &TerminalProcess{
		ID:           id,
		Backend:      result.Process,
		Info:         result.Process.Info(),
		Capabilities: result.Capabilities,
		State:        StateRunning,
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		_ = result.Process.Kill("")
		return "", ErrDisposed
	}
	m.procs[id] = entry
	m.mu.Unlock()

	m.wire(id, result.Process)

	m.created.Emit(evCreated, CreatedEvent{ID: id, PID: entry.Info.PID})
	return id, nil
}

func (m *Manager) wire(id string, backend ptybackend.BackendProcess) {
	backend.OnData(func(chunk string) {
		m.data.Emit(evData, DataEvent{ID: id, Data: chunk})
	})
	backend.OnExit(func(ev ptybackend.ExitEvent) {
		m.mu.Lock()
		entry, ok := m.procs[id]
		if !ok {
			m.mu.Unlock()
			return // cleanup already cleared the map; drop silently.
		}
		entry.State = StateExited
		entry.ExitCode = ev.ExitCode
		delete(m.procs, id)
		m.mu.Unlock()

		m.exit.Emit(evExit, ExitEvent{ID: id, ExitCode: ev.ExitCode})
	})
	backend.OnError(func(err error) {
		m.mu.Lock()
		entry, ok := m.procs[id]
		if ok {
			entry.State = StateError
			entry.Err = err
		}
		m.mu.Unlock()
		if !ok {
			return
		}
		m.fault.Emit(evError, ErrorEvent{ID: id, Err: err})
	})
}

// Write returns true iff id exists and is Running; write errors are
// logged, not propagated.
func (m *Manager) Write(id string, data []byte) bool {
	m.mu.Lock()
	entry, ok := m.procs[id]
	if !ok || entry.State != StateRunning {
		m.mu.Unlock()
		return false
	}
	backend := entry.Backend
	m.mu.Unlock()

	if err := backend.Write(data); err != nil {
		logger.Errorf("[process] write id=%s failed: %v", id, err)
		return false
	}
	return true
}

// Resize forwards to the backend; backends without real resize support
// report success without effect.
func (m *Manager) Resize(id string, cols, rows uint16) bool {
	m.mu.Lock()
	entry, ok := m.procs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := entry.Backend.Resize(cols, rows); err != nil {
		logger.Errorf("[process] resize id=%s failed: %v", id, err)
		return false
	}
	return true
}

// Kill forwards to the backend. It does not wait for exit: the
// eventual exit event is the completion signal.
func (m *Manager) Kill(id string, signal string) bool {
	m.mu.Lock()
	entry, ok := m.procs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := entry.Backend.Kill(signal); err != nil {
		logger.Errorf("[process] kill id=%s failed: %v", id, err)
		return false
	}
	return true
}

// Get returns a snapshot of one entry.
func (m *Manager) Get(id string) (TerminalProcess, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.procs[id]
	if !ok {
		return TerminalProcess{}, false
	}
	return *entry, true
}

// All returns a snapshot of every live entry.
func (m *Manager) All() []TerminalProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TerminalProcess, 0, len(m.procs))
	for _, entry := range m.procs {
		out = append(out, *entry)
	}
	return out
}

// Cleanup kills every Running process best-effort, clears the map, and
// drops the Manager's own listeners. Per-process kill errors are
// swallowed.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	entries := make([]*TerminalProcess, 0, len(m.procs))
	for _, entry := range m.procs {
		entries = append(entries, entry)
	}
	m.procs = make(map[string]*TerminalProcess)
	m.disposed = true
	m.mu.Unlock()

	for _, entry := range entries {
		if entry.State == StateRunning {
			_ = entry.Backend.Kill("")
		}
	}

	m.created.RemoveAll("")
	m.data.RemoveAll("")
	m.exit.RemoveAll("")
	m.fault.RemoveAll("")
}

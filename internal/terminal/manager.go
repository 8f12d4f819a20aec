// Package terminal implements the terminal manager: user-facing state
// layered on top of the process manager's opaque ids — names, activity
// timestamps, a bounded scrollback backlog, and the
// single-active-terminal invariant.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hatcherdx/termcore/internal/eventbus"
	"github.com/hatcherdx/termcore/internal/process"
	"github.com/hatcherdx/termcore/internal/ptybackend"
)

// ErrDisposed is raised by Create once the Manager has been cleaned up.
var ErrDisposed = errors.New("terminal: manager disposed")

// State is the Terminal Manager's user-facing view of a process.
type State struct {
	ID           string
	Name         string
	IsActive     bool
	IsRunning    bool
	PID          int
	ExitCode     int
	CreatedAt    time.Time
	LastActivity time.Time
}

// backlogCap bounds the retained scrollback per terminal, so a
// reconnecting renderer can replay recent output without the buffer
// growing unbounded.
const backlogCap = 256 * 1024

// appendBacklog appends p to backlog, keeping only its tail once the
// combined length exceeds backlogCap.
func appendBacklog(backlog, p []byte) []byte {
	if len(p) >= backlogCap {
		return append(backlog[:0], p[len(p)-backlogCap:]...)
	}
	if len(backlog)+len(p) > backlogCap {
		backlog = append(backlog[(len(backlog)+len(p))-backlogCap:], p...)
	} else {
		backlog = append(backlog, p...)
	}
	return backlog
}

// CreateOptions extends a backend spawn with the caller-visible name.
type CreateOptions struct {
	Name string
	ptybackend.SpawnOptions
}

// CreatedEvent, DataEvent, ExitEvent and ErrorEvent are the Terminal
// Manager's own notification payloads; DataEvent, ExitEvent and
// ErrorEvent each carry a timestamp separate from the Process Manager's
// raw events.
type CreatedEvent struct {
	ID   string
	Name string
	PID  int
}

type DataEvent struct {
	ID        string
	Data      string
	Timestamp time.Time
}

type ExitEvent struct {
	ID        string
	ExitCode  int
	Timestamp time.Time
}

type ErrorEvent struct {
	ID        string
	Error     string
	Timestamp time.Time
}

const (
	evCreated = "terminal_created"
	evData    = "terminal_data"
	evExit    = "terminal_exit"
	evError   = "terminal_error"
)

// Manager adds human-meaningful state to every process it creates.
type Manager struct {
	procs *process.Manager

	mu       sync.Mutex
	states   map[string]*State
	backlogs map[string][]byte
	counter  int
	disposed bool

	created *eventbus.Bus[CreatedEvent]
	data    *eventbus.Bus[DataEvent]
	exit    *eventbus.Bus[ExitEvent]
	fault   *eventbus.Bus[ErrorEvent]

	now func() time.Time
}

// NewManager returns a Manager wired to forward procs' process_* events
// into terminal_* notifications.
func NewManager(procs *process.Manager) *Manager {
	m := &Manager{
		procs:    procs,
		states:   make(map[string]*State),
		backlogs: make(map[string][]byte),
		created:  eventbus.New[CreatedEvent](),
		data:    eventbus.New[DataEvent](),
		exit:    eventbus.New[ExitEvent](),
		fault:   eventbus.New[ErrorEvent](),
		now:     time.Now,
	}
	procs.OnData(m.onProcessData)
	procs.OnExit(m.onProcessExit)
	procs.OnError(m.onProcessError)
	return m
}

func (m *Manager) OnCreated(fn func(CreatedEvent)) uint64 { return m.created.On(evCreated, fn) }
func (m *Manager) OnData(fn func(DataEvent)) uint64       { return m.data.On(evData, fn) }
func (m *Manager) OnExit(fn func(ExitEvent)) uint64       { return m.exit.On(evExit, fn) }
func (m *Manager) OnError(fn func(ErrorEvent)) uint64     { return m.fault.On(evError, fn) }

// Create spawns a process and wraps it with a fresh State. Names are
// assigned "Terminal N" from a monotonic counter when the caller
// supplies none.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (string, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return "", ErrDisposed
	}
	m.mu.Unlock()

	id, err := m.procs.Spawn(ctx, opts.SpawnOptions)
	if err != nil {
		return "", err
	}

	proc, _ := m.procs.Get(id)

	m.mu.Lock()
	name := opts.Name
	if name == "" {
		m.counter++
		name = fmt.Sprintf("Terminal %d", m.counter)
	}
	now := m.now()
	m.states[id] = &State{
		ID:           id,
		Name:         name,
		IsActive:     false,
		IsRunning:    true,
		PID:          proc.Info.PID,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.mu.Unlock()

	m.created.Emit(evCreated, CreatedEvent{ID: id, Name: name, PID: proc.Info.PID})
	return id, nil
}

// Backlog returns the retained scrollback for id without draining it, so a
// reconnecting renderer can replay recent output.
func (m *Manager) Backlog(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return "", false
	}
	return string(m.backlogs[id]), true
}

// SendData updates last activity and delegates to the Process Manager.
func (m *Manager) SendData(id string, data []byte) bool {
	m.mu.Lock()
	state, ok := m.states[id]
	if ok && state.IsRunning {
		state.LastActivity = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.procs.Write(id, data)
}

// Resize delegates to the Process Manager.
func (m *Manager) Resize(id string, cols, rows uint16) bool {
	return m.procs.Resize(id, cols, rows)
}

// Close kills the backing process; on success it marks the terminal
// not-running (the process_exit forwarder deletes the state on its own
// once the exit event arrives, so this call is not required for
// correctness, just for callers that want an immediate local read).
func (m *Manager) Close(id string) bool {
	if !m.procs.Kill(id, "") {
		return false
	}
	m.mu.Lock()
	if state, ok := m.states[id]; ok {
		state.IsRunning = false
	}
	m.mu.Unlock()
	return true
}

// SetActive deactivates every other terminal and activates id. At most
// one terminal is active at any time once any terminal exists.
func (m *Manager) SetActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.states[id]
	if !ok {
		return false
	}
	for other, state := range m.states {
		state.IsActive = other == id
	}
	target.LastActivity = m.now()
	return true
}

// Get returns a snapshot of one terminal's state.
func (m *Manager) Get(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// All returns a snapshot of every terminal's state.
func (m *Manager) All() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, *state)
	}
	return out
}

// Active returns the currently active terminal, if any.
func (m *Manager) Active() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, state := range m.states {
		if state.IsActive {
			return *state, true
		}
	}
	return State{}, false
}

// RunningCount reports how many terminals are currently running.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, state := range m.states {
		if state.IsRunning {
			n++
		}
	}
	return n
}

func (m *Manager) onProcessData(ev process.DataEvent) {
	m.mu.Lock()
	state, ok := m.states[ev.ID]
	if ok {
		state.LastActivity = m.now()
		m.backlogs[ev.ID] = appendBacklog(m.backlogs[ev.ID], []byte(ev.Data))
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.data.Emit(evData, DataEvent{ID: ev.ID, Data: ev.Data, Timestamp: m.now()})
}

func (m *Manager) onProcessExit(ev process.ExitEvent) {
	m.mu.Lock()
	_, ok := m.states[ev.ID]
	if ok {
		delete(m.states, ev.ID)
		delete(m.backlogs, ev.ID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.exit.Emit(evExit, ExitEvent{ID: ev.ID, ExitCode: ev.ExitCode, Timestamp: m.now()})
}

func (m *Manager) onProcessError(ev process.ErrorEvent) {
	m.mu.Lock()
	state, ok := m.states[ev.ID]
	if ok {
		state.IsRunning = false
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.fault.Emit(evError, ErrorEvent{ID: ev.ID, Error: ev.Err.Error(), Timestamp: m.now()})
}

// Cleanup disposes the Process Manager, clears all terminal state, and
// drops this Manager's own listeners.
func (m *Manager) Cleanup() {
	m.procs.Cleanup()

	m.mu.Lock()
	m.states = make(map[string]*State)
	m.backlogs = make(map[string][]byte)
	m.disposed = true
	m.mu.Unlock()

	m.created.RemoveAll("")
	m.data.RemoveAll("")
	m.exit.RemoveAll("")
	m.fault.RemoveAll("")
}

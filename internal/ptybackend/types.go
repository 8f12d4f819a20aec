// Package ptybackend defines the uniform spawn/read/write/resize/kill
// contract over two concrete implementations — a native OS
// pseudoterminal and a pipe-based subprocess fallback — plus the shared
// environment and shell-resolution helpers both need.
package ptybackend

import (
	"context"
	"errors"
	"time"

	"github.com/hatcherdx/termcore/internal/eventbus"
)

// BackendKind tags which concrete backend produced a Capabilities/process.
type BackendKind string

const (
	KindNativePty  BackendKind = "native_pty"
	KindSubprocess BackendKind = "subprocess"
	// KindConPty and KindWinPty are reserved: the detector names them when
	// it identifies the platform as a ConPTY/winpty candidate, but both
	// fall through to the Subprocess implementation today.
	KindConPty BackendKind = "conpty"
	KindWinPty BackendKind = "winpty"
)

// Reliability is a coarse trust ranking used by the detector to order candidates.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Capabilities is an immutable record describing what a backend supports.
// Invariant: KindNativePty implies High reliability and resize support.
type Capabilities struct {
	Kind                  BackendKind
	SupportsResize        bool
	SupportsColors        bool
	SupportsInteractivity bool
	SupportsHistory       bool
	Reliability           Reliability
}

// Encoding selects how backend output bytes are interpreted before
// being handed to subscribers as the data event's string payload.
type Encoding string

const (
	EncodingUTF8 Encoding = "utf-8"
)

// SpawnOptions configures a new backend process. Empty strings are
// valid and mean "use the platform default"; Cols/Rows default to
// 80x24 when zero.
type SpawnOptions struct {
	Shell    string
	Cwd      string
	Env      map[string]string
	Cols     uint16
	Rows     uint16
	Encoding Encoding
}

// normalized returns a copy of opts with defaults applied.
func (o SpawnOptions) normalized() SpawnOptions {
	out := o
	if out.Cols == 0 {
		out.Cols = 80
	}
	if out.Rows == 0 {
		out.Rows = 24
	}
	if out.Encoding == "" {
		out.Encoding = EncodingUTF8
	}
	return out
}

// ProcessInfo is populated at spawn time and immutable thereafter.
type ProcessInfo struct {
	PID       int
	ParentPID int // 0 when unknown
	Name      string
	Cmd       string
	Cwd       string
	Env       map[string]string
	StartTime time.Time
}

// ExitEvent is the payload of a backend's exit event.
type ExitEvent struct {
	ExitCode int
}

// Errors surfaced by backends and the factory.
var (
	ErrNotAvailable  = errors.New("ptybackend: backend not available")
	ErrSpawnFailed   = errors.New("ptybackend: spawn failed")
	ErrAlreadyClosed = errors.New("ptybackend: process already closed")
)

// BackendProcess is the capability object a backend hands back on
// successful spawn. It is not an owned entity: the process manager owns
// the single instance returned by Spawn.
//
// Lifetime: from a successful Spawn until Exit or Error fires. After
// either, Write/Resize become no-ops and must not fault.
type BackendProcess interface {
	PID() int
	Write(data []byte) error
	// Resize forwards to the OS PTY when the backend supports it; for
	// backends that don't (Subprocess), it is a documented no-op that
	// still reports success.
	Resize(cols, rows uint16) error
	Kill(signal string) error

	// The observed event sequence for one process is any number of
	// data events followed by exactly one of exit or error.
	OnData(fn func(chunk string)) uint64
	OnExit(fn func(ExitEvent)) uint64
	OnError(fn func(error)) uint64

	Info() ProcessInfo
}

// Backend is a concrete implementation selectable by the detector/factory.
type Backend interface {
	Kind() BackendKind
	Capabilities() Capabilities
	// IsAvailable probes whether this backend can be used on the current
	// host. Implementations must not leave resources behind regardless
	// of outcome.
	IsAvailable(ctx context.Context) bool
	Spawn(ctx context.Context, opts SpawnOptions) (BackendProcess, error)
}

// EventHub is embedded by both concrete backends to implement the
// OnData/OnExit/OnError trio on top of a shared typed eventbus, instead
// of each backend hand-rolling its own listener bookkeeping.
type EventHub struct {
	data  *eventbus.Bus[string]
	exit  *eventbus.Bus[ExitEvent]
	fault *eventbus.Bus[error]
}

// NewEventHub constructs an empty hub. Concrete backends embed one.
func NewEventHub() EventHub {
	return EventHub{
		data:  eventbus.New[string](),
		exit:  eventbus.New[ExitEvent](),
		fault: eventbus.New[error](),
	}
}

const (
	evData  = "data"
	evExit  = "exit"
	evError = "error"
)

func (a *EventHub) OnData(fn func(string)) uint64   { return a.data.On(evData, fn) }
func (a *EventHub) OnExit(fn func(ExitEvent)) uint64 { return a.exit.On(evExit, fn) }
func (a *EventHub) OnError(fn func(error)) uint64    { return a.fault.On(evError, fn) }
func (a *EventHub) EmitData(chunk string)            { a.data.Emit(evData, chunk) }
func (a *EventHub) EmitExit(ev ExitEvent)             { a.exit.Emit(evExit, ev) }
func (a *EventHub) EmitError(err error)               { a.fault.Emit(evError, err) }

// Package nativepty implements the terminal core's high-fidelity
// backend: a true OS pseudoterminal via github.com/creack/pty, attached
// to the chosen shell as the session leader.
package nativepty

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/ptybackend"
	"github.com/hatcherdx/termcore/internal/procinfo"
)

// Backend is the native-PTY ptybackend.Backend implementation.
type Backend struct{}

// New returns a Backend value. It holds no state of its own; capability
// probing happens per call so a later environment change (e.g. the PTY
// device node disappearing) is always re-observed by IsAvailable.
func New() *Backend { return &Backend{} }

func (b *Backend) Kind() ptybackend.BackendKind { return ptybackend.KindNativePty }

func (b *Backend) Capabilities() ptybackend.Capabilities {
	return ptybackend.Capabilities{
		Kind:                  ptybackend.KindNativePty,
		SupportsResize:        true,
		SupportsColors:        true,
		SupportsInteractivity: true,
		SupportsHistory:       true,
		Reliability:           ptybackend.ReliabilityHigh,
	}
}

// IsAvailable probes by spawning a throwaway "echo test" PTY and
// immediately killing it.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "echo", "test")
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return false
	}
	_ = ptmx.Close()
	_ = cmd.Process.Kill()
	_, _ = cmd.Process.Wait()
	return true
}

// process is the ptybackend.BackendProcess for a native PTY session.
type process struct {
	ptybackend.EventHub

	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	info   ptybackend.ProcessInfo
	closed bool
}

func (b *Backend) Spawn(ctx context.Context, opts ptybackend.SpawnOptions) (ptybackend.BackendProcess, error) {
	shell := opts.Shell
	if shell == "" {
		shell = ptybackend.DefaultShell()
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd = ptybackend.HomeDir()
	}

	args := ptybackend.DefaultLoginArgs()
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Dir = cwd
	cmd.Env = ptybackend.BuildBaseEnv(opts)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols(opts), Rows: rows(opts)})
	if err != nil {
		logger.Errorf("[nativepty] spawn failed: %v", err)
		return nil, errors.Join(ptybackend.ErrSpawnFailed, err)
	}

	p := &process{
		EventHub: ptybackend.NewEventHub(),
		ptmx:     ptmx,
		cmd:      cmd,
		info: ptybackend.ProcessInfo{
			PID:       cmd.Process.Pid,
			Name:      shell,
			Cmd:       shell,
			Cwd:       cwd,
			Env:       opts.Env,
			StartTime: time.Now(),
		},
	}
	if meta, ok := procinfo.Lookup(cmd.Process.Pid); ok {
		p.info.ParentPID = meta.ParentPID
		p.info.StartTime = meta.StartTime
	}

	go p.pump()
	logger.Infof("[nativepty] started pid=%d shell=%s", p.info.PID, shell)
	return p, nil
}

func (p *process) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			p.EmitData(string(buf[:n]))
		}
		if err != nil {
			p.finish(err)
			return
		}
	}
}

func (p *process) finish(readErr error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	_ = p.ptmx.Close()
	err := p.cmd.Wait()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil && !errors.Is(readErr, io.EOF) {
		p.EmitError(err)
		return
	}
	p.EmitExit(ptybackend.ExitEvent{ExitCode: exitCode})
}

func (p *process) PID() int { return p.info.PID }

func (p *process) Info() ptybackend.ProcessInfo { return p.info }

func (p *process) Write(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}
	_, err := p.ptmx.Write(data)
	return err
}

func (p *process) Resize(cols, rows uint16) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// killEscalationTimeout bounds how long Kill waits for the session to
// exit on its own after the initial teardown signal before forcing it
// with SIGKILL.
const killEscalationTimeout = 750 * time.Millisecond

func (p *process) Kill(signal string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || p.cmd.Process == nil {
		return nil
	}
	if signal != "" {
		return p.cmd.Process.Signal(resolveSignal(signal))
	}

	// Default close: SIGHUP the whole process group first, then give
	// it killEscalationTimeout to exit via the ptmx EOF path (finish
	// observes that and performs the actual cmd.Wait) before forcing
	// it with SIGKILL. Kill itself never waits for exit: the eventual
	// exit event is the completion signal.
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGHUP); err != nil {
		return p.cmd.Process.Signal(syscall.SIGTERM)
	}
	time.AfterFunc(killEscalationTimeout, func() {
		p.mu.Lock()
		stillOpen := !p.closed
		p.mu.Unlock()
		if stillOpen {
			_ = p.cmd.Process.Kill()
		}
	})
	return nil
}

func resolveSignal(name string) os.Signal {
	switch name {
	case "", "SIGTERM":
		return syscall.SIGTERM
	case "SIGKILL":
		return syscall.SIGKILL
	case "SIGHUP":
		return syscall.SIGHUP
	case "SIGINT":
		return syscall.SIGINT
	default:
		return syscall.SIGTERM
	}
}

func cols(opts ptybackend.SpawnOptions) uint16 {
	if opts.Cols == 0 {
		return 80
	}
	return opts.Cols
}

func rows(opts ptybackend.SpawnOptions) uint16 {
	if opts.Rows == 0 {
		return 24
	}
	return opts.Rows
}

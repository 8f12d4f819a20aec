// Package subprocess implements the terminal core's pipe-based fallback
// backend: no real TTY, no resize, stdout/stderr merged and
// line-normalized. Always reports available.
package subprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/procinfo"
	"github.com/hatcherdx/termcore/internal/ptybackend"
)

// Backend is the subprocess ptybackend.Backend implementation.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Kind() ptybackend.BackendKind { return ptybackend.KindSubprocess }

func (b *Backend) Capabilities() ptybackend.Capabilities {
	return ptybackend.Capabilities{
		Kind:                  ptybackend.KindSubprocess,
		SupportsResize:        false,
		SupportsColors:        true,
		SupportsInteractivity: true,
		SupportsHistory:       true,
		Reliability:           ptybackend.ReliabilityMedium,
	}
}

// IsAvailable is always true: os/exec is always usable.
func (b *Backend) IsAvailable(ctx context.Context) bool { return true }

type process struct {
	ptybackend.EventHub

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
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

	args := ptybackend.LoginArgsFor(shell)
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Dir = cwd
	cmd.Env = ptybackend.BuildBaseEnv(opts)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Join(ptybackend.ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Join(ptybackend.ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Join(ptybackend.ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		logger.Errorf("[subprocess] spawn failed: %v", err)
		return nil, errors.Join(ptybackend.ErrSpawnFailed, err)
	}
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		return nil, fmt.Errorf("%w: no pid assigned", ptybackend.ErrSpawnFailed)
	}

	p := &process{
		EventHub: ptybackend.NewEventHub(),
		cmd:      cmd,
		stdin:    stdin,
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

	var wg sync.WaitGroup
	wg.Add(2)
	go p.pump(&wg, stdout)
	go p.pump(&wg, stderr)
	go p.waitAndFinish(&wg)

	logger.Infof("[subprocess] started pid=%d shell=%s", p.info.PID, shell)
	return p, nil
}

// pump reads raw bytes (not lines, so partial reads/binary-ish output
// still streams promptly) and normalizes line endings before emitting.
func (p *process) pump(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			p.EmitData(ptybackend.NormalizeLineEndings(string(buf[:n])))
		}
		if err != nil {
			return
		}
	}
}

func (p *process) waitAndFinish(wg *sync.WaitGroup) {
	wg.Wait() // both pipes drained
	err := p.cmd.Wait()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if exitErr, ok := err.(*exec.ExitError); ok {
		p.EmitExit(ptybackend.ExitEvent{ExitCode: exitErr.ExitCode()})
		return
	}
	if err != nil {
		p.EmitError(err)
		return
	}
	p.EmitExit(ptybackend.ExitEvent{ExitCode: 0})
}

func (p *process) PID() int                     { return p.info.PID }
func (p *process) Info() ptybackend.ProcessInfo { return p.info }

func (p *process) Write(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}
	_, err := p.stdin.Write(data)
	return err
}

// Resize is a documented no-op: the subprocess backend has no TTY.
func (p *process) Resize(cols, rows uint16) error {
	return nil
}

func (p *process) Kill(signal string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || p.cmd.Process == nil {
		return nil
	}
	sig := syscall.SIGTERM
	switch signal {
	case "SIGKILL":
		sig = syscall.SIGKILL
	case "SIGHUP":
		sig = syscall.SIGHUP
	case "SIGINT":
		sig = syscall.SIGINT
	}
	return p.cmd.Process.Signal(sig)
}

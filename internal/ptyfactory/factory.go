package ptyfactory

import (
	"context"
	"sync"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/ptybackend"
)

// Factory wraps the Detector and caches the selected backend instance
// and capabilities process-wide. It is an explicit value held by the
// host and passed down, never a package-level singleton, so tests can
// instantiate a fresh Factory without cache bleed.
type Factory struct {
	detector *Detector

	mu       sync.Mutex
	cached   ptybackend.Backend
	capable  ptybackend.Capabilities
	hasCache bool
}

// NewFactory returns a Factory with an empty cache.
func NewFactory() *Factory {
	return &Factory{detector: NewDetector()}
}

// newFactoryWithDetector lets tests swap in a Detector built over fake
// backends instead of probing the real host.
func newFactoryWithDetector(d *Detector) *Factory {
	return &Factory{detector: d}
}

// NewFactoryForTesting builds a Factory over caller-supplied backend
// implementations, so packages that merely consume a Factory (process
// manager, bridge) can exercise detector/degrade behavior in their own
// tests without depending on the host's real PTY support.
func NewFactoryForTesting(native, sub ptybackend.Backend) *Factory {
	return newFactoryWithDetector(newDetectorWithBackends(native, sub))
}

// CreateResult bundles a freshly spawned process with the capabilities
// of the backend that produced it.
type CreateResult struct {
	Process      ptybackend.BackendProcess
	Capabilities ptybackend.Capabilities
}

// CreateTerminal consults the cache; if empty, runs detection,
// instantiates the winning backend, verifies its live IsAvailable()
// still holds, and degrades to Subprocess on failure. It then spawns a
// process via the chosen backend. Errors from Spawn propagate to the
// caller; the cache is NOT invalidated on spawn failure — only
// ClearCache forces re-probing.
func (f *Factory) CreateTerminal(ctx context.Context, opts ptybackend.SpawnOptions) (CreateResult, error) {
	backend, caps := f.resolve(ctx)

	proc, err := backend.Spawn(ctx, opts)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Process: proc, Capabilities: caps}, nil
}

func (f *Factory) resolve(ctx context.Context) (ptybackend.Backend, ptybackend.Capabilities) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hasCache {
		return f.cached, f.capable
	}

	backend, kind := f.detector.Detect(ctx)
	if !backend.IsAvailable(ctx) {
		logger.Warnf("[ptyfactory] detected backend %s failed live availability check, degrading to subprocess", kind)
		backend = f.detector.sub
	}

	f.cached = backend
	f.capable = backend.Capabilities()
	f.hasCache = true
	return f.cached, f.capable
}

// ClearCache forces the next CreateTerminal to re-run detection.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasCache = false
	f.cached = nil
}

// BackendProbe is one row of TestAllBackends' diagnostic output.
type BackendProbe struct {
	Kind         ptybackend.BackendKind
	Available    bool
	Capabilities ptybackend.Capabilities
	Error        string
}

// TestAllBackends independently probes each implemented backend kind
// and returns diagnostics, regardless of the cache.
func (f *Factory) TestAllBackends(ctx context.Context) []BackendProbe {
	backends := []ptybackend.Backend{f.detector.native, f.detector.sub}
	probes := make([]BackendProbe, 0, len(backends))
	for _, b := range backends {
		available := b.IsAvailable(ctx)
		probes = append(probes, BackendProbe{
			Kind:         b.Kind(),
			Available:    available,
			Capabilities: b.Capabilities(),
		})
	}
	return probes
}

// Package ptyfactory implements the backend detector and factory:
// probing available backends, ranking them, and caching the
// process-wide choice until explicitly invalidated. It is the only
// package that knows about every concrete ptybackend.Backend
// implementation, which is what keeps nativepty/subprocess free of an
// import cycle back onto a shared "pick one" layer.
package ptyfactory

import (
	"context"
	"runtime"

	"github.com/hatcherdx/termcore/internal/ptybackend"
	"github.com/hatcherdx/termcore/internal/ptybackend/nativepty"
	"github.com/hatcherdx/termcore/internal/ptybackend/subprocess"
)

// Detector ranks candidate backends by availability, platform, and
// reliability, and returns the chosen Backend.
type Detector struct {
	native ptybackend.Backend
	sub    ptybackend.Backend

	// windowsBuildGTE17763 and winptyOnPath are overridable for tests;
	// production code uses the platform-default implementations below.
	windowsBuildGTE17763 func() bool
	winptyOnPath         func() bool
}

// NewDetector returns a Detector wired to the real native/subprocess backends.
func NewDetector() *Detector {
	return newDetector(nativepty.New(), subprocess.New())
}

// newDetectorWithBackends builds a Detector over arbitrary backend
// implementations — used by tests to simulate an unavailable native PTY
// without depending on the host's actual PTY support.
func newDetectorWithBackends(native, sub ptybackend.Backend) *Detector {
	return newDetector(native, sub)
}

func newDetector(native, sub ptybackend.Backend) *Detector {
	return &Detector{
		native:               native,
		sub:                  sub,
		windowsBuildGTE17763: func() bool { return false }, // no ConPTY implementation to select; always falls through
		winptyOnPath:         func() bool { return false },
	}
}

// Detect ranks the candidates: NativePty if available, else (on
// Windows) the ConPTY/WinPty candidates, which this implementation
// always reports as falling through, else Subprocess.
func (d *Detector) Detect(ctx context.Context) (ptybackend.Backend, ptybackend.BackendKind) {
	if d.native.IsAvailable(ctx) {
		return d.native, ptybackend.KindNativePty
	}
	if runtime.GOOS == "windows" {
		if d.windowsBuildGTE17763() {
			return d.sub, ptybackend.KindConPty
		}
		if d.winptyOnPath() {
			return d.sub, ptybackend.KindWinPty
		}
	}
	return d.sub, ptybackend.KindSubprocess
}

package ptyfactory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hatcherdx/termcore/internal/ptybackend"
)

func TestCreateTerminalCachesResolvedBackend(t *testing.T) {
	native := &fakeBackend{kind: ptybackend.KindNativePty, available: true, caps: ptybackend.Capabilities{Kind: ptybackend.KindNativePty}}
	sub := &fakeBackend{kind: ptybackend.KindSubprocess, available: true, caps: ptybackend.Capabilities{Kind: ptybackend.KindSubprocess}}
	f := newFactoryWithDetector(newDetectorWithBackends(native, sub))

	res, err := f.CreateTerminal(context.Background(), ptybackend.SpawnOptions{})
	require.NoError(t, err)
	require.Equal(t, ptybackend.KindNativePty, res.Capabilities.Kind)

	// Flip native's availability after the first resolve: the cached
	// choice must still be returned until ClearCache is called.
	native.available = false
	res2, err := f.CreateTerminal(context.Background(), ptybackend.SpawnOptions{})
	require.NoError(t, err)
	require.Equal(t, ptybackend.KindNativePty, res2.Capabilities.Kind)
}

func TestCreateTerminalDegradesOnLiveUnavailability(t *testing.T) {
	native := &fakeBackend{kind: ptybackend.KindNativePty, available: false, caps: ptybackend.Capabilities{Kind: ptybackend.KindNativePty}}
	sub := &fakeBackend{kind: ptybackend.KindSubprocess, available: true, caps: ptybackend.Capabilities{Kind: ptybackend.KindSubprocess}}
	f := newFactoryWithDetector(newDetectorWithBackends(native, sub))

	res, err := f.CreateTerminal(context.Background(), ptybackend.SpawnOptions{})
	require.NoError(t, err)
	require.Equal(t, ptybackend.KindSubprocess, res.Capabilities.Kind)
}

func TestClearCacheForcesReDetection(t *testing.T) {
	native := &fakeBackend{kind: ptybackend.KindNativePty, available: true, caps: ptybackend.Capabilities{Kind: ptybackend.KindNativePty}}
	sub := &fakeBackend{kind: ptybackend.KindSubprocess, available: true, caps: ptybackend.Capabilities{Kind: ptybackend.KindSubprocess}}
	f := newFactoryWithDetector(newDetectorWithBackends(native, sub))

	_, err := f.CreateTerminal(context.Background(), ptybackend.SpawnOptions{})
	require.NoError(t, err)

	native.available = false
	f.ClearCache()

	res, err := f.CreateTerminal(context.Background(), ptybackend.SpawnOptions{})
	require.NoError(t, err)
	require.Equal(t, ptybackend.KindSubprocess, res.Capabilities.Kind)
}

func TestCreateTerminalPropagatesSpawnError(t *testing.T) {
	spawnErr := errors.New("boom")
	native := &fakeBackend{kind: ptybackend.KindNativePty, available: true, spawnErr: spawnErr}
	sub := &fakeBackend{kind: ptybackend.KindSubprocess, available: true}
	f := newFactoryWithDetector(newDetectorWithBackends(native, sub))

	_, err := f.CreateTerminal(context.Background(), ptybackend.SpawnOptions{})
	require.ErrorIs(t, err, spawnErr)
}

func TestTestAllBackendsProbesBothKindsIndependently(t *testing.T) {
	native := &fakeBackend{kind: ptybackend.KindNativePty, available: false}
	sub := &fakeBackend{kind: ptybackend.KindSubprocess, available: true}
	f := newFactoryWithDetector(newDetectorWithBackends(native, sub))

	probes := f.TestAllBackends(context.Background())
	require.Len(t, probes, 2)
	require.Equal(t, ptybackend.KindNativePty, probes[0].Kind)
	require.False(t, probes[0].Available)
	require.Equal(t, ptybackend.KindSubprocess, probes[1].Kind)
	require.True(t, probes[1].Available)
}

package procinfo

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupSelf(t *testing.T) {
	meta, ok := Lookup(os.Getpid())
	require.True(t, ok)
	require.Equal(t, os.Getppid(), meta.ParentPID)
	require.False(t, meta.StartTime.IsZero())
}

func TestLookupBogusPIDFails(t *testing.T) {
	_, ok := Lookup(-1)
	require.False(t, ok)
}

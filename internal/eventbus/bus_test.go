package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitInRegistrationOrder(t *testing.T) {
	bus := New[int]()
	var order []int
	bus.On("e", func(v int) { order = append(order, v*10+1) })
	bus.On("e", func(v int) { order = append(order, v*10+2) })

	bus.Emit("e", 1)

	require.Equal(t, []int{11, 12}, order)
}

func TestListenerIsolation(t *testing.T) {
	bus := New[string]()
	var second string
	bus.On("e", func(string) { panic("boom") })
	bus.On("e", func(v string) { second = v })

	require.NotPanics(t, func() { bus.Emit("e", "ok") })
	require.Equal(t, "ok", second)
}

func TestOnceDetachesBeforeInvocation(t *testing.T) {
	bus := New[int]()
	calls := 0
	bus.Once("e", func(int) { calls++ })

	bus.Emit("e", 1)
	bus.Emit("e", 1)

	require.Equal(t, 1, calls)
	require.Equal(t, 0, bus.ListenerCount("e"))
}

func TestOffDuringEmitAppliesNextEmit(t *testing.T) {
	bus := New[int]()
	var calls int
	var id uint64
	id = bus.On("e", func(int) {
		calls++
		bus.Off("e", id)
	})

	bus.Emit("e", 1) // listener still fires once, even though it removed itself mid-dispatch
	require.Equal(t, 1, calls)

	bus.Emit("e", 1) // removal now in effect
	require.Equal(t, 1, calls)
}

func TestRemoveAll(t *testing.T) {
	bus := New[int]()
	bus.On("a", func(int) {})
	bus.On("b", func(int) {})
	require.Equal(t, 1, bus.ListenerCount("a"))

	bus.RemoveAll("a")
	require.Equal(t, 0, bus.ListenerCount("a"))
	require.Equal(t, 1, bus.ListenerCount("b"))

	bus.RemoveAll("")
	require.Equal(t, 0, bus.ListenerCount("b"))
}

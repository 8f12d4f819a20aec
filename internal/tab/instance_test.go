package tab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetTitleEmitsManagerTitleChanged(t *testing.T) {
	m, _ := newTestManager(t)
	id, err := m.Create(context.Background(), CreateConfig{Name: "first"})
	require.NoError(t, err)

	var changed TitleChangedEvent
	m.OnTitleChanged(func(ev TitleChangedEvent) { changed = ev })

	tab, ok := m.Get(id)
	require.True(t, ok)
	tab.Instance.SetTitle("vim main.go")

	require.Equal(t, id, changed.ID)
	require.Equal(t, "vim main.go", changed.Title)
	require.Equal(t, "vim main.go", tab.Instance.Title())
}

func TestInstanceFocusActivatesItsTab(t *testing.T) {
	m, _ := newTestManager(t)
	id1, _ := m.Create(context.Background(), CreateConfig{})
	id2, _ := m.Create(context.Background(), CreateConfig{})
	require.True(t, m.IsActive(id1))

	tab2, ok := m.Get(id2)
	require.True(t, ok)
	tab2.Instance.Focus()

	require.True(t, m.IsActive(id2))
	require.False(t, m.IsActive(id1))
}

func TestInstanceFocusOnActiveTabIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	id, _ := m.Create(context.Background(), CreateConfig{})

	activations := 0
	m.OnActivated(func(Tab) { activations++ })

	tab, _ := m.Get(id)
	tab.Instance.Focus()
	require.Zero(t, activations)
}

func TestAttachedRendererReceivesOutput(t *testing.T) {
	m, sub := newTestManager(t)
	id, err := m.Create(context.Background(), CreateConfig{})
	require.NoError(t, err)

	var rendered []string
	tab, _ := m.Get(id)
	tab.Instance.AttachRenderer(func(data string) { rendered = append(rendered, data) })

	sub.last().EmitData("$ ls\n")
	require.Equal(t, []string{"$ ls\n"}, rendered)
}

func TestDataOnInactiveTabSetsModified(t *testing.T) {
	m, sub := newTestManager(t)
	id1, _ := m.Create(context.Background(), CreateConfig{})
	_, err := m.Create(context.Background(), CreateConfig{})
	require.NoError(t, err)

	// id1 is active; background output on the second tab marks it modified.
	require.True(t, m.IsActive(id1))
	sub.last().EmitData("done\n")

	tabs := m.All()
	for _, tb := range tabs {
		if tb.ID == id1 {
			require.False(t, tb.IsModified)
		} else {
			require.True(t, tb.IsModified)
		}
	}

	// Activating the modified tab clears the flag.
	for _, tb := range tabs {
		if tb.ID != id1 {
			require.True(t, m.Activate(tb.ID))
			got, _ := m.Get(tb.ID)
			require.False(t, got.IsModified)
		}
	}
}

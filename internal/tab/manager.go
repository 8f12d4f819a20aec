// Package tab implements the tab manager: multi-terminal presentation
// on top of terminal.Manager — ordering, pin state, single-active-tab
// selection, and the modified-since-active flag.
package tab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/hatcherdx/termcore/internal/eventbus"
	"github.com/hatcherdx/termcore/internal/ptybackend"
	"github.com/hatcherdx/termcore/internal/terminal"
)

// ErrDisposed is raised by Create once the Manager has been disposed.
var ErrDisposed = errors.New("tab: manager disposed")

// Tab is one entry owned by the Manager.
type Tab struct {
	ID           string
	Instance     *Instance
	IsActive     bool
	IsPinned     bool
	IsModified   bool
	Order        int
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// CreateConfig configures a new tab. Empty fields take platform
// defaults: cmd.exe on Windows or /bin/bash elsewhere, the process
// working directory, and an 80x24 grid.
type CreateConfig struct {
	Name string
	Shell string
	Cwd   string
	Env   map[string]string
	Cols  uint16
	Rows  uint16
}

// Stats summarizes the Manager's current tab population.
type Stats struct {
	Count     int
	OldestAge time.Duration
	NewestAge time.Duration
}

const (
	evCreated   = "tab_created"
	evRemoved   = "tab_removed"
	evActivated = "tab_activated"
	evReordered = "tabs_reordered"
	evTitle     = "tab_title_changed"
)

// exitRemovalDelay is how long a tab survives after its terminal exits,
// so the final output is still visible before it's swept away.
const exitRemovalDelay = time.Second

// Manager owns every tab and the single terminal.Manager backing them.
type Manager struct {
	terminals *terminal.Manager

	mu        sync.Mutex
	tabs      map[string]*Tab
	activeID  string
	nextOrder int
	nameSeq   int
	disposed  bool

	created   *eventbus.Bus[Tab]
	removed   *eventbus.Bus[string]
	activated *eventbus.Bus[Tab]
	reordered *eventbus.Bus[[]string]
	titled    *eventbus.Bus[TitleChangedEvent]

	now      func() time.Time
	schedule func(d time.Duration, fn func())
}

// TitleChangedEvent carries a tab id and its new title.
type TitleChangedEvent struct {
	ID    string
	Title string
}

// NewManager returns a Manager over terminals, with no tabs yet.
func NewManager(terminals *terminal.Manager) *Manager {
	m := &Manager{
		terminals: terminals,
		tabs:      make(map[string]*Tab),
		created:   eventbus.New[Tab](),
		removed:   eventbus.New[string](),
		activated: eventbus.New[Tab](),
		reordered: eventbus.New[[]string](),
		titled:    eventbus.New[TitleChangedEvent](),
		now:       time.Now,
	}
	m.schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	terminals.OnData(m.onTerminalData)
	terminals.OnExit(m.onTerminalExit)
	return m
}

func (m *Manager) OnCreated(fn func(Tab)) uint64                     { return m.created.On(evCreated, fn) }
func (m *Manager) OnRemoved(fn func(string)) uint64                   { return m.removed.On(evRemoved, fn) }
func (m *Manager) OnActivated(fn func(Tab)) uint64                    { return m.activated.On(evActivated, fn) }
func (m *Manager) OnReordered(fn func([]string)) uint64               { return m.reordered.On(evReordered, fn) }
func (m *Manager) OnTitleChanged(fn func(TitleChangedEvent)) uint64   { return m.titled.On(evTitle, fn) }

// Create spawns a terminal, wraps it in a Tab+Instance, assigns the
// next order, and activates it if it's the first tab.
func (m *Manager) Create(ctx context.Context, cfg CreateConfig) (string, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return "", ErrDisposed
	}
	m.nameSeq++
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("Terminal %d", m.nameSeq)
	}
	m.mu.Unlock()

	shell := cfg.Shell
	if shell == "" {
		if runtime.GOOS == "windows" {
			shell = "cmd.exe"
		} else {
			shell = "/bin/bash"
		}
	}
	cwd := cfg.Cwd
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	termID, err := m.terminals.Create(ctx, terminal.CreateOptions{
		Name: name,
		SpawnOptions: ptybackend.SpawnOptions{
			Shell: shell,
			Cwd:   cwd,
			Env:   mergeEnv(cfg.Env),
			Cols:  cols,
			Rows:  rows,
		},
	})
	if err != nil {
		return "", err
	}

	inst := newInstance(termID, name)
	inst.onTitleChanged(func(t string) {
		m.titled.Emit(evTitle, TitleChangedEvent{ID: termID, Title: t})
	})
	inst.onFocus(func(struct{}) {
		if !m.IsActive(termID) {
			m.Activate(termID)
		}
	})

	now := m.now()
	m.mu.Lock()
	order := m.nextOrder
	m.nextOrder++
	t := &Tab{
		ID:           termID,
		Instance:     inst,
		Order:        order,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	m.tabs[termID] = t
	first := len(m.tabs) == 1
	m.mu.Unlock()

	if first {
		m.Activate(termID)
	}

	m.created.Emit(evCreated, *t)
	return termID, nil
}

func mergeEnv(overrides map[string]string) map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// Remove disposes the tab's instance (swallowing errors) and drops it.
// If the removed tab was active, the most-recently-used remaining tab
// becomes active.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.tabs, id)
	m.compactOrdersLocked()
	wasActive := m.activeID == id
	if wasActive {
		m.activeID = ""
	}
	m.mu.Unlock()

	t.Instance.dispose()
	if !m.terminals.Close(id) {
		logger.Debugf("[tab] close of terminal %s during removal reported false (already gone)", id)
	}

	m.removed.Emit(evRemoved, id)

	if wasActive {
		if next, ok := m.mostRecentlyUsed(); ok {
			m.Activate(next)
		}
	}
	return true
}

// compactOrdersLocked renumbers orders to [0..len) after a removal, so
// they stay a gapless permutation. Relative ordering is preserved.
func (m *Manager) compactOrdersLocked() {
	rest := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		rest = append(rest, t)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Order < rest[j].Order })
	for i, t := range rest {
		t.Order = i
	}
	m.nextOrder = len(rest)
}

func (m *Manager) mostRecentlyUsed() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Tab
	for _, t := range m.tabs {
		if best == nil || t.LastActiveAt.After(best.LastActiveAt) {
			best = t
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// Activate focuses id: no-op if already active, otherwise blurs the
// current tab, focuses this one, clears is_modified, and bumps
// last_active_at.
func (m *Manager) Activate(id string) bool {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if m.activeID == id {
		m.mu.Unlock()
		return true
	}
	if prev, ok := m.tabs[m.activeID]; ok {
		prev.IsActive = false
	}
	t.IsActive = true
	t.IsModified = false
	t.LastActiveAt = m.now()
	m.activeID = id
	snapshot := *t
	m.mu.Unlock()

	m.terminals.SetActive(id)
	m.activated.Emit(evActivated, snapshot)
	return true
}

// IsActive reports whether id is the currently active tab.
func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID == id
}

// Reorder validates that ids is a permutation of the current tab ids
// and reassigns Order by index.
func (m *Manager) Reorder(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) != len(m.tabs) {
		return fmt.Errorf("tab: reorder set size %d does not match tab count %d", len(ids), len(m.tabs))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.tabs[id]; !ok {
			return fmt.Errorf("tab: reorder references unknown id %q", id)
		}
		if seen[id] {
			return fmt.Errorf("tab: reorder lists id %q more than once", id)
		}
		seen[id] = true
	}
	for i, id := range ids {
		m.tabs[id].Order = i
	}
	out := append([]string(nil), ids...)
	m.reordered.Emit(evReordered, out)
	return nil
}

// CurrentOrder returns tab ids sorted by their current Order.
func (m *Manager) CurrentOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	ids := make([]string, len(out))
	for i, t := range out {
		ids[i] = t.ID
	}
	return ids
}

// TogglePin flips is_pinned for id.
func (m *Manager) TogglePin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return false
	}
	t.IsPinned = !t.IsPinned
	return true
}

// CloseAllExceptPinned removes every unpinned tab and returns the count closed.
func (m *Manager) CloseAllExceptPinned() int {
	return m.closeMatching(func(t *Tab) bool { return !t.IsPinned })
}

// CloseAll removes every tab and returns the count closed.
func (m *Manager) CloseAll() int {
	return m.closeMatching(func(t *Tab) bool { return true })
}

func (m *Manager) closeMatching(pred func(*Tab) bool) int {
	m.mu.Lock()
	var victims []string
	for id, t := range m.tabs {
		if pred(t) {
			victims = append(victims, id)
		}
	}
	m.mu.Unlock()

	for _, id := range victims {
		m.Remove(id)
	}
	return len(victims)
}

// FindByTitle scans tabs for a title match: case-insensitive substring
// by default, case-insensitive exact match when exact is true.
func (m *Manager) FindByTitle(q string, exact bool) []Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(q)
	var out []Tab
	for _, t := range m.tabs {
		title := strings.ToLower(t.Instance.Title())
		if exact {
			if title == needle {
				out = append(out, *t)
			}
		} else if strings.Contains(title, needle) {
			out = append(out, *t)
		}
	}
	return out
}

// Stats reports counts and the age range of the current tab set.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tabs) == 0 {
		return Stats{}
	}
	now := m.now()
	var oldest, newest time.Duration
	first := true
	for _, t := range m.tabs {
		age := now.Sub(t.CreatedAt)
		if first {
			oldest, newest = age, age
			first = false
			continue
		}
		if age > oldest {
			oldest = age
		}
		if age < newest {
			newest = age
		}
	}
	return Stats{Count: len(m.tabs), OldestAge: oldest, NewestAge: newest}
}

// Get returns a snapshot of one tab.
func (m *Manager) Get(id string) (Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return Tab{}, false
	}
	return *t, true
}

// All returns a snapshot of every tab.
func (m *Manager) All() []Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		out = append(out, *t)
	}
	return out
}

func (m *Manager) onTerminalData(ev terminal.DataEvent) {
	m.mu.Lock()
	t, ok := m.tabs[ev.ID]
	if ok {
		t.LastActiveAt = m.now()
		if !t.IsActive {
			t.IsModified = true
		}
	}
	m.mu.Unlock()
	if ok {
		t.Instance.deliver(ev.Data)
	}
}

func (m *Manager) onTerminalExit(ev terminal.ExitEvent) {
	m.mu.Lock()
	_, ok := m.tabs[ev.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.schedule(exitRemovalDelay, func() { m.Remove(ev.ID) })
}

// Dispose removes every tab, clears the active selection, and detaches
// listeners. Safe to call more than once.
func (m *Manager) Dispose() {
	m.CloseAll()

	m.mu.Lock()
	m.activeID = ""
	m.disposed = true
	m.mu.Unlock()

	m.created.RemoveAll("")
	m.removed.RemoveAll("")
	m.activated.RemoveAll("")
	m.reordered.RemoveAll("")
	m.titled.RemoveAll("")
}

package tab

import (
	"sync"

	"github.com/hatcherdx/termcore/internal/eventbus"
)

const (
	evTitleChanged = "title_changed"
	evFocus        = "focus"
)

// Instance is the per-tab wrapper around one terminal id: it
// optionally attaches a renderer callback that receives raw output
// bytes, and exposes the title_changed/focus events the tab manager
// listens for.
type Instance struct {
	TermID string

	mu       sync.Mutex
	title    string
	renderer func(data string)

	titleBus *eventbus.Bus[string]
	focusBus *eventbus.Bus[struct{}]
}

func newInstance(termID, title string) *Instance {
	return &Instance{
		TermID:   termID,
		title:    title,
		titleBus: eventbus.New[string](),
		focusBus: eventbus.New[struct{}](),
	}
}

// AttachRenderer registers the callback that receives this instance's
// output bytes. The renderer is external to the terminal core; only one
// is attached at a time.
func (i *Instance) AttachRenderer(fn func(data string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.renderer = fn
}

func (i *Instance) deliver(chunk string) {
	i.mu.Lock()
	renderer := i.renderer
	i.mu.Unlock()
	if renderer != nil {
		renderer(chunk)
	}
}

// Title returns the instance's current title.
func (i *Instance) Title() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.title
}

// SetTitle updates the title and emits title_changed.
func (i *Instance) SetTitle(t string) {
	i.mu.Lock()
	i.title = t
	i.mu.Unlock()
	i.titleBus.Emit(evTitleChanged, t)
}

// Focus emits the focus event; the Tab Manager reacts by activating
// this instance's tab if it isn't already active.
func (i *Instance) Focus() {
	i.focusBus.Emit(evFocus, struct{}{})
}

func (i *Instance) onTitleChanged(fn func(string)) uint64 {
	return i.titleBus.On(evTitleChanged, fn)
}

func (i *Instance) onFocus(fn func(struct{})) uint64 {
	return i.focusBus.On(evFocus, fn)
}

func (i *Instance) dispose() {
	i.titleBus.RemoveAll("")
	i.focusBus.RemoveAll("")
}

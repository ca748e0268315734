package session

import (
	"sync"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
)

// remoteInput mirrors a client-side text field.
type remoteInput struct {
	id   string
	emit Emitter

	mu        sync.Mutex
	value     string
	next      int
	listeners map[int]func(*autocomplete.Event)
}

func newRemoteInput(id string, emit Emitter) *remoteInput {
	return &remoteInput{id: id, emit: emit, listeners: make(map[int]func(*autocomplete.Event))}
}

func (r *remoteInput) ID() string { return r.id }

func (r *remoteInput) Value() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// SetValue stores v and mirrors it to the client.
func (r *remoteInput) SetValue(v string) {
	r.setLocal(v)
	r.emit(Frame{Type: FrameValue, Field: r.id, Value: v})
}

// setLocal records a value typed on the client side.
func (r *remoteInput) setLocal(v string) {
	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
}

func (r *remoteInput) Focus() {
	r.emit(Frame{Type: FrameFocus, Field: r.id})
}

func (r *remoteInput) Listen(fn func(*autocomplete.Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Dispatch runs the listeners in registration order. A synthetic change is
// forwarded so listeners on the client side see the committed value.
func (r *remoteInput) Dispatch(ev *autocomplete.Event) {
	r.mu.Lock()
	fns := make([]func(*autocomplete.Event), 0, len(r.listeners))
	for id := 0; id < r.next; id++ {
		if fn, ok := r.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	if ev.Kind == autocomplete.EventChange && ev.Synthetic {
		r.emit(Frame{Type: FrameChange, Field: r.id, Value: r.Value(), Synthetic: true})
	}
}

// remoteSurface renders the dropdown by sending frames.
type remoteSurface struct {
	field string
	emit  Emitter
}

func (s remoteSurface) Show(matches []autocomplete.Candidate, highlighted int) {
	s.emit(Frame{Type: FrameShow, Field: s.field, Items: matches, Index: highlighted})
}

func (s remoteSurface) Highlight(index int) {
	s.emit(Frame{Type: FrameHighlight, Field: s.field, Index: index})
}

func (s remoteSurface) Hide() {
	s.emit(Frame{Type: FrameHide, Field: s.field, Index: -1})
}

func (s remoteSurface) Remove() {
	s.emit(Frame{Type: FrameRemove, Field: s.field, Index: -1})
}

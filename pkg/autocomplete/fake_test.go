package autocomplete

import (
	"sync"
)

// fakeInput is an in-memory text field.
type fakeInput struct {
	id string

	mu        sync.Mutex
	value     string
	listeners map[int]func(*Event)
	next      int
	focused   int
}

func newFakeInput(id string) *fakeInput {
	return &fakeInput{id: id, listeners: make(map[int]func(*Event))}
}

func (f *fakeInput) ID() string { return f.id }

func (f *fakeInput) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *fakeInput) SetValue(v string) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

func (f *fakeInput) Focus() {
	f.mu.Lock()
	f.focused++
	f.mu.Unlock()
}

func (f *fakeInput) Listen(fn func(*Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeInput) Dispatch(ev *Event) {
	f.mu.Lock()
	fns := make([]func(*Event), 0, len(f.listeners))
	for i := 0; i < f.next; i++ {
		if fn, ok := f.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeInput) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// typeText sets the text and fires a change, like a keystroke would.
func (f *fakeInput) typeText(v string) {
	f.SetValue(v)
	f.Dispatch(&Event{Kind: EventChange})
}

func (f *fakeInput) press(key string) *Event {
	ev := &Event{Kind: EventKeyDown, Key: key}
	f.Dispatch(ev)
	return ev
}

// recordingSurface remembers what the engine asked it to draw.
type recordingSurface struct {
	mu          sync.Mutex
	shown       []string
	highlighted int
	visible     bool
	removed     bool
	shows       int
}

func (s *recordingSurface) Show(matches []Candidate, highlighted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = Labels(matches)
	s.highlighted = highlighted
	s.visible = true
	s.shows++
}

func (s *recordingSurface) Highlight(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlighted = index
}

func (s *recordingSurface) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

func (s *recordingSurface) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
	s.removed = true
}

func (s *recordingSurface) isVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

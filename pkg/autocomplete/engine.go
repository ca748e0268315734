package autocomplete

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Engine creates bindings and remembers which inputs are already bound.
// All bindings of an engine share its default options and surface factory.
type Engine struct {
	defaults Options
	surfaces SurfaceFactory

	mu    sync.Mutex
	bound map[string]*Binding
	order []string
}

// NewEngine returns an engine using defaults for every binding.
// A nil factory renders nothing.
func NewEngine(defaults Options, surfaces SurfaceFactory) *Engine {
	return &Engine{
		defaults: defaults.normalized(),
		surfaces: surfaces,
		bound:    make(map[string]*Binding),
	}
}

// Defaults returns the engine's default options.
func (e *Engine) Defaults() Options {
	return e.defaults
}

// Bind attaches the engine to input. Binding an input that is already bound
// returns the existing handle and changes nothing.
func (e *Engine) Bind(input Input, src Source, opts ...Option) (*Binding, error) {
	if input == nil {
		return nil, ErrNilInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := input.ID()
	if existing, ok := e.bound[id]; ok && !existing.Destroyed() {
		log.Debugf("Input [%s] already bound, keeping existing binding", id)
		return existing, nil
	}

	o := e.defaults
	for _, opt := range opts {
		opt(&o)
	}

	var surface Surface = NopSurface{}
	if e.surfaces != nil {
		if s := e.surfaces(input); s != nil {
			surface = s
		}
	}

	b := newBinding(e, input, src, o.normalized(), surface)
	if _, ok := e.bound[id]; !ok {
		e.order = append(e.order, id)
	}
	e.bound[id] = b
	log.Debugf("Bound input [%s]: mode=%s min=%d max=%d", id, b.opts.MatchMode, b.opts.MinQueryLength, b.opts.MaxResults)
	return b, nil
}

// Lookup returns the live binding of the input with the given ID.
func (e *Engine) Lookup(id string) (*Binding, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bound[id]
	return b, ok
}

// Bindings returns the live bindings in bind order.
func (e *Engine) Bindings() []*Binding {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Binding, 0, len(e.bound))
	for _, id := range e.order {
		if b, ok := e.bound[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of live bindings.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bound)
}

// DestroyAll destroys every live binding.
func (e *Engine) DestroyAll() {
	for _, b := range e.Bindings() {
		b.Destroy()
	}
}

// release drops the binding marker of a destroyed binding.
func (e *Engine) release(b *Binding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := b.input.ID()
	if e.bound[id] != b {
		return
	}
	delete(e.bound, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

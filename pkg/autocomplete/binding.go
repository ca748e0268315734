package autocomplete

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// Binding is the live association between one input and the engine.
// It is safe to feed events from several goroutines, but hosts are expected to
// deliver them one at a time like a UI event loop does.
type Binding struct {
	engine  *Engine
	input   Input
	opts    Options
	surface Surface

	mu          sync.Mutex
	src         Source
	matches     []Candidate
	highlighted int
	visible     bool
	destroyed   bool
	detach      func()

	// echo is the label written by the last commit; the change notification
	// carrying it is ours and does not reopen the dropdown.
	echo        string
	echoPending bool

	gen uint64
	// pending is set while an async lookup for a newer query is running;
	// the matches on screen then belong to an older query and cannot be picked.
	pending  bool
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func newBinding(e *Engine, input Input, src Source, opts Options, surface Surface) *Binding {
	b := &Binding{
		engine:      e,
		input:       input,
		opts:        opts,
		surface:     surface,
		src:         src,
		highlighted: -1,
	}
	b.detach = input.Listen(b.handle)
	return b
}

// Input returns the bound input.
func (b *Binding) Input() Input {
	return b.input
}

// Options returns the binding's effective options.
func (b *Binding) Options() Options {
	return b.opts
}

// Matches returns a copy of the current match set.
func (b *Binding) Matches() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.matches) == 0 {
		return nil
	}
	out := make([]Candidate, len(b.matches))
	copy(out, b.matches)
	return out
}

// Highlighted returns the highlighted row, -1 when none.
func (b *Binding) Highlighted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highlighted
}

// Visible reports whether the dropdown is shown.
func (b *Binding) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Destroyed reports whether Destroy was called.
func (b *Binding) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// UpdateCandidates replaces the candidate source. The new source is used
// from the next event on.
func (b *Binding) UpdateCandidates(src Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.src = src
}

// Settle waits for in-flight asynchronous lookups to finish.
func (b *Binding) Settle() {
	b.inflight.Wait()
}

// Destroy detaches the binding from its input and removes the dropdown.
// It is idempotent.
func (b *Binding) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.cancelLocked()
	b.gen++
	b.matches = nil
	b.highlighted = -1
	b.visible = false
	b.surface.Remove()
	detach := b.detach
	b.detach = nil
	b.mu.Unlock()

	if detach != nil {
		detach()
	}
	b.engine.release(b)
	log.Debugf("Destroyed binding for input [%s]", b.input.ID())
}

// handle is the single listener registered on the input.
func (b *Binding) handle(ev *Event) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case EventChange:
		b.onChange()
	case EventKeyDown:
		b.onKey(ev)
	case EventHover:
		b.onHover(ev.Index)
	case EventClick:
		b.onClick(ev.Index)
	case EventPointerOutside:
		b.onOutside()
	}
}

func (b *Binding) onChange() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	if b.echoPending {
		b.echoPending = false
		if b.input.Value() == b.echo {
			return
		}
	}
	b.refreshLocked()
}

func (b *Binding) onKey(ev *Event) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}

	switch ev.Key {
	case KeyArrowDown:
		ev.PreventDefault()
		if !b.visible {
			b.refreshLocked()
			break
		}
		if b.pending {
			break
		}
		if b.highlighted < len(b.matches)-1 {
			b.highlighted++
		}
		b.surface.Highlight(b.highlighted)

	case KeyArrowUp:
		ev.PreventDefault()
		if b.pending {
			break
		}
		if b.highlighted > -1 {
			b.highlighted--
		}
		if b.visible {
			b.surface.Highlight(b.highlighted)
		}

	case KeyEnter:
		if b.pending || b.highlighted < 0 || b.highlighted >= len(b.matches) {
			break
		}
		ev.PreventDefault()
		c := b.matches[b.highlighted]
		b.commitLocked(c)
		b.mu.Unlock()
		b.notifySelected(c)
		return

	case KeyEscape:
		b.dismissLocked()
	}
	b.mu.Unlock()
}

func (b *Binding) onHover(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed || !b.visible || b.pending || index < 0 || index >= len(b.matches) {
		return
	}
	b.highlighted = index
	b.surface.Highlight(index)
}

func (b *Binding) onClick(index int) {
	b.mu.Lock()
	if b.destroyed || !b.visible || b.pending || index < 0 || index >= len(b.matches) {
		b.mu.Unlock()
		return
	}
	c := b.matches[index]
	b.commitLocked(c)
	b.mu.Unlock()
	b.notifySelected(c)
}

func (b *Binding) onOutside() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.dismissLocked()
}

// refreshLocked recomputes the match set from the input's current text.
func (b *Binding) refreshLocked() {
	b.gen++
	b.cancelLocked()

	query := NormalizeQuery(b.input.Value())
	if utf8.RuneCountInString(query) < b.opts.MinQueryLength {
		b.hideLocked()
		return
	}

	if as, ok := b.src.(asyncSource); ok {
		b.lookupLocked(as.AsyncSource, query)
		return
	}

	cands, err := evaluate(b.src, query)
	if err != nil {
		log.Debugf("Candidate source failed for input [%s]: %v", b.input.ID(), err)
		cands = nil
	}
	b.applyLocked(Filter(cands, query, b.opts.MatchMode, b.opts.MaxResults))
}

// lookupLocked starts an asynchronous lookup tagged with the current generation.
func (b *Binding) lookupLocked(src AsyncSource, query string) {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	gen := b.gen
	b.pending = true

	if b.highlighted != -1 {
		b.highlighted = -1
		if b.visible {
			b.surface.Highlight(-1)
		}
	}

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer cancel()

		cands, err := lookup(ctx, src, query)

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.destroyed || gen != b.gen || ctx.Err() != nil {
			return
		}
		if NormalizeQuery(b.input.Value()) != query {
			return
		}
		if err != nil {
			log.Debugf("Async source failed for input [%s]: %v", b.input.ID(), err)
			b.hideLocked()
			return
		}
		b.applyLocked(Filter(cands, query, b.opts.MatchMode, b.opts.MaxResults))
	}()
}

// applyLocked installs a fresh match set and renders it.
func (b *Binding) applyLocked(matches []Candidate) {
	if len(matches) == 0 {
		b.hideLocked()
		return
	}
	b.matches = matches
	b.highlighted = -1
	b.pending = false
	b.visible = true
	b.surface.Show(matches, -1)
}

// hideLocked closes the dropdown and clears the selection state.
func (b *Binding) hideLocked() {
	b.matches = nil
	b.highlighted = -1
	b.pending = false
	if b.visible {
		b.visible = false
		b.surface.Hide()
	}
}

// dismissLocked hides the dropdown and drops any lookup still running, so a
// late answer cannot reopen it.
func (b *Binding) dismissLocked() {
	b.gen++
	b.cancelLocked()
	b.hideLocked()
}

func (b *Binding) cancelLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// commitLocked writes the label and closes the dropdown.
// notifySelected must follow once the lock is released.
func (b *Binding) commitLocked(c Candidate) {
	b.gen++
	b.cancelLocked()
	b.input.SetValue(c.Label)
	b.hideLocked()
	b.echo = c.Label
	b.echoPending = true
}

// notifySelected runs the host callback and re-dispatches a change
// so downstream listeners see the committed value.
func (b *Binding) notifySelected(c Candidate) {
	if fn := b.opts.OnSelect; fn != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("OnSelect panicked for input [%s]: %v", b.input.ID(), r)
				}
			}()
			fn(c, b.input)
		}()
	}
	b.input.Dispatch(&Event{Kind: EventChange, Synthetic: true})
}

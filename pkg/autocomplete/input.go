package autocomplete

// Key names delivered with EventKeyDown.
const (
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
)

// EventKind tells a binding what happened on its input.
type EventKind int

const (
	// EventChange means the input's text changed.
	EventChange EventKind = iota
	// EventKeyDown carries a key name in Event.Key.
	EventKeyDown
	// EventHover means the pointer entered dropdown row Event.Index.
	EventHover
	// EventClick means dropdown row Event.Index was clicked.
	EventClick
	// EventPointerOutside means a pointer interaction happened outside
	// the input and its dropdown.
	EventPointerOutside
)

func (k EventKind) String() string {
	switch k {
	case EventChange:
		return "change"
	case EventKeyDown:
		return "keydown"
	case EventHover:
		return "hover"
	case EventClick:
		return "click"
	case EventPointerOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// Event is a notification delivered to input listeners.
type Event struct {
	Kind  EventKind
	Key   string
	Index int
	// Synthetic is set on the change notification dispatched after a commit.
	Synthetic bool

	prevented bool
}

// PreventDefault marks the event as consumed so the host skips its default action.
func (e *Event) PreventDefault() {
	e.prevented = true
}

// DefaultPrevented reports whether a listener consumed the event.
func (e *Event) DefaultPrevented() bool {
	return e.prevented
}

// Input is a host text-entry field.
//
// SetValue must not emit a change notification by itself; Dispatch delivers
// an event to every listener registered through Listen.
type Input interface {
	// ID identifies the field within its page; one binding per ID.
	ID() string
	Value() string
	SetValue(v string)
	Focus()
	// Listen registers fn and returns a function removing it.
	Listen(fn func(*Event)) (detach func())
	Dispatch(ev *Event)
}

// Surface renders the dropdown anchored below an input.
type Surface interface {
	// Show renders matches with row highlighted (-1 for none).
	Show(matches []Candidate, highlighted int)
	Highlight(index int)
	Hide()
	// Remove tears the dropdown down for good.
	Remove()
}

// SurfaceFactory creates the dropdown for a newly bound input.
type SurfaceFactory func(in Input) Surface

// NopSurface renders nothing.
type NopSurface struct{}

func (NopSurface) Show([]Candidate, int) {}
func (NopSurface) Highlight(int)         {}
func (NopSurface) Hide()                 {}
func (NopSurface) Remove()               {}

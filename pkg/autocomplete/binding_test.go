package autocomplete

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine   *Engine
	mu       sync.Mutex
	surfaces map[string]*recordingSurface
}

func newHarness() *harness {
	h := &harness{surfaces: make(map[string]*recordingSurface)}
	h.engine = NewEngine(DefaultOptions(), func(in Input) Surface {
		s := &recordingSurface{highlighted: -1}
		h.mu.Lock()
		h.surfaces[in.ID()] = s
		h.mu.Unlock()
		return s
	})
	return h
}

func (h *harness) surface(id string) *recordingSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surfaces[id]
}

func mustBind(t *testing.T, h *harness, in Input, src Source, opts ...Option) *Binding {
	t.Helper()
	b, err := h.engine.Bind(in, src, opts...)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return b
}

func TestPharmaScenario(t *testing.T) {
	h := newHarness()
	in := newFakeInput("supplier1")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.typeText("pharma")

	if diff := cmp.Diff([]string{"Alpha Pharma", "Beta Pharma"}, Labels(b.Matches())); diff != "" {
		t.Errorf("match set (-want +got):\n%s", diff)
	}
	if !b.Visible() || !h.surface("supplier1").isVisible() {
		t.Error("dropdown should be visible")
	}
	if b.Highlighted() != -1 {
		t.Errorf("highlight = %d, want -1", b.Highlighted())
	}
}

func TestShortQueryHidesDropdown(t *testing.T) {
	h := newHarness()
	in := newFakeInput("supplier1")
	b := mustBind(t, h, in, Static(pharmaCandidates), WithMinQueryLength(2))

	in.typeText("pharma")
	if !b.Visible() {
		t.Fatal("expected dropdown after long query")
	}

	for _, q := range []string{"a", "", "  a  "} {
		in.typeText(q)
		if b.Visible() {
			t.Errorf("query %q: dropdown visible", q)
		}
		if len(b.Matches()) != 0 {
			t.Errorf("query %q: match set = %v, want empty", q, Labels(b.Matches()))
		}
	}
}

func TestArrowDownTwiceThenEnter(t *testing.T) {
	h := newHarness()
	in := newFakeInput("item")

	var (
		calls []Candidate
		seen  []string
	)
	b := mustBind(t, h, in, Static(Texts("X", "Y")), WithMinQueryLength(0), WithOnSelect(func(c Candidate, got Input) {
		if got != in {
			t.Errorf("OnSelect got input %v", got.ID())
		}
		calls = append(calls, c)
	}))

	// A downstream listener, like a totals recompute, registered after the binding.
	in.Listen(func(ev *Event) {
		if ev.Kind == EventChange {
			seen = append(seen, in.Value())
		}
	})

	in.typeText("")
	if diff := cmp.Diff([]string{"X", "Y"}, Labels(b.Matches())); diff != "" {
		t.Fatalf("match set (-want +got):\n%s", diff)
	}

	in.press(KeyArrowDown)
	in.press(KeyArrowDown)
	ev := in.press(KeyEnter)

	if in.Value() != "Y" {
		t.Errorf("value = %q, want Y", in.Value())
	}
	if len(calls) != 1 || calls[0].Label != "Y" {
		t.Errorf("OnSelect calls = %v, want one call with Y", calls)
	}
	if !ev.DefaultPrevented() {
		t.Error("Enter with a highlighted row should be consumed")
	}
	if b.Visible() {
		t.Error("dropdown should close after commit")
	}
	if diff := cmp.Diff([]string{"", "Y"}, seen); diff != "" {
		t.Errorf("downstream change values (-want +got):\n%s", diff)
	}
}

func TestArrowKeysStayInRange(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.typeText("a")
	n := len(b.Matches())
	if n != 3 {
		t.Fatalf("expected 3 matches, got %d", n)
	}

	keys := []string{
		KeyArrowUp, KeyArrowUp, KeyArrowDown, KeyArrowDown, KeyArrowDown,
		KeyArrowDown, KeyArrowDown, KeyArrowUp, KeyArrowUp, KeyArrowUp, KeyArrowUp, KeyArrowUp,
	}
	for i, k := range keys {
		ev := in.press(k)
		got := b.Highlighted()
		if got < -1 || got > n-1 {
			t.Fatalf("step %d (%s): highlight %d outside [-1,%d]", i, k, got, n-1)
		}
		if !ev.DefaultPrevented() {
			t.Errorf("step %d: arrow keys should be consumed", i)
		}
	}
	if b.Highlighted() != -1 {
		t.Errorf("after many ArrowUp highlight = %d, want -1", b.Highlighted())
	}

	for i := 0; i < 10; i++ {
		in.press(KeyArrowDown)
	}
	if b.Highlighted() != n-1 {
		t.Errorf("after many ArrowDown highlight = %d, want %d", b.Highlighted(), n-1)
	}
	if h.surface("f").highlighted != n-1 {
		t.Errorf("surface highlight = %d, want %d", h.surface("f").highlighted, n-1)
	}
}

func TestArrowDownOpensHiddenDropdown(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.SetValue("beta")
	in.press(KeyArrowDown)

	if !b.Visible() {
		t.Fatal("ArrowDown on a hidden dropdown should open it")
	}
	if b.Highlighted() != -1 {
		t.Errorf("opening should not highlight, got %d", b.Highlighted())
	}
	if diff := cmp.Diff([]string{"Beta Pharma"}, Labels(b.Matches())); diff != "" {
		t.Errorf("match set (-want +got):\n%s", diff)
	}
}

func TestEnterWithoutHighlight(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	called := false
	b := mustBind(t, h, in, Static(pharmaCandidates), WithOnSelect(func(Candidate, Input) { called = true }))

	in.typeText("pharma")
	ev := in.press(KeyEnter)

	if in.Value() != "pharma" {
		t.Errorf("value changed to %q", in.Value())
	}
	if called {
		t.Error("OnSelect must not run")
	}
	if ev.DefaultPrevented() {
		t.Error("Enter with nothing highlighted must reach the host form")
	}
	if !b.Visible() {
		t.Error("dropdown should stay open")
	}

	// Enter with the dropdown closed behaves the same.
	in.press(KeyEscape)
	ev = in.press(KeyEnter)
	if ev.DefaultPrevented() || called {
		t.Error("Enter on a closed dropdown must be a no-op")
	}
}

func TestEscape(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.typeText("pharma")
	in.press(KeyArrowDown)
	in.press(KeyEscape)

	if b.Visible() || h.surface("f").isVisible() {
		t.Error("Escape should hide the dropdown")
	}
	if b.Highlighted() != -1 {
		t.Errorf("highlight = %d, want -1", b.Highlighted())
	}
	if in.Value() != "pharma" {
		t.Errorf("value = %q, want unchanged", in.Value())
	}

	// Escape on an already hidden dropdown is harmless.
	in.press(KeyEscape)
	if in.Value() != "pharma" {
		t.Errorf("value = %q, want unchanged", in.Value())
	}
}

func TestSelectTwiceIsIdempotent(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	var calls []string
	b := mustBind(t, h, in, Static(pharmaCandidates), WithOnSelect(func(c Candidate, _ Input) {
		calls = append(calls, c.Label)
	}))

	for i := 0; i < 2; i++ {
		in.typeText("gamma")
		in.Dispatch(&Event{Kind: EventClick, Index: 0})
		if in.Value() != "Gamma Supplies" {
			t.Fatalf("round %d: value = %q", i, in.Value())
		}
	}
	if diff := cmp.Diff([]string{"Gamma Supplies", "Gamma Supplies"}, calls); diff != "" {
		t.Errorf("OnSelect calls (-want +got):\n%s", diff)
	}
	if b.Visible() {
		t.Error("the commit echo must not reopen the dropdown")
	}
}

func TestHoverThenEnter(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.typeText("a")
	in.Dispatch(&Event{Kind: EventHover, Index: 2})
	if b.Highlighted() != 2 {
		t.Fatalf("hover highlight = %d, want 2", b.Highlighted())
	}
	in.Dispatch(&Event{Kind: EventHover, Index: 7})
	if b.Highlighted() != 2 {
		t.Errorf("out of range hover moved highlight to %d", b.Highlighted())
	}
	in.press(KeyEnter)
	if in.Value() != "Gamma Supplies" {
		t.Errorf("value = %q, want Gamma Supplies", in.Value())
	}
}

func TestPointerOutsideDismisses(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	called := false
	b := mustBind(t, h, in, Static(pharmaCandidates), WithOnSelect(func(Candidate, Input) { called = true }))

	in.typeText("pharma")
	in.press(KeyArrowDown)
	in.Dispatch(&Event{Kind: EventPointerOutside})

	if b.Visible() {
		t.Error("outside pointer should hide the dropdown")
	}
	if in.Value() != "pharma" || called {
		t.Error("outside pointer must not select")
	}
}

func TestDuplicateLabelsSelectable(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	var got []string
	mustBind(t, h, in, Static([]Candidate{
		{ID: "A1", Label: "Gauze"},
		{ID: "A2", Label: "Gauze"},
	}), WithOnSelect(func(c Candidate, _ Input) { got = append(got, c.ID) }))

	in.typeText("gauze")
	in.press(KeyArrowDown)
	in.press(KeyArrowDown)
	in.press(KeyEnter)

	in.typeText("gauze")
	in.Dispatch(&Event{Kind: EventClick, Index: 0})

	if diff := cmp.Diff([]string{"A2", "A1"}, got); diff != "" {
		t.Errorf("selected IDs (-want +got):\n%s", diff)
	}
}

func TestDestroy(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.typeText("pharma")
	b.Destroy()
	b.Destroy()

	if in.listenerCount() != 0 {
		t.Errorf("listeners left after destroy: %d", in.listenerCount())
	}
	if !h.surface("f").removed {
		t.Error("surface should be removed")
	}

	in.typeText("alpha")
	in.press(KeyArrowDown)
	in.press(KeyEnter)
	in.Dispatch(&Event{Kind: EventClick, Index: 0})
	b.UpdateCandidates(Static(Texts("Alpha")))

	if b.Visible() || len(b.Matches()) != 0 {
		t.Error("destroyed binding must not show a dropdown")
	}
	if in.Value() != "alpha" {
		t.Errorf("value = %q, want alpha", in.Value())
	}
	if h.engine.Len() != 0 {
		t.Errorf("engine still tracks %d bindings", h.engine.Len())
	}
}

func TestRebindIsNoop(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	first := mustBind(t, h, in, Static(pharmaCandidates))
	second := mustBind(t, h, in, Static(Texts("Other")))

	if first != second {
		t.Error("rebinding should return the existing handle")
	}
	if in.listenerCount() != 1 {
		t.Errorf("listeners = %d, want 1", in.listenerCount())
	}

	in.typeText("pharma")
	if len(first.Matches()) != 2 {
		t.Errorf("the original source should stay in effect, got %v", Labels(first.Matches()))
	}

	first.Destroy()
	third := mustBind(t, h, in, Static(Texts("Other")))
	if third == first {
		t.Error("binding after destroy should create a new handle")
	}
}

func TestBindNilInput(t *testing.T) {
	h := newHarness()
	if _, err := h.engine.Bind(nil, nil); !errors.Is(err, ErrNilInput) {
		t.Errorf("err = %v, want ErrNilInput", err)
	}
}

func TestUpdateCandidates(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	b := mustBind(t, h, in, Static(pharmaCandidates))

	in.typeText("syringe")
	if b.Visible() {
		t.Fatal("no syringe yet")
	}
	b.UpdateCandidates(Static(Texts("Syringe 5ml", "Syringe 10ml")))
	in.typeText("syringe")
	if diff := cmp.Diff([]string{"Syringe 5ml", "Syringe 10ml"}, Labels(b.Matches())); diff != "" {
		t.Errorf("match set (-want +got):\n%s", diff)
	}
}

func TestFailingSources(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"Nil", nil},
		{"EmptyStatic", Static(nil)},
		{"Error", SourceFunc(func(string) ([]Candidate, error) { return nil, errors.New("boom") })},
		{"Panic", SourceFunc(func(string) ([]Candidate, error) { panic("boom") })},
		{"NilFunc", SourceFunc(nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			in := newFakeInput("f")
			b := mustBind(t, h, in, tc.src)

			in.typeText("pharma")
			in.press(KeyArrowDown)
			in.press(KeyEnter)

			if b.Visible() || len(b.Matches()) != 0 {
				t.Error("failing source should show nothing")
			}
			if in.Value() != "pharma" {
				t.Errorf("value = %q", in.Value())
			}
		})
	}
}

func TestDynamicSourceGetsQuery(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	var queries []string
	mustBind(t, h, in, SourceFunc(func(q string) ([]Candidate, error) {
		queries = append(queries, q)
		return pharmaCandidates, nil
	}), WithMatchMode(MatchStartsWith))

	in.typeText("  BeTa")
	in.typeText("x")
	if diff := cmp.Diff([]string{"beta", "x"}, queries); diff != "" {
		t.Errorf("queries (-want +got):\n%s", diff)
	}
}

func TestSelectPanicIsContained(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	mustBind(t, h, in, Static(pharmaCandidates), WithOnSelect(func(Candidate, Input) { panic("host bug") }))

	in.typeText("beta")
	in.Dispatch(&Event{Kind: EventClick, Index: 0})
	if in.Value() != "Beta Pharma" {
		t.Errorf("value = %q", in.Value())
	}
}

// gatedSource blocks each lookup until released.
type gatedSource struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedSource) gate(q string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	ch, ok := g.gates[q]
	if !ok {
		ch = make(chan struct{})
		g.gates[q] = ch
	}
	return ch
}

func (g *gatedSource) Lookup(ctx context.Context, q string) ([]Candidate, error) {
	select {
	case <-g.gate(q):
	case <-ctx.Done():
		// Pretend the backend ignored cancellation and answered anyway.
		<-g.gate(q)
	}
	return Texts("Alpha Pharma", "Beta Pharma", "Beta Blocker"), nil
}

func TestAsyncLastKeystrokeWins(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	src := &gatedSource{}
	b := mustBind(t, h, in, Async(src))

	in.typeText("pharma")
	in.typeText("beta")

	close(src.gate("beta"))
	require.Eventually(t, b.Visible, time.Second, time.Millisecond)

	// The stale lookup answers last and must not replace the fresh result.
	close(src.gate("pharma"))
	b.Settle()

	if diff := cmp.Diff([]string{"Beta Pharma", "Beta Blocker"}, Labels(b.Matches())); diff != "" {
		t.Errorf("match set (-want +got):\n%s", diff)
	}
}

func TestStaleMatchesCannotBePicked(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	src := &gatedSource{}
	var picked []string
	b := mustBind(t, h, in, Async(src), WithOnSelect(func(c Candidate, _ Input) {
		picked = append(picked, c.Label)
	}))

	in.typeText("alpha")
	close(src.gate("alpha"))
	require.Eventually(t, b.Visible, time.Second, time.Millisecond)

	// "beta" is still being looked up; the alpha rows are on screen but stale.
	in.typeText("beta")
	in.press(KeyArrowDown)
	in.Dispatch(&Event{Kind: EventHover, Index: 0})
	enter := in.press(KeyEnter)
	in.Dispatch(&Event{Kind: EventClick, Index: 0})

	if in.Value() != "beta" || len(picked) != 0 {
		t.Fatalf("stale commit: value=%q picked=%v", in.Value(), picked)
	}
	if enter.DefaultPrevented() {
		t.Error("Enter without a current match must not be prevented")
	}
	if b.Highlighted() != -1 {
		t.Errorf("highlighted = %d, want -1", b.Highlighted())
	}

	close(src.gate("beta"))
	b.Settle()
	in.press(KeyArrowDown)
	in.press(KeyEnter)
	if diff := cmp.Diff([]string{"Beta Pharma"}, picked); diff != "" {
		t.Errorf("picked (-want +got):\n%s", diff)
	}
	if in.Value() != "Beta Pharma" {
		t.Errorf("value = %q", in.Value())
	}
}

func TestEscapeDropsPendingLookup(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	src := &gatedSource{}
	b := mustBind(t, h, in, Async(src))

	in.typeText("beta")
	in.press(KeyEscape)
	close(src.gate("beta"))
	b.Settle()

	if b.Visible() || h.surface("f").shows != 0 {
		t.Error("lookup finished after Escape reopened the dropdown")
	}
}

func TestAsyncResultAfterDestroyIsDropped(t *testing.T) {
	h := newHarness()
	in := newFakeInput("f")
	src := &gatedSource{}
	b := mustBind(t, h, in, Async(src))

	in.typeText("beta")
	b.Destroy()
	close(src.gate("beta"))
	b.Settle()

	if b.Visible() || h.surface("f").shows != 0 {
		t.Error("late result rendered after destroy")
	}
}

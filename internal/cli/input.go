// Package cli is a line driven terminal host for trying catalogs and engine
// settings by hand.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/charmbracelet/log"
)

const helpText = `plain text     replaces the field value
:down :up      move the highlight
:enter :esc    commit / close
:click N       click row N
:hover N       hover row N
:out           click outside the field
:list NAME     switch the field to another list
:lists         show the catalog lists
:clear         empty the field
:q             quit`

// termInput is the single text field of the terminal host.
type termInput struct {
	mu        sync.Mutex
	value     string
	next      int
	listeners map[int]func(*autocomplete.Event)
}

func (t *termInput) ID() string { return "cli" }

func (t *termInput) Value() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

func (t *termInput) SetValue(v string) {
	t.mu.Lock()
	t.value = v
	t.mu.Unlock()
}

func (t *termInput) Focus() {}

func (t *termInput) Listen(fn func(*autocomplete.Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

func (t *termInput) Dispatch(ev *autocomplete.Event) {
	t.mu.Lock()
	fns := make([]func(*autocomplete.Event), 0, len(t.listeners))
	for id := 0; id < t.next; id++ {
		if fn, ok := t.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// InputHandler reads commands and drives one binding.
type InputHandler struct {
	resolver *session.Resolver
	engine   *autocomplete.Engine
	input    *termInput
	binding  *autocomplete.Binding
	list     string

	in           *bufio.Reader
	out          io.Writer
	maxQueryLen  int
	requestCount int
}

// NewInputHandler binds a terminal field to the configured default list.
func NewInputHandler(resolver *session.Resolver, cfg *config.Config, in io.Reader, out io.Writer) (*InputHandler, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	h := &InputHandler{
		resolver:    resolver,
		input:       &termInput{listeners: make(map[int]func(*autocomplete.Event))},
		in:          bufio.NewReader(in),
		out:         out,
		maxQueryLen: cfg.Server.MaxQueryLen,
		list:        cfg.CLI.DefaultList,
	}
	surface := NewTerminalSurface(out, cfg.CLI.Width, cfg.CLI.ShowMeta)
	h.engine = autocomplete.NewEngine(cfg.Engine.Options(), func(autocomplete.Input) autocomplete.Surface {
		return surface
	})

	opts := cfg.Engine.Options()
	src, err := resolver.Source(h.list, opts.MatchMode)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", h.list, err)
	}
	h.binding, err = h.engine.Bind(h.input, src, autocomplete.WithOnSelect(h.onSelect))
	if err != nil {
		return nil, err
	}
	h.input.Listen(func(ev *autocomplete.Event) {
		if ev.Kind == autocomplete.EventChange && ev.Synthetic {
			log.Debugf("change event after commit: %q", h.input.Value())
		}
	})
	return h, nil
}

// Start runs the read loop until :q or the end of input.
func (h *InputHandler) Start() error {
	defer h.binding.Destroy()

	log.Print("pickserve CLI [BETA]")
	log.Printf("list [%s], %s matching, type :help for commands (Ctrl+C to exit)", h.list, h.binding.Options().MatchMode)

	for {
		fmt.Fprintf(h.out, "%s> ", h.list)
		line, err := h.in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == ":q" {
			return nil
		}
		h.handleLine(line)
	}
}

func (h *InputHandler) handleLine(line string) {
	h.requestCount++
	if h.requestCount%50 == 0 {
		log.Debugf("%d commands handled, %d live bindings", h.requestCount, h.engine.Len())
	}

	if !strings.HasPrefix(line, ":") {
		h.setValue(line)
		return
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "down":
		h.key(autocomplete.KeyArrowDown)
	case "up":
		h.key(autocomplete.KeyArrowUp)
	case "enter":
		h.key(autocomplete.KeyEnter)
	case "esc":
		h.key(autocomplete.KeyEscape)
	case "click", "hover":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			log.Errorf("usage: :%s N (row number from 1)", cmd)
			return
		}
		kind := autocomplete.EventClick
		if cmd == "hover" {
			kind = autocomplete.EventHover
		}
		h.input.Dispatch(&autocomplete.Event{Kind: kind, Index: n - 1})
	case "out":
		h.input.Dispatch(&autocomplete.Event{Kind: autocomplete.EventPointerOutside})
	case "list":
		h.switchList(arg)
	case "lists":
		PrintLists(h.out, h.resolver.Lists())
	case "clear":
		h.setValue("")
	case "help":
		fmt.Fprintln(h.out, helpText)
	default:
		log.Errorf("Unknown command: %s (:help lists them)", line)
	}
}

func (h *InputHandler) setValue(v string) {
	if h.maxQueryLen > 0 && len([]rune(v)) > h.maxQueryLen {
		log.Errorf("Query too long: %d characters (max %d)", len([]rune(v)), h.maxQueryLen)
		return
	}
	start := time.Now()
	h.input.SetValue(v)
	h.input.Dispatch(&autocomplete.Event{Kind: autocomplete.EventChange})
	h.binding.Settle()
	log.Debugf("Took [ %v ] for query '%s'", time.Since(start), v)

	if !h.binding.Visible() && autocomplete.NormalizeQuery(v) != "" {
		log.Warnf("No matches for '%s'", v)
	}
}

func (h *InputHandler) key(name string) {
	ev := &autocomplete.Event{Kind: autocomplete.EventKeyDown, Key: name}
	h.input.Dispatch(ev)
	h.binding.Settle()
	if name == autocomplete.KeyEnter && !ev.DefaultPrevented() {
		log.Info("Enter not consumed, the form would submit")
	}
}

func (h *InputHandler) switchList(name string) {
	if name == "" {
		log.Error("usage: :list NAME")
		return
	}
	src, err := h.resolver.Source(name, h.binding.Options().MatchMode)
	if err != nil {
		log.Errorf("Cannot switch to list [%s]: %v", name, err)
		return
	}
	h.binding.UpdateCandidates(src)
	h.list = name
	log.Infof("Switched to list [%s]", name)
}

func (h *InputHandler) onSelect(c autocomplete.Candidate, in autocomplete.Input) {
	fmt.Fprintf(h.out, "selected: %s\n", c.Label)
	for _, a := range h.resolver.Fill(h.list).Apply(in.ID(), c, nil) {
		fmt.Fprintf(h.out, "  fill %s = %s\n", a.Field, a.Value)
	}
}

// Package session adapts remote clients, such as a browser page or an editor
// plugin, to the autocomplete engine.
//
// A client mirrors its text fields into a Session with requests; the session
// runs one binding per field and answers with frames describing what the
// client should render. The stdio and websocket servers differ only in how
// requests and frames are encoded.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrUnknownOp    = errors.New("unknown op")
	ErrMissingField = errors.New("missing field id")
	ErrNotBound     = errors.New("field is not bound")
	ErrClosed       = errors.New("session closed")
	ErrQueryTooLong = errors.New("query too long")
)

type field struct {
	input   *remoteInput
	binding *autocomplete.Binding
	list    string
	static  bool
	async   bool
	fill    bool
}

// Session is the server side of one client page.
type Session struct {
	id       string
	emit     Emitter
	resolver *Resolver
	engine   *autocomplete.Engine
	lat      *latency
	requests atomic.Int64
	maxQuery atomic.Int64
	unsub    func()

	mu       sync.Mutex
	defaults autocomplete.Options
	fields   *orderedmap.OrderedMap[string, *field]
	values   map[string]string
	closed   bool
}

// New creates a session answering through emit.
func New(resolver *Resolver, defaults autocomplete.Options, emit Emitter) *Session {
	s := &Session{
		id:       uuid.NewString(),
		emit:     emit,
		resolver: resolver,
		lat:      newLatency(),
		defaults: defaults,
		fields:   orderedmap.New[string, *field](),
		values:   make(map[string]string),
	}
	s.engine = autocomplete.NewEngine(defaults, func(in autocomplete.Input) autocomplete.Surface {
		return remoteSurface{field: in.ID(), emit: emit}
	})
	s.unsub = resolver.Subscribe(s.refreshSources)
	log.Debugf("Session %s opened", s.id)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// SetMaxQueryLen rejects input values longer than n runes. Zero or less
// disables the check.
func (s *Session) SetMaxQueryLen(n int) {
	s.maxQuery.Store(int64(n))
}

// SetDefaults changes the options of bindings created from now on.
func (s *Session) SetDefaults(opts autocomplete.Options) {
	s.mu.Lock()
	s.defaults = opts
	s.mu.Unlock()
}

// Handle processes one request. Failures are reported to the client as an
// error frame.
func (s *Session) Handle(req Request) {
	s.requests.Add(1)

	var err error
	switch req.Op {
	case OpBind:
		err = s.bind(req)
	case OpInput:
		err = s.input(req)
	case OpKey:
		err = s.key(req)
	case OpHover:
		err = s.dispatch(req, &autocomplete.Event{Kind: autocomplete.EventHover, Index: req.Index})
	case OpClick:
		err = s.dispatch(req, &autocomplete.Event{Kind: autocomplete.EventClick, Index: req.Index})
	case OpOutside:
		s.outside(req.Field)
	case OpUpdate:
		err = s.update(req)
	case OpDestroy:
		err = s.destroy(req)
	case OpLists:
		s.emit(Frame{Type: FrameLists, ID: req.ID, Lists: s.resolver.Lists()})
	case OpStats:
		st := s.Stats()
		s.emit(Frame{Type: FrameStats, ID: req.ID, Stats: &st})
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}

	if err != nil {
		log.Debugf("Session %s: %s %s: %v", s.id, req.Op, req.Field, err)
		s.emit(Frame{Type: FrameError, ID: req.ID, Field: req.Field, Error: err.Error()})
	}
}

// bound returns the live field for id.
func (s *Session) bound(id string) (*field, error) {
	if id == "" {
		return nil, ErrMissingField
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	f, ok := s.fields.Get(id)
	if !ok || f.binding.Destroyed() {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, id)
	}
	return f, nil
}

func (s *Session) bind(req Request) error {
	if req.Field == "" {
		return ErrMissingField
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if f, ok := s.fields.Get(req.Field); ok && !f.binding.Destroyed() {
		s.mu.Unlock()
		s.emit(Frame{Type: FrameAck, ID: req.ID, Field: req.Field})
		return nil
	}
	opts := s.defaults
	initial := s.values[req.Field]
	s.mu.Unlock()

	fill := true
	if o := req.Options; o != nil {
		if o.MinQueryLength != nil {
			opts.MinQueryLength = *o.MinQueryLength
		}
		if o.MaxResults != nil {
			opts.MaxResults = *o.MaxResults
		}
		if o.MatchMode != "" {
			opts.MatchMode = autocomplete.ParseMatchMode(o.MatchMode)
		}
		fill = !o.NoFill
	}

	f := &field{list: req.List, fill: fill}
	src, static, async, err := s.source(req, opts.MatchMode)
	if err != nil {
		return err
	}
	f.static, f.async = static, async

	f.input = newRemoteInput(req.Field, s.emit)
	f.input.setLocal(initial)
	opts.OnSelect = s.onSelect(f)

	b, err := s.engine.Bind(f.input, src, autocomplete.WithOptions(opts))
	if err != nil {
		return err
	}
	f.binding = b

	s.mu.Lock()
	s.fields.Set(req.Field, f)
	delete(s.values, req.Field)
	s.mu.Unlock()

	s.emit(Frame{Type: FrameAck, ID: req.ID, Field: req.Field})
	return nil
}

// source picks the candidates for a bind or update request: inline items
// win over a list name.
func (s *Session) source(req Request, mode autocomplete.MatchMode) (src autocomplete.Source, static, async bool, err error) {
	if req.Items != nil {
		return autocomplete.Static(req.Items), true, false, nil
	}
	if req.List == "" {
		return autocomplete.Static(nil), true, false, nil
	}
	src, async, err = s.resolver.source(req.List, mode, s.lat.record)
	return src, false, async, err
}

func (s *Session) input(req Request) error {
	if req.Field == "" {
		return ErrMissingField
	}
	if limit := s.maxQuery.Load(); limit > 0 && int64(utf8.RuneCountInString(req.Value)) > limit {
		return fmt.Errorf("%w: query exceeds maximum length of %d characters", ErrQueryTooLong, limit)
	}
	f, err := s.bound(req.Field)
	if err != nil {
		if !errors.Is(err, ErrNotBound) {
			return err
		}
		// Plain field; remembered for fill rules.
		s.mu.Lock()
		s.values[req.Field] = req.Value
		s.mu.Unlock()
		return nil
	}

	start := time.Now()
	f.input.setLocal(req.Value)
	f.input.Dispatch(&autocomplete.Event{Kind: autocomplete.EventChange})
	s.mu.Lock()
	async := f.async
	s.mu.Unlock()
	if !async {
		// Remote lookups are timed when they finish.
		s.lat.record(time.Since(start))
	}
	return nil
}

func (s *Session) key(req Request) error {
	f, err := s.bound(req.Field)
	if err != nil {
		return err
	}
	ev := &autocomplete.Event{Kind: autocomplete.EventKeyDown, Key: req.Key}
	f.input.Dispatch(ev)
	s.emit(Frame{Type: FrameKey, ID: req.ID, Field: req.Field, Key: req.Key, Prevented: ev.DefaultPrevented()})
	return nil
}

func (s *Session) dispatch(req Request, ev *autocomplete.Event) error {
	f, err := s.bound(req.Field)
	if err != nil {
		return err
	}
	f.input.Dispatch(ev)
	return nil
}

// outside tells every binding except the one of the clicked field that the
// pointer went elsewhere.
func (s *Session) outside(clicked string) {
	var inputs []*remoteInput
	s.mu.Lock()
	for pair := s.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != clicked {
			inputs = append(inputs, pair.Value.input)
		}
	}
	s.mu.Unlock()

	for _, in := range inputs {
		in.Dispatch(&autocomplete.Event{Kind: autocomplete.EventPointerOutside})
	}
}

func (s *Session) update(req Request) error {
	f, err := s.bound(req.Field)
	if err != nil {
		return err
	}
	src, static, async, err := s.source(req, f.binding.Options().MatchMode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	f.static, f.async = static, async
	if req.List != "" {
		f.list = req.List
	}
	s.mu.Unlock()

	f.binding.UpdateCandidates(src)
	s.emit(Frame{Type: FrameAck, ID: req.ID, Field: req.Field})
	return nil
}

func (s *Session) destroy(req Request) error {
	var targets []*field
	s.mu.Lock()
	if req.Field == "" {
		for pair := s.fields.Oldest(); pair != nil; pair = pair.Next() {
			targets = append(targets, pair.Value)
		}
	} else if f, ok := s.fields.Get(req.Field); ok {
		targets = append(targets, f)
	}
	for _, f := range targets {
		s.fields.Delete(f.input.ID())
		s.values[f.input.ID()] = f.input.Value()
	}
	s.mu.Unlock()

	if req.Field != "" && len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNotBound, req.Field)
	}
	for _, f := range targets {
		f.binding.Destroy()
	}
	s.emit(Frame{Type: FrameAck, ID: req.ID, Field: req.Field})
	return nil
}

// onSelect reports the pick and applies the list's fill rule to sibling fields.
func (s *Session) onSelect(f *field) autocomplete.SelectFunc {
	return func(c autocomplete.Candidate, in autocomplete.Input) {
		s.emit(Frame{Type: FrameSelect, Field: in.ID(), Value: c.Label, Candidate: &c})

		s.mu.Lock()
		list, fill := f.list, f.fill && !f.static
		s.mu.Unlock()
		if !fill || list == "" {
			return
		}
		for _, a := range s.resolver.Fill(list).Apply(in.ID(), c, s.valueOf) {
			s.assign(a.Field, a.Value)
		}
	}
}

func (s *Session) valueOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fields.Get(id); ok {
		return f.input.Value()
	}
	return s.values[id]
}

// assign writes a sibling field without emitting a change, so a bound
// sibling does not open its own dropdown.
func (s *Session) assign(id, value string) {
	s.mu.Lock()
	f, ok := s.fields.Get(id)
	if !ok {
		s.values[id] = value
	}
	s.mu.Unlock()

	if ok {
		f.input.SetValue(value)
		return
	}
	s.emit(Frame{Type: FrameValue, Field: id, Value: value})
}

// refreshSources re-resolves list-backed bindings after the catalog changed.
func (s *Session) refreshSources() {
	var targets []*field
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for pair := s.fields.Oldest(); pair != nil; pair = pair.Next() {
		if f := pair.Value; !f.static && f.list != "" {
			targets = append(targets, f)
		}
	}
	s.mu.Unlock()

	for _, f := range targets {
		src, async, err := s.resolver.source(f.list, f.binding.Options().MatchMode, s.lat.record)
		if err != nil {
			log.Warnf("Session %s: list [%s] for field [%s]: %v", s.id, f.list, f.input.ID(), err)
			src = nil
		}
		s.mu.Lock()
		f.async = async
		s.mu.Unlock()
		f.binding.UpdateCandidates(src)
	}
	if len(targets) > 0 {
		log.Debugf("Session %s: refreshed %d bindings", s.id, len(targets))
	}
}

// Binding returns the live binding of a field.
func (s *Session) Binding(id string) (*autocomplete.Binding, bool) {
	f, err := s.bound(id)
	if err != nil {
		return nil, false
	}
	return f.binding, true
}

// Settle waits for background lookups of every binding.
func (s *Session) Settle() {
	for _, b := range s.engine.Bindings() {
		b.Settle()
	}
}

// Stats reports session counters and match latency quantiles.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	fields := s.fields.Len() + len(s.values)
	s.mu.Unlock()
	return Stats{
		Session:  s.id,
		Fields:   fields,
		Bindings: s.engine.Len(),
		Requests: s.requests.Load(),
		Lookups:  s.lat.count(),
		Latency:  s.lat.quantiles(),
	}
}

// Close destroys every binding. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsub()
	s.engine.DestroyAll()
	log.Debugf("Session %s closed after %d requests", s.id, s.requests.Load())
}

package autocomplete

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNilInput is returned by Bind when no input is given.
	ErrNilInput = errors.New("autocomplete: nil input")
	// ErrSourcePanic wraps a panic raised inside a candidate source.
	ErrSourcePanic = errors.New("autocomplete: candidate source panicked")
)

// Source yields the candidates for a query.
// A source may ignore the query entirely; the engine filters the result either way.
type Source interface {
	Candidates(query string) ([]Candidate, error)
}

// Static is a fixed ordered candidate list.
type Static []Candidate

// Candidates returns the list as is.
func (s Static) Candidates(string) ([]Candidate, error) {
	return s, nil
}

// SourceFunc adapts a function to Source.
type SourceFunc func(query string) ([]Candidate, error)

// Candidates calls f.
func (f SourceFunc) Candidates(query string) ([]Candidate, error) {
	if f == nil {
		return nil, nil
	}
	return f(query)
}

// AsyncSource is a candidate lookup that may block (database, network).
// The context is cancelled as soon as a newer query supersedes this one.
type AsyncSource interface {
	Lookup(ctx context.Context, query string) ([]Candidate, error)
}

// asyncSource marks an AsyncSource so bindings run it off the event path.
type asyncSource struct {
	AsyncSource
}

// Candidates runs the lookup synchronously, for callers outside a binding.
func (a asyncSource) Candidates(query string) ([]Candidate, error) {
	return a.Lookup(context.Background(), query)
}

// Async wraps src so that bindings evaluate it in the background and
// discard results whose query is no longer current.
func Async(src AsyncSource) Source {
	if src == nil {
		return nil
	}
	return asyncSource{src}
}

// evaluate calls src, converting a panic into an error.
func evaluate(src Source, query string) (cands []Candidate, err error) {
	if src == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			cands = nil
			err = fmt.Errorf("%w: %v", ErrSourcePanic, r)
		}
	}()
	return src.Candidates(query)
}

// lookup is evaluate for asynchronous sources.
func lookup(ctx context.Context, src AsyncSource, query string) (cands []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cands = nil
			err = fmt.Errorf("%w: %v", ErrSourcePanic, r)
		}
	}()
	return src.Lookup(ctx, query)
}

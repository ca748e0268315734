package session

import (
	"context"
	"sync"
	"time"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/charmbracelet/log"
)

// Remote is a backend answering lookups for a named list, such as the
// sqlite store or the redis suggestion client.
type Remote interface {
	Source(list string) autocomplete.AsyncSource
}

// Resolver turns list names into candidate sources. It is shared by every
// session of a process and notifies them when the catalog is replaced.
type Resolver struct {
	mu     sync.RWMutex
	cat    *catalog.Catalog
	remote Remote
	useIdx bool

	subMu sync.Mutex
	subs  map[int]func()
	next  int
}

// NewResolver serves lists from cat. With useIndex set, lists are answered
// from their prefix index instead of a linear scan.
func NewResolver(cat *catalog.Catalog, useIndex bool) *Resolver {
	if cat == nil {
		cat = catalog.New()
	}
	return &Resolver{cat: cat, useIdx: useIndex, subs: make(map[int]func())}
}

// SetRemote makes every list lookup go through r. Fill rules still come from
// the catalog.
func (r *Resolver) SetRemote(remote Remote) {
	r.mu.Lock()
	r.remote = remote
	r.mu.Unlock()
	r.notify()
}

// Catalog returns the current catalog.
func (r *Resolver) Catalog() *catalog.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cat
}

// Source returns the candidate source for list.
func (r *Resolver) Source(list string, mode autocomplete.MatchMode) (autocomplete.Source, error) {
	src, _, err := r.source(list, mode, nil)
	return src, err
}

// source is Source reporting whether the list is answered in the
// background. observe, when set, receives the duration of every
// successful remote lookup.
func (r *Resolver) source(list string, mode autocomplete.MatchMode, observe func(time.Duration)) (autocomplete.Source, bool, error) {
	r.mu.RLock()
	cat, remote, useIdx := r.cat, r.remote, r.useIdx
	r.mu.RUnlock()

	if remote != nil {
		as := remote.Source(list)
		if observe != nil {
			as = timedLookup{src: as, observe: observe}
		}
		return autocomplete.Async(as), true, nil
	}
	if useIdx {
		idx, err := cat.Index(list)
		if err != nil {
			return nil, false, err
		}
		return idx.Source(mode), false, nil
	}
	src, err := cat.Source(list)
	return src, false, err
}

type timedLookup struct {
	src     autocomplete.AsyncSource
	observe func(time.Duration)
}

func (t timedLookup) Lookup(ctx context.Context, query string) ([]autocomplete.Candidate, error) {
	start := time.Now()
	cands, err := t.src.Lookup(ctx, query)
	if err == nil {
		t.observe(time.Since(start))
	}
	return cands, err
}

// Fill returns the fill rule of list.
func (r *Resolver) Fill(list string) catalog.FillRule {
	return r.Catalog().Fill(list)
}

// Lists describes the catalog lists in order.
func (r *Resolver) Lists() []ListInfo {
	cat := r.Catalog()
	names := cat.Names()
	out := make([]ListInfo, 0, len(names))
	for _, name := range names {
		cands, _ := cat.List(name)
		out = append(out, ListInfo{Name: name, Count: len(cands)})
	}
	return out
}

// Replace swaps the catalog and tells every subscriber.
func (r *Resolver) Replace(cat *catalog.Catalog) {
	if cat == nil {
		return
	}
	r.mu.Lock()
	r.cat = cat
	r.mu.Unlock()
	log.Infof("Catalog replaced: %d lists, %d candidates", cat.Len(), cat.Count())
	r.notify()
}

// Subscribe registers fn to run after the catalog or backend changes.
func (r *Resolver) Subscribe(fn func()) (cancel func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.next
	r.next++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Resolver) notify() {
	r.subMu.Lock()
	fns := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

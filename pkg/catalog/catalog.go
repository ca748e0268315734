// Package catalog holds the reference lists (suppliers, items, staff) that feed
// the autocomplete fields, and the rules that fill sibling fields after a pick.
package catalog

import (
	"errors"
	"sync"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/suggest"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrUnknownList is returned for a list name the catalog does not hold.
	ErrUnknownList = errors.New("catalog: unknown list")
	// ErrUnknownFormat is returned for files with no catalog extension.
	ErrUnknownFormat = errors.New("catalog: unknown file format")
)

// Catalog is a set of named, ordered candidate lists.
type Catalog struct {
	lists *orderedmap.OrderedMap[string, []autocomplete.Candidate]
	fills map[string]FillRule

	mu      sync.Mutex
	indexes map[string]*suggest.Index
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		lists:   orderedmap.New[string, []autocomplete.Candidate](),
		fills:   make(map[string]FillRule),
		indexes: make(map[string]*suggest.Index),
	}
}

// Add appends cands to the named list, creating it if needed.
func (c *Catalog) Add(name string, cands ...autocomplete.Candidate) {
	cur, _ := c.lists.Get(name)
	merged := make([]autocomplete.Candidate, 0, len(cur)+len(cands))
	merged = append(merged, cur...)
	merged = append(merged, cands...)
	c.lists.Set(name, merged)

	c.mu.Lock()
	delete(c.indexes, name)
	c.mu.Unlock()
}

// SetFill installs the fill rule of a list.
func (c *Catalog) SetFill(name string, rule FillRule) {
	c.fills[name] = rule
}

// Merge appends every list of other into c, in other's order.
// Fill rules of other win.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	for pair := other.lists.Oldest(); pair != nil; pair = pair.Next() {
		c.Add(pair.Key, pair.Value...)
	}
	for name, rule := range other.fills {
		c.fills[name] = rule
	}
}

// Names returns the list names in load order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, c.lists.Len())
	for pair := c.lists.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Has reports whether the list exists.
func (c *Catalog) Has(name string) bool {
	_, ok := c.lists.Get(name)
	return ok
}

// List returns the candidates of the named list.
func (c *Catalog) List(name string) ([]autocomplete.Candidate, error) {
	cands, ok := c.lists.Get(name)
	if !ok {
		return nil, ErrUnknownList
	}
	return cands, nil
}

// Len returns the number of lists.
func (c *Catalog) Len() int {
	return c.lists.Len()
}

// Count returns the number of candidates over all lists.
func (c *Catalog) Count() int {
	n := 0
	for pair := c.lists.Oldest(); pair != nil; pair = pair.Next() {
		n += len(pair.Value)
	}
	return n
}

// Source returns a static source over the named list.
func (c *Catalog) Source(name string) (autocomplete.Source, error) {
	cands, err := c.List(name)
	if err != nil {
		return nil, err
	}
	return autocomplete.Static(cands), nil
}

// Index returns the trie index of the named list, built on first use.
func (c *Catalog) Index(name string) (*suggest.Index, error) {
	cands, err := c.List(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indexes[name]; ok {
		return idx, nil
	}
	idx := suggest.NewIndex(cands)
	c.indexes[name] = idx
	return idx, nil
}

// Fill returns the fill rule of a list. A list without rule gets an empty one.
func (c *Catalog) Fill(name string) FillRule {
	return c.fills[name]
}

// Find returns the first candidate of the list with the given label.
func (c *Catalog) Find(name, label string) (autocomplete.Candidate, bool) {
	cands, _ := c.lists.Get(name)
	for _, cand := range cands {
		if cand.Label == label {
			return cand, true
		}
	}
	return autocomplete.Candidate{}, false
}

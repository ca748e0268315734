// Package suggest indexes candidate lists in patricia tries so that lookups do
// not scan the whole list.
package suggest

import (
	"sort"
	"strings"
	"sync"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

var stringPool = sync.Map{}

func internString(s string) string {
	if cached, exists := stringPool.Load(s); exists {
		return cached.(string)
	}
	stringPool.Store(s, s)
	return s
}

// Index answers match queries over one ordered candidate list.
//
// Every lowercased label is inserted twice: whole into labels, and as each of
// its rune-aligned suffixes into suffixes. A contains query is then a subtree
// visit of suffixes, a startsWith query a subtree visit of labels and an exact
// query a single Get. Items are the candidate positions so results come back
// in list order.
type Index struct {
	mu       sync.RWMutex
	cands    []autocomplete.Candidate
	labels   *patricia.Trie
	suffixes *patricia.Trie
	keys     int
}

// NewIndex builds an index over cands. The slice is copied.
func NewIndex(cands []autocomplete.Candidate) *Index {
	idx := &Index{}
	idx.Reset(cands)
	return idx
}

// Reset rebuilds the index over a new list.
func (idx *Index) Reset(cands []autocomplete.Candidate) {
	labels := patricia.NewTrie()
	suffixes := patricia.NewTrie()
	keys := 0

	own := make([]autocomplete.Candidate, len(cands))
	copy(own, cands)

	for pos, c := range own {
		lower := internString(strings.ToLower(c.Label))
		addPosition(labels, lower, pos)
		for i := range lower {
			if addPosition(suffixes, lower[i:], pos) {
				keys++
			}
		}
	}

	idx.mu.Lock()
	idx.cands = own
	idx.labels = labels
	idx.suffixes = suffixes
	idx.keys = keys
	idx.mu.Unlock()

	log.Debugf("Indexed %d candidates (%d suffix keys)", len(own), keys)
}

// addPosition appends pos to the item stored under key and reports whether
// the key is new.
func addPosition(t *patricia.Trie, key string, pos int) bool {
	p := patricia.Prefix(key)
	if item := t.Get(p); item != nil {
		t.Set(p, append(item.([]int), pos))
		return false
	}
	t.Insert(p, []int{pos})
	return true
}

// Len returns the number of indexed candidates.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.cands)
}

// Lookup returns the candidates matching query under mode, in list order,
// truncated to max. A max of zero or less keeps every match.
func (idx *Index) Lookup(query string, mode autocomplete.MatchMode, max int) []autocomplete.Candidate {
	q := autocomplete.NormalizeQuery(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var positions []int
	switch mode {
	case autocomplete.MatchExact:
		if item := idx.labels.Get(patricia.Prefix(q)); item != nil {
			positions = item.([]int)
		}
	case autocomplete.MatchStartsWith:
		positions = collect(idx.labels, q, len(idx.cands))
	default:
		positions = collect(idx.suffixes, q, len(idx.cands))
	}

	positions = uniqueSorted(positions)
	if max > 0 && len(positions) > max {
		positions = positions[:max]
	}
	if len(positions) == 0 {
		return nil
	}

	out := make([]autocomplete.Candidate, len(positions))
	for i, pos := range positions {
		out[i] = idx.cands[pos]
	}
	return out
}

// collect gathers every position stored under the prefix q.
// The empty prefix matches the whole list.
func collect(t *patricia.Trie, q string, n int) []int {
	if q == "" {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	var positions []int
	err := t.VisitSubtree(patricia.Prefix(q), func(_ patricia.Prefix, item patricia.Item) error {
		positions = append(positions, item.([]int)...)
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting index subtree: %v", err)
	}
	return positions
}

// uniqueSorted sorts positions and drops repeats. A label containing the query
// twice is reached through two suffixes.
func uniqueSorted(positions []int) []int {
	if len(positions) < 2 {
		return positions
	}
	sorted := make([]int, len(positions))
	copy(sorted, positions)
	sort.Ints(sorted)

	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// Candidates implements autocomplete.Source with contains semantics. Contains
// is the widest mode, so the engine can narrow the result for any binding.
func (idx *Index) Candidates(query string) ([]autocomplete.Candidate, error) {
	return idx.Lookup(query, autocomplete.MatchContains, 0), nil
}

// Source returns a source answering with the given mode.
func (idx *Index) Source(mode autocomplete.MatchMode) autocomplete.Source {
	return autocomplete.SourceFunc(func(query string) ([]autocomplete.Candidate, error) {
		return idx.Lookup(query, mode, 0), nil
	})
}

// Stats returns statistics about the index.
func (idx *Index) Stats() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return map[string]int{
		"candidates": len(idx.cands),
		"suffixKeys": idx.keys,
	}
}

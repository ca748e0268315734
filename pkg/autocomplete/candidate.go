package autocomplete

import "strings"

// Candidate is an item offered as a suggestion.
// Identity is the Label; ID and Meta are carried through to OnSelect untouched.
type Candidate struct {
	ID    string            `json:"id,omitempty" msgpack:"id,omitempty"`
	Label string            `json:"label" msgpack:"label"`
	Meta  map[string]string `json:"meta,omitempty" msgpack:"meta,omitempty"`
}

// Text builds a plain text candidate.
func Text(label string) Candidate {
	return Candidate{Label: label}
}

// Texts builds plain text candidates, keeping the given order.
func Texts(labels ...string) []Candidate {
	cands := make([]Candidate, len(labels))
	for i, l := range labels {
		cands[i] = Text(l)
	}
	return cands
}

// Labels returns the labels of cands in order.
func Labels(cands []Candidate) []string {
	labels := make([]string, len(cands))
	for i, c := range cands {
		labels[i] = c.Label
	}
	return labels
}

// Value returns the metadata value stored under key, or "".
func (c Candidate) Value(key string) string {
	if c.Meta == nil {
		return ""
	}
	return c.Meta[key]
}

// matchKey is the lowercased label used by every match mode.
func (c Candidate) matchKey() string {
	return strings.ToLower(c.Label)
}

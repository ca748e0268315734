package autocomplete

import (
	"strings"
)

// MatchMode selects the test applied between the query and each lowercased label.
type MatchMode int

const (
	// MatchContains keeps labels containing the query anywhere.
	MatchContains MatchMode = iota
	// MatchStartsWith keeps labels beginning with the query.
	MatchStartsWith
	// MatchExact keeps labels equal to the query.
	MatchExact
)

func (m MatchMode) String() string {
	switch m {
	case MatchStartsWith:
		return "startsWith"
	case MatchExact:
		return "exact"
	default:
		return "contains"
	}
}

// ParseMatchMode maps a mode name to a MatchMode.
// Unknown names fall back to MatchContains.
func ParseMatchMode(s string) MatchMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "startswith", "starts_with", "starts", "prefix":
		return MatchStartsWith
	case "exact":
		return MatchExact
	default:
		return MatchContains
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MatchMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (m *MatchMode) UnmarshalText(text []byte) error {
	*m = ParseMatchMode(string(text))
	return nil
}

// valid reports whether m is one of the declared modes.
func (m MatchMode) valid() bool {
	return m >= MatchContains && m <= MatchExact
}

// NormalizeQuery trims and lowercases raw input text.
func NormalizeQuery(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Match reports whether the lowercased label satisfies the normalized query.
func (m MatchMode) Match(lowerLabel, query string) bool {
	switch m {
	case MatchStartsWith:
		return strings.HasPrefix(lowerLabel, query)
	case MatchExact:
		return lowerLabel == query
	default:
		return strings.Contains(lowerLabel, query)
	}
}

// Filter returns the candidates matching query in their original order,
// truncated to max. A max of zero or less keeps every match.
func Filter(cands []Candidate, query string, mode MatchMode, max int) []Candidate {
	q := NormalizeQuery(query)
	var out []Candidate
	for _, c := range cands {
		if !mode.Match(c.matchKey(), q) {
			continue
		}
		out = append(out, c)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

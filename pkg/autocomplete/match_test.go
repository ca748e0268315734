package autocomplete

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var pharmaCandidates = Texts("Alpha Pharma", "Beta Pharma", "Gamma Supplies")

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		cands []Candidate
		query string
		mode  MatchMode
		max   int
		want  []string
	}{
		{"ContainsKeepsSourceOrder", pharmaCandidates, "pharma", MatchContains, 10, []string{"Alpha Pharma", "Beta Pharma"}},
		{"QueryIsTrimmedAndLowered", pharmaCandidates, "  PHARMA ", MatchContains, 10, []string{"Alpha Pharma", "Beta Pharma"}},
		{"StartsWith", pharmaCandidates, "gam", MatchStartsWith, 10, []string{"Gamma Supplies"}},
		{"StartsWithRejectsInfix", pharmaCandidates, "pharma", MatchStartsWith, 10, nil},
		{"ExactIgnoresCase", pharmaCandidates, "beta pharma", MatchExact, 10, []string{"Beta Pharma"}},
		{"ExactRejectsPartial", pharmaCandidates, "beta", MatchExact, 10, nil},
		{"Truncates", pharmaCandidates, "a", MatchContains, 2, []string{"Alpha Pharma", "Beta Pharma"}},
		{"NoLimit", pharmaCandidates, "a", MatchContains, 0, []string{"Alpha Pharma", "Beta Pharma", "Gamma Supplies"}},
		{"DuplicatesKept", Texts("Gauze", "Syringe", "Gauze"), "gau", MatchContains, 10, []string{"Gauze", "Gauze"}},
		{"NilSource", nil, "x", MatchContains, 10, nil},
		{"Arabic", Texts("شركة الأدوية المصرية المتحدة", "مؤسسة التوريدات الصحية الحديثة"), "الأدوية", MatchContains, 10, []string{"شركة الأدوية المصرية المتحدة"}},
		{"UnknownModeIsContains", pharmaCandidates, "supplies", MatchMode(42), 10, []string{"Gamma Supplies"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Labels(Filter(tc.cands, tc.query, tc.mode, tc.max))
			if len(tc.want) == 0 && len(got) == 0 {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Filter(%q) mismatch (-want +got):\n%s", tc.query, diff)
			}
		})
	}
}

// The contains match set is the stable subsequence of matching labels, truncated.
func TestFilterIsStableSubsequence(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 60; i++ {
		cands = append(cands, Text(fmt.Sprintf("Item-%02d %s", i, strings.Repeat("x", i%4))))
	}
	queries := []string{"item", "xx", "1", "-0", "ITEM-4", "zzz", " x "}

	for _, q := range queries {
		for _, max := range []int{1, 5, 10, 100} {
			got := Filter(cands, q, MatchContains, max)

			nq := NormalizeQuery(q)
			var want []Candidate
			for _, c := range cands {
				if strings.Contains(strings.ToLower(c.Label), nq) && len(want) < max {
					want = append(want, c)
				}
			}
			if diff := cmp.Diff(Labels(want), Labels(got)); diff != "" {
				t.Errorf("query=%q max=%d (-want +got):\n%s", q, max, diff)
			}
		}
	}
}

func TestParseMatchMode(t *testing.T) {
	tests := map[string]MatchMode{
		"contains":   MatchContains,
		"startsWith": MatchStartsWith,
		"starts":     MatchStartsWith,
		"exact":      MatchExact,
		"EXACT":      MatchExact,
		"fuzzy":      MatchContains,
		"":           MatchContains,
	}
	for in, want := range tests {
		if got := ParseMatchMode(in); got != want {
			t.Errorf("ParseMatchMode(%q) = %v, want %v", in, got, want)
		}
	}

	var m MatchMode
	if err := m.UnmarshalText([]byte("bogus")); err != nil || m != MatchContains {
		t.Errorf("UnmarshalText(bogus) = %v, %v", m, err)
	}
}

package catalog

import (
	"strings"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
)

// RowPlaceholder in a FillField target is replaced by the trailing digits of
// the selected field's ID.
const RowPlaceholder = "{n}"

// FillField copies one metadata value into a sibling field.
type FillField struct {
	Meta  string `toml:"meta" yaml:"meta" json:"meta"`
	Field string `toml:"field" yaml:"field" json:"field"`
	// OnlyEmpty leaves fields holding a value other than "" or "0" alone.
	OnlyEmpty bool `toml:"only_empty" yaml:"only_empty" json:"only_empty,omitempty"`
}

// FillRule lists the sibling fields written after a candidate of a list is picked.
type FillRule []FillField

// Assignment is one sibling field value to write.
type Assignment struct {
	Field string `json:"field" msgpack:"field"`
	Value string `json:"value" msgpack:"value"`
}

// Apply resolves the rule for a candidate picked in field selectedID.
// current returns the present value of a sibling field. Fields whose metadata
// value is empty are skipped.
func (r FillRule) Apply(selectedID string, c autocomplete.Candidate, current func(field string) string) []Assignment {
	row := rowSuffix(selectedID)

	var out []Assignment
	for _, f := range r {
		value := c.Value(f.Meta)
		if value == "" || f.Field == "" {
			continue
		}
		field := strings.ReplaceAll(f.Field, RowPlaceholder, row)
		if f.OnlyEmpty && current != nil {
			if v := strings.TrimSpace(current(field)); v != "" && v != "0" {
				continue
			}
		}
		out = append(out, Assignment{Field: field, Value: value})
	}
	return out
}

func rowSuffix(id string) string {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	return id[i:]
}

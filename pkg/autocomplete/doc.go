/*
Package autocomplete turns a plain text input into a filtered-choice picker.

The package holds the matching and selection state machine only. It never draws
anything itself: hosts hand it an Input (something with a text value that emits
change and key notifications) and optionally a Surface (the dropdown renderer), and
the engine drives both.

# Binding

A Binding ties one Input to one candidate Source:

	eng := autocomplete.NewEngine(autocomplete.DefaultOptions(), nil)
	b, err := eng.Bind(input, autocomplete.Static(autocomplete.Texts("Alpha Pharma", "Beta Pharma")),
		autocomplete.WithOnSelect(func(c autocomplete.Candidate, in autocomplete.Input) {
			// cross-fill sibling fields here
		}))

Binding the same input twice returns the existing handle. Destroy detaches the
listener and the dropdown; every later call on the handle is a no-op.

# Matching

On every change the query is the trimmed, lowercased input text. Queries shorter
than MinQueryLength close the dropdown. Otherwise the source is evaluated and
filtered with the binding's MatchMode, keeping the source order, then truncated to
MaxResults:

	autocomplete.Filter(cands, "pharma", autocomplete.MatchContains, 10)

Duplicated labels are kept; ranking by match quality is never applied.

# Keys

ArrowDown opens the dropdown when it is hidden and otherwise moves the highlight
forward, ArrowUp moves it back down to -1 (nothing highlighted), Enter commits the
highlighted candidate and Escape closes the dropdown. Enter is only marked as
handled when something was committed so host forms keep their submit behavior.

# Failures

Sources that return an error or panic produce zero matches for that keystroke.
Asynchronous sources run off the event path; a result is applied only while its
query still matches the input's text.
*/
package autocomplete

package autocomplete

const (
	// DefaultMinQueryLength is the shortest query that opens the dropdown.
	DefaultMinQueryLength = 1
	// DefaultMaxResults caps the match set.
	DefaultMaxResults = 10
)

// SelectFunc is called after a candidate is committed into in.
// It may write sibling fields; the engine does not depend on it.
type SelectFunc func(c Candidate, in Input)

// Options configures one binding.
type Options struct {
	// MinQueryLength is counted in runes after trimming.
	MinQueryLength int
	// MaxResults truncates the match set. Zero or less means DefaultMaxResults.
	MaxResults int
	MatchMode  MatchMode
	OnSelect   SelectFunc
}

// DefaultOptions returns the options used when a binding sets nothing.
func DefaultOptions() Options {
	return Options{
		MinQueryLength: DefaultMinQueryLength,
		MaxResults:     DefaultMaxResults,
		MatchMode:      MatchContains,
	}
}

// normalized clamps out of range values instead of rejecting them.
func (o Options) normalized() Options {
	if o.MinQueryLength < 0 {
		o.MinQueryLength = 0
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if !o.MatchMode.valid() {
		o.MatchMode = MatchContains
	}
	return o
}

// Option adjusts binding options on top of the engine defaults.
type Option func(*Options)

// WithOptions replaces every option at once.
func WithOptions(opts Options) Option {
	return func(o *Options) { *o = opts }
}

// WithMinQueryLength sets the shortest query that opens the dropdown.
func WithMinQueryLength(n int) Option {
	return func(o *Options) { o.MinQueryLength = n }
}

// WithMaxResults caps the match set.
func WithMaxResults(n int) Option {
	return func(o *Options) { o.MaxResults = n }
}

// WithMatchMode sets the match test.
func WithMatchMode(m MatchMode) Option {
	return func(o *Options) { o.MatchMode = m }
}

// WithOnSelect sets the selection callback.
func WithOnSelect(fn SelectFunc) Option {
	return func(o *Options) { o.OnSelect = fn }
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	activeStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#191724"}).
			Background(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	metaStyle = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#9893a5", Dark: "#6e6a86"})
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#dfdad9", Dark: "#403d52"})
)

// TerminalSurface draws the dropdown as a box of numbered rows.
type TerminalSurface struct {
	w        io.Writer
	width    int
	showMeta bool

	mu          sync.Mutex
	matches     []autocomplete.Candidate
	highlighted int
}

// NewTerminalSurface renders to w, padding rows to width cells.
func NewTerminalSurface(w io.Writer, width int, showMeta bool) *TerminalSurface {
	if width < 16 {
		width = 16
	}
	return &TerminalSurface{w: w, width: width, showMeta: showMeta, highlighted: -1}
}

func (s *TerminalSurface) Show(matches []autocomplete.Candidate, highlighted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = matches
	s.highlighted = highlighted
	s.render()
}

func (s *TerminalSurface) Highlight(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlighted = index
	if len(s.matches) > 0 {
		s.render()
	}
}

func (s *TerminalSurface) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = nil
	s.highlighted = -1
	fmt.Fprintln(s.w, metaStyle.Render("(dropdown closed)"))
}

func (s *TerminalSurface) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = nil
}

// render must be called with mu held.
func (s *TerminalSurface) render() {
	fmt.Fprintln(s.w, boxStyle.Render(strings.Join(s.rows(), "\n")))
}

// rows lays out one line per match. Widths are measured in terminal cells so
// wide and right-to-left labels line up.
func (s *TerminalSurface) rows() []string {
	rows := make([]string, len(s.matches))
	for i, c := range s.matches {
		text := fmt.Sprintf("%2d. %s", i+1, c.Label)
		if s.showMeta && len(c.Meta) > 0 {
			text += "  - " + formatMeta(c.Meta)
		}
		text = runewidth.Truncate(text, s.width, "…")
		text = runewidth.FillRight(text, s.width)

		style := rowStyle
		if i == s.highlighted {
			style = activeStyle
		}
		rows[i] = style.Render(text)
	}
	return rows
}

func formatMeta(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + meta[k]
	}
	return strings.Join(parts, " ")
}

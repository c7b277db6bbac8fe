// Package operator writes the human-facing stream: severity echoes, raw
// statistics payloads, and abort summaries. Statistics are written verbatim
// so the stream can be piped into an aggregator.
package operator

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/signalnine/grind/internal/classify"
	"github.com/signalnine/grind/internal/result"
	"golang.org/x/term"
)

var prefixes = map[classify.Tag]string{
	classify.Warning:  "%%% WARN:",
	classify.Error:    "%%% ERRO:",
	classify.Critical: "%%% CRIT:",
}

var colors = map[classify.Tag]lipgloss.Color{
	classify.Warning:  lipgloss.Color("214"),
	classify.Error:    lipgloss.Color("203"),
	classify.Critical: lipgloss.Color("199"),
}

type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[classify.Tag]lipgloss.Style
}

// New returns a Stream writing to w. Prefixes are coloured only when color
// is set and w supports it.
func New(w io.Writer, color bool) *Stream {
	s := &Stream{w: w}
	if color {
		r := lipgloss.NewRenderer(w)
		s.styles = make(map[classify.Tag]lipgloss.Style, len(colors))
		for tag, c := range colors {
			s.styles[tag] = r.NewStyle().Foreground(c).Bold(true)
		}
	}
	return s
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Echo writes a warning, error or critical line with its severity prefix.
// Other tags are ignored.
func (s *Stream) Echo(tag classify.Tag, raw string) {
	prefix, ok := prefixes[tag]
	if !ok {
		return
	}
	if style, ok := s.styles[tag]; ok {
		prefix = style.Render(prefix)
	}
	s.write(prefix + " " + raw + "\n")
}

// Stat writes a statistics payload with no decoration.
func (s *Stream) Stat(payload string) {
	s.write(payload + "\n")
}

// Aborted writes the one-line abort summary.
func (s *Stream) Aborted(index uint64, cause result.AbortCause) {
	s.write(result.AbortSummary(index, cause) + "\n")
}

func (s *Stream) write(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, text)
}

// Package logger writes the human-readable verification report to the console and an
// optional log file. Operational logging goes through log/slog instead.
package logger

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// BorderLength is the width of border lines.
const BorderLength = 79

// ANSI colors used by the report.
const (
	Red    = "1"
	Green  = "2"
	Yellow = "3"
	Cyan   = "6"
)

type Options struct {
	// Border, when set, frames the text above and below.
	Border rune
	// BorderBottom replaces Border below the text.
	BorderBottom rune
	// Quiet suppresses console output. The log file is still written.
	Quiet bool
	// Color is an ANSI color for the text and its borders.
	Color string
}

// Formatter renders text with borders and color for one output.
type Formatter struct {
	renderer *lipgloss.Renderer
}

// NewFormatter detects the color profile of w. With color false every escape sequence is
// dropped.
func NewFormatter(w io.Writer, color bool) *Formatter {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Formatter{renderer: r}
}

// Format returns text framed by the borders in opts, newline terminated. Each line is
// rendered on its own so multi-line text is never padded to a common width.
func (f *Formatter) Format(text string, opts Options) string {
	style := f.renderer.NewStyle()
	if opts.Color != "" {
		style = style.Foreground(lipgloss.Color(opts.Color))
	}

	var b strings.Builder
	line := func(s string) {
		b.WriteString(style.Render(s))
		b.WriteByte('\n')
	}

	if opts.Border != 0 {
		line(strings.Repeat(string(opts.Border), BorderLength))
	}
	for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		line(l)
	}
	bottom := opts.BorderBottom
	if bottom == 0 {
		bottom = opts.Border
	}
	if bottom != 0 {
		line(strings.Repeat(string(bottom), BorderLength))
	}
	return b.String()
}

// Logger writes formatted text to a console and an optional file. It is safe for
// concurrent use; each call is written as one block.
type Logger struct {
	mu      sync.Mutex
	console io.Writer
	file    io.Writer
	screen  *Formatter
	plain   *Formatter
}

// New returns a Logger. Either writer may be nil. The file never receives color.
func New(console, file io.Writer, color bool) *Logger {
	l := &Logger{console: console, file: file}
	if console != nil {
		l.screen = NewFormatter(console, color)
	}
	if file != nil {
		l.plain = NewFormatter(file, false)
	}
	return l
}

func (l *Logger) Log(text string, opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.console != nil && !opts.Quiet {
		io.WriteString(l.console, l.screen.Format(text, opts))
	}
	if l.file != nil {
		io.WriteString(l.file, l.plain.Format(text, opts))
	}
}

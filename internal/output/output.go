// Package output renders CLI results: styled terminal output when stdout is
// a TTY, plain text otherwise, and JSON on request.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted status output for the CLI.
type Writer struct {
	out    io.Writer
	styled bool
}

// New creates a Writer. Styling follows whether out is a terminal.
func New(out io.Writer) *Writer {
	return &Writer{out: out, styled: IsTerminal(out)}
}

// NewPlain creates a Writer with styling off, for --plain and tests.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printf writes formatted text. Write errors are ignored for console output.
func (w *Writer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Println writes a line.
func (w *Writer) Println(args ...any) {
	_, _ = fmt.Fprintln(w.out, args...)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.statusf(successStyle, "✓", format, args...)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.statusf(warningStyle, "!", format, args...)
}

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.statusf(errorStyle, "✗", format, args...)
}

func (w *Writer) statusf(style styleFunc, icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.styled {
		msg = style(msg)
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

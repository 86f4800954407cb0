// Package report renders comparison progress for humans.
//
// Every compared step prints one line holding the step number, the
// reference line in a fixed-width column and the candidate line, so the two
// traces can be scanned side by side:
//
//	0001: C000  4C F5 C5  JMP $C5F5   ...   C000    A:00 X:00 Y:00 P:24 SP:FD CYC:7
//
// The first mismatching step is followed by the differing field names and a
// per-field breakdown.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/trace"
)

// DefaultWidth is the reference column width.
const DefaultWidth = 100

const (
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
)

// Options configures a Reporter.
type Options struct {
	// Width of the reference column. Zero means DefaultWidth, negative
	// disables padding and truncation.
	Width int

	// Quiet suppresses per-step lines. The mismatching pair is still shown.
	Quiet bool

	// Color wraps verdicts in ANSI colour codes.
	Color bool
}

// Reporter writes progress and diagnostics. It implements compare.Observer.
type Reporter struct {
	w       io.Writer
	opts    Options
	printer *message.Printer
}

var _ compare.Observer = (*Reporter)(nil)

// New creates a Reporter writing to w.
func New(w io.Writer, opts Options) *Reporter {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	return &Reporter{
		w:       w,
		opts:    opts,
		printer: message.NewPrinter(language.English),
	}
}

// IsTerminal reports whether w is a terminal, which is when colour makes
// sense.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Step prints the progress line for one step.
func (r *Reporter) Step(ref, cand trace.Line) {
	if r.opts.Quiet {
		return
	}
	r.pair(ref, cand)
}

// Mismatch prints the diagnostics for the first diverging step.
func (r *Reporter) Mismatch(m *compare.Mismatch) {
	if r.opts.Quiet {
		r.pair(m.Reference, m.Candidate)
	}

	fmt.Fprintf(r.w, "%s [%s]\n", r.paint(ansiRed, "mismatch"), strings.Join(m.FieldNames(), " "))

	switch {
	case m.ReferenceUnparsed && m.CandidateUnparsed:
		fmt.Fprintf(r.w, "  neither line matches the trace format\n")
	case m.ReferenceUnparsed:
		fmt.Fprintf(r.w, "  reference line %d does not match the trace format\n", m.Step)
	case m.CandidateUnparsed:
		fmt.Fprintf(r.w, "  candidate line %d does not match the trace format\n", m.Step)
	default:
		for _, f := range m.Fields {
			fmt.Fprintf(r.w, "  %-3s want %s, got %s\n", f.String()+":", m.Want.Get(f), m.Got.Get(f))
		}
	}
}

// Summary prints the closing line of a fully matching run.
func (r *Reporter) Summary(steps int) {
	r.printer.Fprintf(r.w, "%s: %d steps match\n", r.paint(ansiGreen, "OK"), steps)
}

// Failure prints the closing line of a failed run.
func (r *Reporter) Failure(code, msg string) {
	fmt.Fprintf(r.w, "%s [%s]: %s\n", r.paint(ansiRed, "FAIL"), code, msg)
}

func (r *Reporter) pair(ref, cand trace.Line) {
	fmt.Fprintf(r.w, "%04d: %s %s\n", ref.Step, column(ref.Text, r.opts.Width), cand.Text)
}

func (r *Reporter) paint(color, s string) string {
	if !r.opts.Color {
		return s
	}
	return color + s + ansiReset
}

// column pads or truncates s to exactly width runes.
func column(s string, width int) string {
	if width < 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return s + strings.Repeat(" ", width-len(runes))
}

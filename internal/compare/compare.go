// Package compare pairs reference and candidate trace lines by step and
// locates the first divergence.
//
// Comparison is fail-fast: at most one mismatch is ever reported, and no
// line after it is parsed.
package compare

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tracediff/internal/trace"
)

// Observer receives progress while a comparison runs.
type Observer interface {
	// Step is called for every compared index, before its verdict.
	Step(ref, cand trace.Line)

	// Mismatch is called once, for the first diverging index.
	Mismatch(m *Mismatch)
}

// Mismatch describes the first step at which the traces diverge.
type Mismatch struct {
	Step      int
	Reference trace.Line
	Candidate trace.Line

	// Fields lists the differing fields in trace order. When either side
	// failed to parse it holds every field.
	Fields []trace.Field

	// Parsed states, valid only when the matching Unparsed flag is false.
	Want trace.State
	Got  trace.State

	ReferenceUnparsed bool
	CandidateUnparsed bool
}

// FieldNames returns the differing field labels.
func (m *Mismatch) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.String()
	}
	return names
}

// Result is the outcome of a fully matching comparison.
type Result struct {
	Steps int
}

// LineCountError is returned when the traces have different lengths.
type LineCountError struct {
	Reference int
	Candidate int
}

func (e *LineCountError) Error() string {
	return fmt.Sprintf("line count mismatch: reference has %d lines, candidate has %d", e.Reference, e.Candidate)
}

// MismatchError is returned at the first diverging step.
type MismatchError struct {
	Mismatch *Mismatch
}

func (e *MismatchError) Error() string {
	m := e.Mismatch
	return fmt.Sprintf("mismatch at step %d: %s", m.Step, strings.Join(m.FieldNames(), " "))
}

// Compare checks the two traces step by step.
//
// Lengths are checked before any line is parsed. obs may be nil.
func Compare(ref, cand []trace.Line, obs Observer) (*Result, error) {
	if len(ref) != len(cand) {
		return nil, &LineCountError{Reference: len(ref), Candidate: len(cand)}
	}

	for i := range ref {
		if obs != nil {
			obs.Step(ref[i], cand[i])
		}
		m := compareLines(i+1, ref[i], cand[i])
		if m == nil {
			continue
		}
		if obs != nil {
			obs.Mismatch(m)
		}
		return nil, &MismatchError{Mismatch: m}
	}

	return &Result{Steps: len(ref)}, nil
}

// compareLines returns nil when every field matches.
func compareLines(step int, ref, cand trace.Line) *Mismatch {
	want, refOK := trace.Parse(ref.Text)
	got, candOK := trace.Parse(cand.Text)

	if refOK && candOK {
		diff := trace.Diff(want, got)
		if len(diff) == 0 {
			return nil
		}
		return &Mismatch{
			Step:      step,
			Reference: ref,
			Candidate: cand,
			Fields:    diff,
			Want:      want,
			Got:       got,
		}
	}

	// An unparseable line differs from everything, including another
	// unparseable line.
	all := make([]trace.Field, len(trace.Fields))
	copy(all, trace.Fields)
	return &Mismatch{
		Step:              step,
		Reference:         ref,
		Candidate:         cand,
		Fields:            all,
		Want:              want,
		Got:               got,
		ReferenceUnparsed: !refOK,
		CandidateUnparsed: !candOK,
	}
}

// IsLineCount reports whether err is a LineCountError.
func IsLineCount(err error) bool {
	var lc *LineCountError
	return errors.As(err, &lc)
}

// IsMismatch reports whether err is a MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

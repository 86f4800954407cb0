package trace

import (
	"fmt"
	"regexp"
	"strings"
)

// Field names one piece of CPU state extracted from a trace line.
type Field int

const (
	PC Field = iota
	A
	X
	Y
	P
	SP
	CYC
)

// Fields is the complete set of compared fields in display order.
var Fields = []Field{PC, A, X, Y, P, SP, CYC}

var fieldNames = [...]string{"PC", "A", "X", "Y", "P", "SP", "CYC"}

// String returns the field label as it appears in the trace ("SP", "CYC").
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// ParseField looks up a field by its label.
func ParseField(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// The submatch order must follow Fields.
var lineGrammar = regexp.MustCompile(
	`([0-9A-F]{4}).* A:([0-9A-F]{2}) X:([0-9A-F]{2}) Y:([0-9A-F]{2}) P:([0-9A-F]{2}) SP:([0-9A-F]{2}).*CYC:([0-9]+)`,
)

// State holds the field values of one parsed line, verbatim as text.
type State struct {
	values [len(fieldNames)]string
}

// Get returns the text of field f.
func (s State) Get(f Field) string {
	return s.values[f]
}

// String renders the state in trace order, e.g. "PC:C000 A:00 ... CYC:7".
func (s State) String() string {
	var b strings.Builder
	for i, f := range Fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.String())
		b.WriteByte(':')
		b.WriteString(s.values[f])
	}
	return b.String()
}

// Parse extracts the state fields from a raw trace line.
//
// The program counter is the first run of four uppercase hex digits that
// is followed by the register block; the register block is located by its
// " A:" ... " SP:" markers and the cycle count by "CYC:". ok is false when
// the line does not match, and the zero State must not be used in that
// case.
func Parse(text string) (s State, ok bool) {
	m := lineGrammar.FindStringSubmatch(text)
	if m == nil {
		return State{}, false
	}
	for i, f := range Fields {
		s.values[f] = m[i+1]
	}
	return s, true
}

// Diff returns the fields whose values differ between a and b, in Fields
// order. Comparison is exact string equality.
func Diff(a, b State) []Field {
	var diff []Field
	for _, f := range Fields {
		if a.values[f] != b.values[f] {
			diff = append(diff, f)
		}
	}
	return diff
}

package report

import (
	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/trace"
)

// MismatchDetails is the machine-readable form of a mismatch, used in
// JSON output and suite results.
type MismatchDetails struct {
	Step              int               `json:"step"`
	Fields            []string          `json:"fields"`
	Reference         string            `json:"reference"`
	Candidate         string            `json:"candidate"`
	Want              map[string]string `json:"want,omitempty"`
	Got               map[string]string `json:"got,omitempty"`
	ReferenceUnparsed bool              `json:"reference_unparsed,omitempty"`
	CandidateUnparsed bool              `json:"candidate_unparsed,omitempty"`
}

// NewMismatchDetails converts m. Want and Got only carry the differing
// fields, and only for the sides that parsed.
func NewMismatchDetails(m *compare.Mismatch) *MismatchDetails {
	d := &MismatchDetails{
		Step:              m.Step,
		Fields:            m.FieldNames(),
		Reference:         m.Reference.Text,
		Candidate:         m.Candidate.Text,
		ReferenceUnparsed: m.ReferenceUnparsed,
		CandidateUnparsed: m.CandidateUnparsed,
	}
	if !m.ReferenceUnparsed {
		d.Want = pick(m.Want, m.Fields)
	}
	if !m.CandidateUnparsed {
		d.Got = pick(m.Got, m.Fields)
	}
	return d
}

func pick(s trace.State, fields []trace.Field) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.String()] = s.Get(f)
	}
	return out
}

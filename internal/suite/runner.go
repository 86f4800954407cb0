package suite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/tracediff/internal/harness"
	"github.com/roach88/tracediff/internal/report"
)

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name     string                  `json:"name"`
	Pass     bool                    `json:"pass"`
	Kind     harness.Kind            `json:"kind"`
	Code     string                  `json:"code,omitempty"`
	Steps    int                     `json:"steps,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Mismatch *report.MismatchDetails `json:"mismatch,omitempty"`

	Config    harness.Config `json:"-"`
	StartedAt time.Time      `json:"-"`
	Duration  time.Duration  `json:"-"`
	Err       error          `json:"-"`
}

// Runner executes suites.
type Runner struct {
	// Out receives each case's report, in case order. Nil discards it.
	Out io.Writer

	// Report configures the per-case reporters.
	Report report.Options

	// Jobs overrides the suite's parallelism when > 0.
	Jobs int

	// Now stamps CaseResult.StartedAt. Defaults to time.Now.
	Now func() time.Time

	// OnResult is called for every case, in case order, after its report
	// has been written.
	OnResult func(CaseResult)
}

// Run executes every case of s. A failing case does not stop the others.
// Results are returned in case order.
func (r *Runner) Run(ctx context.Context, s *Suite) []CaseResult {
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	jobs := r.Jobs
	if jobs <= 0 {
		jobs = s.Jobs
	}
	if jobs <= 0 {
		jobs = 1
	}

	n := len(s.Cases)
	results := make([]CaseResult, n)
	buffers := make([]bytes.Buffer, n)
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	slog.Info("running suite", "suite", s.Name, "cases", n, "jobs", jobs)

	// Cases finish in any order but are printed in declaration order.
	go func() {
		var g errgroup.Group
		g.SetLimit(jobs)
		for i := range s.Cases {
			i := i
			g.Go(func() error {
				defer close(done[i])
				results[i] = r.runCase(ctx, s, s.Cases[i], &buffers[i], now)
				return nil
			})
		}
		_ = g.Wait()
	}()

	p := message.NewPrinter(language.English)
	for i := range s.Cases {
		<-done[i]
		res := results[i]

		fmt.Fprintf(out, "=== CASE %s\n", res.Name)
		_, _ = buffers[i].WriteTo(out)
		if res.Pass {
			p.Fprintf(out, "--- PASS: %s (%d steps, %v)\n", res.Name, res.Steps, res.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(out, "--- FAIL: %s [%s] %s\n", res.Name, res.Code, res.Error)
		}

		if r.OnResult != nil {
			r.OnResult(res)
		}
	}

	return results
}

func (r *Runner) runCase(ctx context.Context, s *Suite, c Case, w io.Writer, now func() time.Time) CaseResult {
	cfg := s.Config(c)
	res := CaseResult{
		Name:      c.Name,
		Config:    cfg,
		StartedAt: now(),
	}

	start := time.Now()
	result, err := harness.Run(ctx, cfg, report.New(w, r.Report))
	res.Duration = time.Since(start)

	res.Kind = harness.KindOf(err)
	res.Code = res.Kind.Code()
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		if m := harness.MismatchOf(err); m != nil {
			res.Mismatch = report.NewMismatchDetails(m)
		}
		slog.Warn("case failed", "suite", s.Name, "case", c.Name, "kind", res.Kind, "error", err)
		return res
	}

	res.Pass = true
	res.Steps = result.Steps
	return res
}

// Summary counts passed and failed cases.
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Summarize counts results.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Pass {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

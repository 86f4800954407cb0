package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/emulator"
	"github.com/roach88/tracediff/internal/harness"
	"github.com/roach88/tracediff/internal/report"
	"github.com/roach88/tracediff/internal/trace"
)

// ReportFlags holds the progress display flags shared by commands that
// compare traces.
type ReportFlags struct {
	Width int
	Quiet bool
}

func (f *ReportFlags) register(cmd *cobra.Command, quiet bool) {
	cmd.Flags().IntVar(&f.Width, "width", report.DefaultWidth, "width of the reference column (negative disables padding)")
	cmd.Flags().BoolVarP(&f.Quiet, "quiet", "q", quiet, "only print the mismatching step, not every step")
}

// options builds reporter options for output going to cmd's stdout.
func (f *ReportFlags) options(cmd *cobra.Command) report.Options {
	return report.Options{
		Width: f.Width,
		Quiet: f.Quiet,
		Color: report.IsTerminal(cmd.OutOrStdout()),
	}
}

// CheckOptions holds flags for the root conformance check.
type CheckOptions struct {
	*RootOptions
	Timeout time.Duration
	Report  ReportFlags
}

// CheckResult is the JSON payload of a finished comparison.
type CheckResult struct {
	Emulator   string `json:"emulator,omitempty"`
	ROM        string `json:"rom,omitempty"`
	Reference  string `json:"reference"`
	Candidate  string `json:"candidate,omitempty"`
	Steps      int    `json:"steps"`
	DurationMS int64  `json:"duration_ms"`
}

func runCheck(opts *CheckOptions, emulatorPath, rom, reference string, cmd *cobra.Command) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	rec, err := opts.openRecorder()
	if err != nil {
		return err
	}
	defer rec.Close()

	cfg := harness.Config{
		Emulator:  emulatorPath,
		ROM:       rom,
		Reference: reference,
		Timeout:   opts.Timeout,
	}
	if opts.Verbose {
		cfg.Stderr = cmd.ErrOrStderr()
	}

	var rep *report.Reporter
	var obs compare.Observer
	if opts.Format == "text" {
		rep = report.New(cmd.OutOrStdout(), opts.Report.options(cmd))
		obs = rep
	}

	startedAt := opts.now()
	start := time.Now()
	result, runErr := harness.Run(ctx, cfg, obs)
	elapsed := time.Since(start)

	data := CheckResult{
		Emulator:   emulatorPath,
		ROM:        rom,
		Reference:  reference,
		DurationMS: elapsed.Milliseconds(),
	}
	if result != nil {
		data.Steps = result.Steps
	}

	runID := rec.Record(ctx, newHistoryRun(cfg, data.Steps, startedAt, elapsed, runErr))
	if runID != "" {
		opts.formatter(cmd).VerboseLog("run recorded as %s", runID)
	}
	return writeOutcome(opts.RootOptions, cmd, rep, runID, data, runErr)
}

// writeOutcome prints the closing verdict of one comparison and converts
// runErr into an ExitError.
func writeOutcome(opts *RootOptions, cmd *cobra.Command, rep *report.Reporter, runID string, data CheckResult, runErr error) error {
	f := opts.formatter(cmd)
	f.RunID = runID

	if runErr == nil {
		if opts.Format == "json" {
			return f.Success(data)
		}
		rep.Summary(data.Steps)
		return nil
	}

	kind := harness.KindOf(runErr)
	if opts.Format == "json" {
		if err := f.Error(kind.Code(), runErr.Error(), errorDetails(runErr)); err != nil {
			return err
		}
	} else {
		rep.Failure(kind.Code(), runErr.Error())
	}

	return &ExitError{
		Code:     exitCodeFor(kind),
		Message:  string(kind),
		Err:      runErr,
		Reported: true,
	}
}

// errorDetails returns the machine-readable context of a run error.
func errorDetails(err error) interface{} {
	if m := harness.MismatchOf(err); m != nil {
		return report.NewMismatchDetails(m)
	}

	var (
		count   *compare.LineCountError
		proc    *harness.ProcessError
		timeout *emulator.TimeoutError
		readErr *trace.ReadError
	)
	switch {
	case errors.As(err, &count):
		return map[string]int{
			"reference": count.Reference,
			"candidate": count.Candidate,
		}
	case errors.As(err, &proc):
		return map[string]interface{}{
			"exit_code": proc.ExitCode,
			"stderr":    proc.Stderr,
		}
	case errors.As(err, &timeout):
		return map[string]string{
			"timeout": timeout.Timeout.String(),
		}
	case errors.As(err, &readErr):
		return map[string]string{
			"path": readErr.Path,
		}
	}
	return nil
}

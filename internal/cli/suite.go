package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracediff/internal/suite"
)

// SuiteOptions holds flags for the suite command.
type SuiteOptions struct {
	*RootOptions
	Filter string
	Jobs   int
	Report ReportFlags
}

// SuiteResult is the JSON payload of the suite command.
type SuiteResult struct {
	Suite string             `json:"suite"`
	Cases []suite.CaseResult `json:"cases"`
	suite.Summary
}

// NewSuiteCommand creates the suite command.
func NewSuiteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuiteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suite <suite.yaml>",
		Short: "Run every case of a suite file",
		Long: `Run a list of conformance checks described in a YAML suite file.

Each case names a ROM and a reference trace, and may override the suite's
emulator, timeout and environment. A failing case does not stop the others.
Cases run in parallel up to the suite's jobs setting; reports are printed
in case order.

Example suite:
  name: nestest
  emulator: ./build/nes_test_runner
  timeout: 30s
  cases:
    - name: official
      rom: roms/nestest.nes
      reference: logs/nestest.log

Examples:
  tracediff suite nestest.yaml
  tracediff suite --filter 'official*' --jobs 4 nestest.yaml
  tracediff suite --db runs.db --format json nestest.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run cases whose name matches this glob")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "cases to run in parallel (default from the suite file)")
	// Per-step output of many cases is rarely wanted.
	opts.Report.register(cmd, true)

	return cmd
}

func runSuite(opts *SuiteOptions, path string, cmd *cobra.Command) error {
	s, err := suite.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load suite", err)
	}
	s, err = s.Filter(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	if len(s.Cases) == 0 {
		if opts.Format == "json" {
			return opts.formatter(cmd).Success(SuiteResult{Suite: s.Name, Cases: []suite.CaseResult{}})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No cases match %q\n", opts.Filter)
		return nil
	}

	rec, err := opts.openRecorder()
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, stop := commandContext(cmd)
	defer stop()

	runner := &suite.Runner{
		Report: opts.Report.options(cmd),
		Jobs:   opts.Jobs,
		Now:    opts.Now,
		OnResult: func(res suite.CaseResult) {
			run := newHistoryRun(res.Config, res.Steps, res.StartedAt, res.Duration, res.Err)
			run.Suite = s.Name
			run.Name = res.Name
			rec.Record(ctx, run)
		},
	}
	if opts.Format == "text" {
		runner.Out = cmd.OutOrStdout()
	}

	start := time.Now()
	results := runner.Run(ctx, s)
	summary := suite.Summarize(results)

	if opts.Format == "json" {
		f := opts.formatter(cmd)
		data := SuiteResult{Suite: s.Name, Cases: results, Summary: summary}
		if summary.Failed == 0 {
			return f.Success(data)
		}
		if err := f.Result(data, "E_SUITE_FAILED", fmt.Sprintf("%d case(s) failed", summary.Failed), nil); err != nil {
			return err
		}
		return &ExitError{Code: suiteExitCode(results), Message: fmt.Sprintf("%d case(s) failed", summary.Failed), Reported: true}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Suite Summary: %d passed, %d failed, %d total (%v)\n",
		summary.Passed, summary.Failed, summary.Total, time.Since(start).Round(time.Millisecond))

	if summary.Failed > 0 {
		return &ExitError{Code: suiteExitCode(results), Message: fmt.Sprintf("%d case(s) failed", summary.Failed), Reported: true}
	}

	fmt.Fprintln(w, "✓ All cases passed")
	return nil
}

// suiteExitCode is ExitFailure when any case failed conformance, and
// ExitCommandError only when every failure is a command error.
func suiteExitCode(results []suite.CaseResult) int {
	code := ExitSuccess
	for _, r := range results {
		c := exitCodeFor(r.Kind)
		if c == ExitFailure {
			return ExitFailure
		}
		if c > code {
			code = c
		}
	}
	return code
}

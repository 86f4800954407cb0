package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/harness"
	"github.com/roach88/tracediff/internal/report"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Report ReportFlags
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <reference> <candidate>",
		Short: "Compare two trace files without running an emulator",
		Long: `Compare a reference trace with a previously captured candidate trace.

The comparison is the same one the root command performs on live emulator
output: line counts must agree, then each step's PC, A, X, Y, P, SP and CYC
fields must match, stopping at the first divergence. Blank lines in either
file are ignored.

Examples:
  tracediff diff logs/nestest.log /tmp/mine.log
  tracediff diff --quiet --format json logs/nestest.log /tmp/mine.log`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], args[1], cmd)
		},
	}

	opts.Report.register(cmd, false)

	return cmd
}

func runDiff(opts *DiffOptions, reference, candidate string, cmd *cobra.Command) error {
	var rep *report.Reporter
	var obs compare.Observer
	if opts.Format == "text" {
		rep = report.New(cmd.OutOrStdout(), opts.Report.options(cmd))
		obs = rep
	}

	start := time.Now()
	result, err := harness.Diff(reference, candidate, obs)

	data := CheckResult{
		Reference:  reference,
		Candidate:  candidate,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if result != nil {
		data.Steps = result.Steps
	}
	return writeOutcome(opts.RootOptions, cmd, rep, "", data, err)
}

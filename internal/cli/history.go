package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracediff/internal/harness"
	"github.com/roach88/tracediff/internal/history"
)

// recorder appends runs to the history database. A nil recorder records
// nothing, which is what commands get without --db.
type recorder struct {
	store *history.Store
	ids   history.IDGenerator
}

// openRecorder opens the --db database, or returns nil when it is unset.
func (o *RootOptions) openRecorder() (*recorder, error) {
	if o.Database == "" {
		return nil, nil
	}
	st, err := history.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	ids := o.IDGenerator
	if ids == nil {
		ids = history.UUIDv7Generator{}
	}
	return &recorder{store: st, ids: ids}, nil
}

// Record stores run under a fresh ID and returns the ID. Recording
// failures are logged, not returned: the run outcome still stands.
func (r *recorder) Record(ctx context.Context, run history.Run) string {
	if r == nil {
		return ""
	}
	run.ID = r.ids.Generate()
	// An interrupted run is still worth recording.
	if err := r.store.Record(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("failed to record run", "id", run.ID, "error", err)
		return ""
	}
	slog.Debug("run recorded", "id", run.ID, "outcome", run.Outcome)
	return run.ID
}

func (r *recorder) Close() {
	if r == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// newHistoryRun describes a finished harness run. steps is the number of
// matching steps of a passing run; for a field mismatch it is derived from
// the failing step.
func newHistoryRun(cfg harness.Config, steps int, startedAt time.Time, elapsed time.Duration, err error) history.Run {
	run := history.Run{
		Emulator:  cfg.Emulator,
		ROM:       cfg.ROM,
		Reference: cfg.Reference,
		Steps:     steps,
		Outcome:   string(harness.KindOf(err)),
		StartedAt: startedAt,
		Duration:  elapsed,
	}
	if err != nil {
		run.Message = err.Error()
	}
	if m := harness.MismatchOf(err); m != nil {
		run.Steps = m.Step - 1
		run.FailedStep = m.Step
		run.Fields = m.FieldNames()
	}
	return run
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit   int
	Outcome string
	Suite   string
	RunID   string
}

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	Runs []history.Run `json:"runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded with --db, most recent first.

Every check and suite case run with --db appends its outcome, the failing
step and the differing fields to the database.

Examples:
  tracediff history --db runs.db
  tracediff history --db runs.db --outcome field_mismatch --limit 5
  tracediff history --db runs.db --id 0190c2a4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs to list (0 lists all)")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only list runs with this outcome (pass, field_mismatch, timeout, ...)")
	cmd.Flags().StringVar(&opts.Suite, "suite", "", "only list runs of this suite")
	cmd.Flags().StringVar(&opts.RunID, "id", "", "show a single run")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "history requires --db")
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	st, err := history.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var runs []history.Run
	if opts.RunID != "" {
		run, err := st.Get(ctx, opts.RunID)
		if errors.Is(err, history.ErrNotFound) {
			return WrapExitError(ExitFailure, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
		runs = []history.Run{run}
	} else {
		runs, err = st.List(ctx, history.ListOptions{
			Limit:   opts.Limit,
			Outcome: opts.Outcome,
			Suite:   opts.Suite,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(HistoryResult{Runs: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tOUTCOME\tSTEPS\tFAILED AT\tFIELDS\tRUN")
	for _, r := range runs {
		failedAt := "-"
		if r.FailedStep > 0 {
			failedAt = fmt.Sprintf("%d", r.FailedStep)
		}
		fields := "-"
		if len(r.Fields) > 0 {
			fields = strings.Join(r.Fields, " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Outcome,
			r.Steps,
			failedAt,
			fields,
			runLabel(r),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.Verbose || opts.RunID != "" {
		for _, r := range runs {
			if r.Message != "" {
				fmt.Fprintf(w, "%s: %s\n", r.ID, r.Message)
			}
		}
	}
	return nil
}

// runLabel names a run by its suite case, or by its reference trace for a
// standalone check.
func runLabel(r history.Run) string {
	if r.Suite != "" {
		return r.Suite + "/" + r.Name
	}
	return r.Reference
}

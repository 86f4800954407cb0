package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracediff/internal/history"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // history database; empty disables recording

	// IDGenerator allows overriding run IDs (for testing).
	// If nil, defaults to history.UUIDv7Generator.
	IDGenerator history.IDGenerator

	// Now allows overriding the clock that stamps recorded runs (for testing).
	// If nil, defaults to time.Now.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tracediff CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith creates the root command around caller-owned options.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	checkOpts := &CheckOptions{RootOptions: opts}

	cmd := &cobra.Command{
		Use:   "tracediff <emulator> <rom> <reference>",
		Short: "Check a CPU emulator against a reference execution trace",
		Long: `Run an emulator on a test ROM and compare its per-instruction trace
with a known-good reference log, line by line.

The emulator is invoked as "<emulator> <rom> <steps>", where steps is the
number of lines in the reference trace, and must print one trace line per
executed instruction on stdout. Each line is reduced to its PC, A, X, Y,
P, SP and CYC fields; everything else on the line is ignored.

The first diverging step stops the comparison and is reported with the
differing fields.

Examples:
  tracediff ./build/nes_test_runner roms/nestest.nes logs/nestest.log
  tracediff --timeout 30s --quiet ./runner nestest.nes nestest.log
  tracediff --db runs.db --format json ./runner nestest.nes nestest.log`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(checkOpts, args[0], args[1], args[2], cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite history database")

	cmd.Flags().DurationVar(&checkOpts.Timeout, "timeout", 0, "kill the emulator after this long (0 waits forever)")
	checkOpts.Report.register(cmd, false)

	// Add subcommands
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewSuiteCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging installs the default logger. Logs go to w (stderr) so they
// never mix with text or JSON results on stdout.
func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// commandContext returns the command's context, cancelled on SIGINT or
// SIGTERM. Use command's context if available (for testing), otherwise
// create one.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	return signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

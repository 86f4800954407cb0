package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracediff/internal/trace"
)

// ParseOptions holds flags for the parse command.
type ParseOptions struct {
	*RootOptions
	Fields []string
}

// ParsedLine is one line of parse output.
type ParsedLine struct {
	Step   int               `json:"step"`
	Fields map[string]string `json:"fields,omitempty"`
	Text   string            `json:"text,omitempty"` // set only for unparseable lines
}

// ParseResult is the JSON payload of the parse command.
type ParseResult struct {
	Path        string       `json:"path"`
	Lines       int          `json:"lines"`
	Unparseable []int        `json:"unparseable"`
	Steps       []ParsedLine `json:"steps"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "parse <trace-file>",
		Short: "Show the fields extracted from each trace line",
		Long: `Parse a trace file and print the compared fields of every line.

Useful for checking that an emulator's trace format is understood before
running a full comparison. Lines that do not match the trace format are
flagged, and the command exits 1 if there are any.

Examples:
  tracediff parse logs/nestest.log
  tracediff parse --fields PC,P,CYC /tmp/mine.log`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "only show these fields (default all)")

	return cmd
}

func runParse(opts *ParseOptions, path string, cmd *cobra.Command) error {
	fields, err := selectFields(opts.Fields)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	lines, err := trace.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load trace", err)
	}

	result := ParseResult{
		Path:        path,
		Lines:       len(lines),
		Unparseable: []int{},
		Steps:       make([]ParsedLine, 0, len(lines)),
	}
	w := cmd.OutOrStdout()
	for _, line := range lines {
		state, ok := trace.Parse(line.Text)
		if !ok {
			result.Unparseable = append(result.Unparseable, line.Step)
			result.Steps = append(result.Steps, ParsedLine{Step: line.Step, Text: line.Text})
			if opts.Format == "text" {
				fmt.Fprintf(w, "%04d: unparseable: %s\n", line.Step, line.Text)
			}
			continue
		}

		parsed := ParsedLine{Step: line.Step, Fields: make(map[string]string, len(fields))}
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parsed.Fields[f.String()] = state.Get(f)
			parts = append(parts, f.String()+":"+state.Get(f))
		}
		result.Steps = append(result.Steps, parsed)
		if opts.Format == "text" {
			fmt.Fprintf(w, "%04d: %s\n", line.Step, strings.Join(parts, " "))
		}
	}

	bad := len(result.Unparseable)
	if opts.Format == "json" {
		f := opts.formatter(cmd)
		if bad == 0 {
			return f.Success(result)
		}
		if err := f.Result(result, "E_PARSE", fmt.Sprintf("%d line(s) do not match the trace format", bad), nil); err != nil {
			return err
		}
		return &ExitError{Code: ExitFailure, Message: "unparseable lines", Reported: true}
	}

	if bad > 0 {
		fmt.Fprintf(w, "%d of %d line(s) do not match the trace format\n", bad, len(lines))
		return &ExitError{Code: ExitFailure, Message: "unparseable lines", Reported: true}
	}
	fmt.Fprintf(w, "%d line(s) parsed\n", len(lines))
	return nil
}

// selectFields resolves --fields names, keeping trace.Fields order when no
// names are given.
func selectFields(names []string) ([]trace.Field, error) {
	if len(names) == 0 {
		return trace.Fields, nil
	}
	fields := make([]trace.Field, 0, len(names))
	for _, name := range names {
		f, ok := trace.ParseField(strings.ToUpper(strings.TrimSpace(name)))
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

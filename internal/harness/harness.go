package harness

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/emulator"
	"github.com/roach88/tracediff/internal/trace"
)

// Config describes one conformance check.
type Config struct {
	// Emulator is the executable under test.
	Emulator string

	// ROM is passed to the emulator as its first argument.
	ROM string

	// Reference is the golden trace file.
	Reference string

	// Timeout bounds the emulator run. Zero waits forever.
	Timeout time.Duration

	// Env is appended to the emulator's environment.
	Env []string

	// Stderr, if set, receives the emulator's stderr as it runs.
	Stderr io.Writer
}

// Result is the outcome of a run in which every step matched.
type Result struct {
	Steps    int
	Duration time.Duration
}

// Run executes one check. obs receives every compared step and may be nil.
func Run(ctx context.Context, cfg Config, obs compare.Observer) (*Result, error) {
	start := time.Now()

	ref, err := loadReference(cfg.Reference)
	if err != nil {
		return nil, err
	}
	slog.Info("reference loaded", "path", cfg.Reference, "steps", len(ref))

	inv := &emulator.Invoker{
		Path:    cfg.Emulator,
		Timeout: cfg.Timeout,
		Env:     cfg.Env,
		Stderr:  cfg.Stderr,
	}
	out, err := inv.Run(ctx, cfg.ROM, len(ref))
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		return nil, &ProcessError{
			Path:     cfg.Emulator,
			ExitCode: out.ExitCode,
			Stderr:   out.Stderr,
		}
	}
	slog.Info("emulator finished", "lines", len(out.Lines), "duration", out.Duration)

	res, err := compare.Compare(ref, out.Lines, obs)
	if err != nil {
		return nil, err
	}

	return &Result{Steps: res.Steps, Duration: time.Since(start)}, nil
}

// Diff compares a reference trace with a previously captured candidate
// trace file, without running anything.
func Diff(referencePath, candidatePath string, obs compare.Observer) (*Result, error) {
	start := time.Now()

	ref, err := loadReference(referencePath)
	if err != nil {
		return nil, err
	}
	cand, err := trace.LoadAs(candidatePath, trace.Candidate)
	if err != nil {
		return nil, err
	}
	slog.Info("traces loaded", "reference", len(ref), "candidate", len(cand))

	res, err := compare.Compare(ref, cand, obs)
	if err != nil {
		return nil, err
	}
	return &Result{Steps: res.Steps, Duration: time.Since(start)}, nil
}

// loadReference loads the golden trace. A reference with no records cannot
// prove anything, so it fails like an unreadable file.
func loadReference(path string) ([]trace.Line, error) {
	ref, err := trace.Load(path)
	if err != nil {
		return nil, err
	}
	if len(ref) == 0 {
		return nil, &trace.ReadError{Path: path, Err: ErrEmptyReference}
	}
	return ref, nil
}

// Package emulator runs the emulator under test and captures its trace.
//
// The emulator is an external executable invoked as
//
//	<emulator> <rom> <steps>
//
// It must execute exactly <steps> instructions, print one trace line per
// instruction on stdout and exit 0. A nonzero exit is reported in
// Output.ExitCode rather than as an error; deciding that it is fatal is the
// caller's job. If the emulator exits but a process it started keeps stdout
// open, the pipe is closed after a short grace period and the run keeps the
// emulator's exit code and whatever it wrote until then.
package emulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/roach88/tracediff/internal/trace"
)

// waitDelay bounds how long Run waits for output pipes to drain after the
// process exits or is killed.
const waitDelay = 2 * time.Second

// Invoker spawns the emulator under test.
type Invoker struct {
	// Path is the emulator executable.
	Path string

	// Timeout bounds the whole run. Zero waits forever.
	Timeout time.Duration

	// Env is appended to the current environment of the emulator.
	Env []string

	// Stderr, if set, also receives the emulator's stderr as it is written.
	Stderr io.Writer
}

// Output is what the emulator produced.
type Output struct {
	Lines    []trace.Line
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// TimeoutError is returned when the emulator does not exit within
// Invoker.Timeout. The process has been killed.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("emulator %s did not exit within %s", e.Path, e.Timeout)
}

// StartError is returned when the emulator could not be run at all.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start emulator %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Run executes the emulator for steps instructions and waits for it to exit.
func (inv *Invoker) Run(ctx context.Context, rom string, steps int) (*Output, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Path, rom, strconv.Itoa(steps))
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if inv.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, inv.Stderr)
	}

	slog.Debug("starting emulator", "path", inv.Path, "rom", rom, "steps", steps, "timeout", inv.Timeout)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			timeout := inv.Timeout
			if timeout == 0 {
				timeout = elapsed.Round(time.Millisecond)
			}
			return nil, &TimeoutError{Path: inv.Path, Timeout: timeout}
		}
		return nil, fmt.Errorf("emulator %s: %w", inv.Path, ctxErr)
	}

	out := &Output{
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// The emulator exited but something it started still holds
			// stdout. Keep what was written before the pipe was closed.
			slog.Warn("emulator exited with stdout still open",
				"path", inv.Path,
				"exit_code", cmd.ProcessState.ExitCode(),
				"wait_delay", waitDelay,
			)
			out.ExitCode = cmd.ProcessState.ExitCode()
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitCode()
		default:
			return nil, &StartError{Path: inv.Path, Err: err}
		}
	}

	out.Lines = trace.Capture(trace.Candidate, stdout.Bytes())

	slog.Debug("emulator exited",
		"path", inv.Path,
		"exit_code", out.ExitCode,
		"lines", len(out.Lines),
		"duration", elapsed,
	)

	return out, nil
}

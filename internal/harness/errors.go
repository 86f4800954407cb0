package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/emulator"
	"github.com/roach88/tracediff/internal/trace"
)

// ErrEmptyReference is wrapped in a trace.ReadError when the reference trace
// has no records.
var ErrEmptyReference = errors.New("reference trace has no records")

// ProcessError is returned when the emulator exits with a nonzero status.
type ProcessError struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("emulator %s exited with status %d", e.Path, e.ExitCode)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// Kind classifies the outcome of a run.
type Kind string

const (
	KindPass              Kind = "pass"
	KindReadError         Kind = "read_error"
	KindProcessFailure    Kind = "process_failure"
	KindTimeoutFailure    Kind = "timeout"
	KindLineCountMismatch Kind = "line_count_mismatch"
	KindFieldMismatch     Kind = "field_mismatch"
	KindInternal          Kind = "internal"
)

// KindOf returns the kind of err. A nil error is KindPass; anything not
// produced by a run step (a failure to start the emulator, a cancelled
// context) is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindPass
	}

	var (
		readErr  *trace.ReadError
		procErr  *ProcessError
		timeout  *emulator.TimeoutError
		count    *compare.LineCountError
		mismatch *compare.MismatchError
	)
	switch {
	case errors.As(err, &readErr):
		return KindReadError
	case errors.As(err, &procErr):
		return KindProcessFailure
	case errors.As(err, &timeout):
		return KindTimeoutFailure
	case errors.As(err, &count):
		return KindLineCountMismatch
	case errors.As(err, &mismatch):
		return KindFieldMismatch
	default:
		return KindInternal
	}
}

// Code returns the stable error code shown in output, e.g. "E_MISMATCH".
// KindPass has no code.
func (k Kind) Code() string {
	switch k {
	case KindPass:
		return ""
	case KindReadError:
		return "E_READ"
	case KindProcessFailure:
		return "E_PROCESS"
	case KindTimeoutFailure:
		return "E_TIMEOUT"
	case KindLineCountMismatch:
		return "E_LINE_COUNT"
	case KindFieldMismatch:
		return "E_MISMATCH"
	default:
		return "E_INTERNAL"
	}
}

// MismatchOf returns the mismatch carried by err, or nil.
func MismatchOf(err error) *compare.Mismatch {
	var me *compare.MismatchError
	if errors.As(err, &me) {
		return me.Mismatch
	}
	return nil
}

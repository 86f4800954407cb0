package testutil

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tracediff/internal/trace"
)

// The fake emulator is the test binary itself, re-executed with these
// variables set. MaybeRunFakeEmulator in TestMain turns it into an
// emulator before any test runs.
const (
	envMode      = "TRACEDIFF_FAKE_EMULATOR"
	envTrace     = "TRACEDIFF_FAKE_TRACE"
	envExit      = "TRACEDIFF_FAKE_EXIT"
	envPatchStep = "TRACEDIFF_FAKE_PATCH_STEP"
	envPatchText = "TRACEDIFF_FAKE_PATCH_TEXT"
	envDrop      = "TRACEDIFF_FAKE_DROP"
	envHold      = "TRACEDIFF_FAKE_HOLD"
)

// Fake emulator behaviours.
const (
	// ModeReplay prints the first <steps> lines of Trace.
	ModeReplay = "replay"
	// ModeFail prints a message on stderr and exits with ExitCode (default 1).
	ModeFail = "fail"
	// ModeHang never exits on its own, or sleeps for Hold when it is set.
	ModeHang = "hang"
	// ModeOrphan behaves like ModeArgs, but first starts a ModeHang child
	// that inherits stdout and keeps it open for Hold after the fake exits.
	ModeOrphan = "orphan"
	// ModeArgs prints its arguments as "rom=<rom> steps=<steps>".
	ModeArgs = "args"
)

// FakeEmulator configures one fake emulator run.
type FakeEmulator struct {
	Mode  string
	Trace string // trace file replayed by ModeReplay

	ExitCode int

	// PatchStep, when > 0, replaces that 1-based line with PatchText.
	PatchStep int
	PatchText string

	// Drop removes this many lines from the end of the replay.
	Drop int

	// Hold bounds ModeHang and the ModeOrphan child.
	Hold time.Duration
}

// Env returns the environment that selects this behaviour.
func (f FakeEmulator) Env() []string {
	env := []string{
		envMode + "=" + f.Mode,
		envTrace + "=" + f.Trace,
		envExit + "=" + strconv.Itoa(f.ExitCode),
		envDrop + "=" + strconv.Itoa(f.Drop),
		envHold + "=" + f.Hold.String(),
	}
	if f.PatchStep > 0 {
		env = append(env,
			envPatchStep+"="+strconv.Itoa(f.PatchStep),
			envPatchText+"="+f.PatchText,
		)
	}
	return env
}

// FakeEmulatorPath returns the executable to invoke as the fake emulator.
func FakeEmulatorPath(t testing.TB) string {
	t.Helper()
	path, err := os.Executable()
	require.NoError(t, err)
	return path
}

// MaybeRunFakeEmulator turns the process into the fake emulator when the
// fake emulator environment is present, and never returns in that case.
// Call it first in TestMain.
func MaybeRunFakeEmulator() {
	mode := os.Getenv(envMode)
	if mode == "" {
		return
	}
	os.Exit(runFake(mode, os.Args[1:], os.Stdout, os.Stderr))
}

func runFake(mode string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintf(stderr, "usage: fake-emulator <rom> <steps>, got %q\n", args)
		return 2
	}
	steps, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "invalid step count %q\n", args[1])
		return 2
	}
	exitCode := envInt(envExit, 0)

	switch mode {
	case ModeArgs:
		fmt.Fprintf(stdout, "rom=%s steps=%d\n", args[0], steps)
		return exitCode

	case ModeFail:
		fmt.Fprintln(stderr, "fake emulator: failure requested")
		if exitCode == 0 {
			exitCode = 1
		}
		return exitCode

	case ModeHang:
		hold, err := time.ParseDuration(os.Getenv(envHold))
		if err != nil || hold <= 0 {
			hold = time.Hour
		}
		time.Sleep(hold)
		return 0

	case ModeOrphan:
		self, err := os.Executable()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		child := exec.Command(self, args...)
		child.Env = append(os.Environ(), envMode+"="+ModeHang)
		child.Stdout = stdout
		if err := child.Start(); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		fmt.Fprintf(stdout, "rom=%s steps=%d\n", args[0], steps)
		return exitCode

	case ModeReplay:
		lines, err := trace.Load(os.Getenv(envTrace))
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		if steps < len(lines) {
			lines = lines[:steps]
		}
		if drop := envInt(envDrop, 0); drop > 0 && drop <= len(lines) {
			lines = lines[:len(lines)-drop]
		}
		patch := envInt(envPatchStep, 0)
		for _, l := range lines {
			text := l.Text
			if l.Step == patch {
				text = os.Getenv(envPatchText)
			}
			fmt.Fprintln(stdout, text)
		}
		return exitCode

	default:
		fmt.Fprintf(stderr, "unknown fake emulator mode %q\n", mode)
		return 2
	}
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

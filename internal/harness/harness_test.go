package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/testutil"
	"github.com/roach88/tracediff/internal/trace"
)

func TestMain(m *testing.M) {
	testutil.MaybeRunFakeEmulator()
	os.Exit(m.Run())
}

const scenarioLine = "C000  A9 00  LDA #$00  A:00 X:00 Y:00 P:24 SP:FD CYC:7"

type recorder struct {
	steps    int
	mismatch *compare.Mismatch
}

func (r *recorder) Step(ref, cand trace.Line) { r.steps++ }
func (r *recorder) Mismatch(m *compare.Mismatch) { r.mismatch = m }

func writeTrace(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func tenLines() []string {
	out := make([]string, 10)
	for i := range out {
		out[i] = fmt.Sprintf("%04X  EA  NOP  A:00 X:00 Y:00 P:24 SP:FD CYC:%d", 0xC000+i, 7+2*i)
	}
	return out
}

func config(t *testing.T, ref string, f testutil.FakeEmulator) Config {
	f.Trace = ref
	return Config{
		Emulator:  testutil.FakeEmulatorPath(t),
		ROM:       "nestest.nes",
		Reference: ref,
		Env:       f.Env(),
	}
}

func TestRun_ScenarioA_Match(t *testing.T) {
	ref := writeTrace(t, scenarioLine)
	rec := &recorder{}

	result, err := Run(context.Background(), config(t, ref, testutil.FakeEmulator{Mode: testutil.ModeReplay}), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, 1, rec.steps)
	assert.Equal(t, KindPass, KindOf(err))
}

func TestRun_ScenarioB_FieldMismatch(t *testing.T) {
	ref := writeTrace(t, scenarioLine)
	rec := &recorder{}

	cfg := config(t, ref, testutil.FakeEmulator{
		Mode:      testutil.ModeReplay,
		PatchStep: 1,
		PatchText: strings.Replace(scenarioLine, "P:24", "P:26", 1),
	})
	_, err := Run(context.Background(), cfg, rec)
	require.Error(t, err)
	assert.Equal(t, KindFieldMismatch, KindOf(err))

	m := MismatchOf(err)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Step)
	assert.Equal(t, []string{"P"}, m.FieldNames())
	assert.Same(t, m, rec.mismatch)
}

func TestRun_ScenarioC_ProcessFailure(t *testing.T) {
	ref := writeTrace(t, scenarioLine)
	rec := &recorder{}

	_, err := Run(context.Background(), config(t, ref, testutil.FakeEmulator{Mode: testutil.ModeFail}), rec)
	require.Error(t, err)
	assert.Equal(t, KindProcessFailure, KindOf(err))
	assert.Nil(t, MismatchOf(err))
	assert.Zero(t, rec.steps)
	assert.Nil(t, rec.mismatch)
	assert.Contains(t, err.Error(), "exited with status 1: fake emulator: failure requested")
}

func TestRun_ProcessFailureIgnoresOutput(t *testing.T) {
	// A complete, correct trace does not rescue a nonzero exit.
	ref := writeTrace(t, tenLines()...)
	rec := &recorder{}

	_, err := Run(context.Background(), config(t, ref, testutil.FakeEmulator{Mode: testutil.ModeReplay, ExitCode: 2}), rec)
	require.Error(t, err)
	assert.Equal(t, KindProcessFailure, KindOf(err))
	assert.Zero(t, rec.steps)
}

func TestRun_ScenarioD_LineCountMismatch(t *testing.T) {
	ref := writeTrace(t, tenLines()...)
	rec := &recorder{}

	_, err := Run(context.Background(), config(t, ref, testutil.FakeEmulator{Mode: testutil.ModeReplay, Drop: 1}), rec)
	require.Error(t, err)
	assert.Equal(t, KindLineCountMismatch, KindOf(err))
	assert.Zero(t, rec.steps)
	assert.Contains(t, err.Error(), "reference has 10 lines, candidate has 9")
}

func TestRun_Timeout(t *testing.T) {
	ref := writeTrace(t, scenarioLine)
	cfg := config(t, ref, testutil.FakeEmulator{Mode: testutil.ModeHang})
	cfg.Timeout = 200 * time.Millisecond

	_, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeoutFailure, KindOf(err))
}

func TestRun_ReadErrorSkipsEmulator(t *testing.T) {
	cfg := Config{
		// Running this would be an internal error, not a read error.
		Emulator:  filepath.Join(t.TempDir(), "missing-emulator"),
		ROM:       "rom",
		Reference: filepath.Join(t.TempDir(), "missing.log"),
	}

	_, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, KindReadError, KindOf(err))
}

func TestRun_EmptyReferenceFails(t *testing.T) {
	cfg := Config{
		Emulator:  filepath.Join(t.TempDir(), "missing-emulator"),
		ROM:       "rom",
		Reference: writeTrace(t, "", "   ", ""),
	}

	result, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, KindReadError, KindOf(err))
	assert.Equal(t, "E_READ", KindOf(err).Code())
	assert.True(t, errors.Is(err, ErrEmptyReference))
	assert.Contains(t, err.Error(), "reference trace has no records")
}

func TestRun_MissingEmulatorIsInternal(t *testing.T) {
	cfg := Config{
		Emulator:  filepath.Join(t.TempDir(), "missing-emulator"),
		ROM:       "rom",
		Reference: writeTrace(t, scenarioLine),
	}

	_, err := Run(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestRun_Deterministic(t *testing.T) {
	ref := writeTrace(t, tenLines()...)
	cfg := config(t, ref, testutil.FakeEmulator{
		Mode:      testutil.ModeReplay,
		PatchStep: 6,
		PatchText: "C005  EA  NOP  A:00 X:00 Y:00 P:24 SP:FD CYC:18",
	})

	for i := 0; i < 3; i++ {
		_, err := Run(context.Background(), cfg, nil)
		require.Error(t, err)
		m := MismatchOf(err)
		require.NotNil(t, m)
		assert.Equal(t, 6, m.Step)
		assert.Equal(t, []string{"CYC"}, m.FieldNames())
	}
}

func TestDiff(t *testing.T) {
	ref := writeTrace(t, tenLines()...)

	t.Run("identical", func(t *testing.T) {
		result, err := Diff(ref, ref, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, result.Steps)
	})

	t.Run("shorter candidate", func(t *testing.T) {
		cand := writeTrace(t, tenLines()[:9]...)
		_, err := Diff(ref, cand, nil)
		assert.Equal(t, KindLineCountMismatch, KindOf(err))
	})

	t.Run("empty reference", func(t *testing.T) {
		empty := writeTrace(t, "")
		_, err := Diff(empty, empty, nil)
		assert.Equal(t, KindReadError, KindOf(err))
		assert.True(t, errors.Is(err, ErrEmptyReference))
	})

	t.Run("missing candidate", func(t *testing.T) {
		_, err := Diff(ref, filepath.Join(t.TempDir(), "nope.log"), nil)
		assert.Equal(t, KindReadError, KindOf(err))
	})
}

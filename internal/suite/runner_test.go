package suite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracediff/internal/harness"
	"github.com/roach88/tracediff/internal/report"
	"github.com/roach88/tracediff/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.MaybeRunFakeEmulator()
	os.Exit(m.Run())
}

func writeReference(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%04X  EA  NOP  A:00 X:00 Y:00 P:24 SP:FD CYC:%d\n", 0xC000+i, 7+2*i)
	}
	path := filepath.Join(t.TempDir(), "ref.log")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func envMap(f testutil.FakeEmulator) map[string]string {
	env := make(map[string]string)
	for _, kv := range f.Env() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}

func fakeSuite(t *testing.T, jobs int) *Suite {
	ref := writeReference(t, 5)
	return &Suite{
		Name:     "fake",
		Emulator: testutil.FakeEmulatorPath(t),
		Jobs:     jobs,
		Cases: []Case{
			{Name: "pass", ROM: "rom", Reference: ref,
				Env: envMap(testutil.FakeEmulator{Mode: testutil.ModeReplay, Trace: ref})},
			{Name: "crash", ROM: "rom", Reference: ref,
				Env: envMap(testutil.FakeEmulator{Mode: testutil.ModeFail})},
			{Name: "diverge", ROM: "rom", Reference: ref,
				Env: envMap(testutil.FakeEmulator{
					Mode: testutil.ModeReplay, Trace: ref, PatchStep: 3,
					PatchText: "C002  EA  NOP  A:00 X:00 Y:00 P:25 SP:FD CYC:11",
				})},
			{Name: "missing", ROM: "rom", Reference: filepath.Join(t.TempDir(), "none.log")},
		},
	}
}

func TestRunner_RunsEveryCase(t *testing.T) {
	for _, jobs := range []int{1, 3} {
		t.Run(fmt.Sprintf("jobs=%d", jobs), func(t *testing.T) {
			buf := &bytes.Buffer{}
			var order []string
			r := &Runner{
				Out:      buf,
				Report:   report.Options{Width: 40},
				Now:      testutil.NewDeterministicClock().Now,
				OnResult: func(res CaseResult) { order = append(order, res.Name) },
			}

			results := r.Run(context.Background(), fakeSuite(t, jobs))
			require.Len(t, results, 4)
			assert.Equal(t, []string{"pass", "crash", "diverge", "missing"}, order)

			assert.True(t, results[0].Pass)
			assert.Equal(t, 5, results[0].Steps)
			assert.Equal(t, harness.KindPass, results[0].Kind)

			assert.Equal(t, harness.KindProcessFailure, results[1].Kind)
			assert.Equal(t, "E_PROCESS", results[1].Code)

			assert.Equal(t, harness.KindFieldMismatch, results[2].Kind)
			require.NotNil(t, results[2].Mismatch)
			assert.Equal(t, 3, results[2].Mismatch.Step)
			assert.Equal(t, []string{"P"}, results[2].Mismatch.Fields)

			assert.Equal(t, harness.KindReadError, results[3].Kind)

			out := buf.String()
			assert.Less(t, strings.Index(out, "=== CASE pass"), strings.Index(out, "=== CASE crash"))
			assert.Less(t, strings.Index(out, "=== CASE crash"), strings.Index(out, "=== CASE diverge"))
			assert.Contains(t, out, "--- PASS: pass (5 steps")
			assert.Contains(t, out, "--- FAIL: diverge [E_MISMATCH] mismatch at step 3: P")
			assert.Contains(t, out, "--- FAIL: missing [E_READ]")

			assert.Equal(t, Summary{Passed: 1, Failed: 3, Total: 4}, Summarize(results))
		})
	}
}

func TestRunner_StampsStartTimes(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	r := &Runner{Now: clock.Now, Report: report.Options{Quiet: true}}

	s := fakeSuite(t, 1)
	results := r.Run(context.Background(), s)

	// One job: cases start in order, one clock tick each.
	for i, res := range results {
		assert.Equal(t, testutil.Epoch.Add(time.Duration(i)*time.Second), res.StartedAt)
	}
}

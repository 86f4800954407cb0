package cli

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracediff/internal/compare"
	"github.com/roach88/tracediff/internal/harness"
	"github.com/roach88/tracediff/internal/history"
	"github.com/roach88/tracediff/internal/testutil"
	"github.com/roach88/tracediff/internal/trace"
)

func seedHistory(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "runs.db")
	st, err := history.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs := []history.Run{
		{ID: "run-a", Reference: "nestest.log", Steps: 8991, Outcome: "pass", StartedAt: testutil.Epoch},
		{ID: "run-b", Reference: "nestest.log", Steps: 4, Outcome: "field_mismatch", FailedStep: 5,
			Fields: []string{"P", "CYC"}, Message: "mismatch at step 5: P CYC", StartedAt: testutil.Epoch},
		{ID: "run-c", Suite: "nightly", Name: "official", Outcome: "timeout", StartedAt: testutil.Epoch},
	}
	for _, r := range runs {
		require.NoError(t, st.Record(ctx, r))
	}
	return db
}

func TestHistoryCommand_RequiresDatabase(t *testing.T) {
	res := execute(t, &RootOptions{}, "history")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "history requires --db")
}

func TestHistoryCommand_Text(t *testing.T) {
	res := execute(t, &RootOptions{}, "history", "--db", seedHistory(t))
	require.NoError(t, res.err)

	out := res.stdout
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "nightly/official")
	assert.Contains(t, out, "P CYC")
	assert.Less(t, strings.Index(out, "run-c"), strings.Index(out, "run-a"), "newest first")
	assert.NotContains(t, out, "mismatch at step 5", "messages only with --verbose")
}

func TestHistoryCommand_Filters(t *testing.T) {
	db := seedHistory(t)

	res := execute(t, &RootOptions{}, "history", "--db", db, "--format", "json", "--outcome", "field_mismatch")
	require.NoError(t, res.err)

	var resp struct {
		Data HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.Len(t, resp.Data.Runs, 1)
	assert.Equal(t, "run-b", resp.Data.Runs[0].ID)
	assert.Equal(t, []string{"P", "CYC"}, resp.Data.Runs[0].Fields)

	res = execute(t, &RootOptions{}, "history", "--db", db, "--format", "json", "--limit", "2")
	require.NoError(t, res.err)
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Len(t, resp.Data.Runs, 2)
}

func TestHistoryCommand_SingleRun(t *testing.T) {
	db := seedHistory(t)

	res := execute(t, &RootOptions{}, "history", "--db", db, "--id", "run-b")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "run-b: mismatch at step 5: P CYC")
	assert.NotContains(t, res.stdout, "run-a")

	res = execute(t, &RootOptions{}, "history", "--db", db, "--id", "nope")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.True(t, errors.Is(res.err, history.ErrNotFound))
}

func TestHistoryCommand_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	res := execute(t, &RootOptions{}, "history", "--db", db)
	require.NoError(t, res.err)
	assert.Equal(t, "No runs recorded\n", res.stdout)
}

func TestNewHistoryRun(t *testing.T) {
	cfg := harness.Config{Emulator: "./runner", ROM: "nestest.nes", Reference: "nestest.log"}

	t.Run("pass", func(t *testing.T) {
		run := newHistoryRun(cfg, 10, testutil.Epoch, time.Second, nil)
		assert.Equal(t, "pass", run.Outcome)
		assert.Equal(t, 10, run.Steps)
		assert.Empty(t, run.Message)
		assert.Equal(t, "./runner", run.Emulator)
	})

	t.Run("mismatch", func(t *testing.T) {
		err := &compare.MismatchError{Mismatch: &compare.Mismatch{
			Step:   7,
			Fields: []trace.Field{trace.A, trace.CYC},
		}}
		run := newHistoryRun(cfg, 0, testutil.Epoch, time.Second, err)
		assert.Equal(t, "field_mismatch", run.Outcome)
		assert.Equal(t, 6, run.Steps)
		assert.Equal(t, 7, run.FailedStep)
		assert.Equal(t, []string{"A", "CYC"}, run.Fields)
		assert.Equal(t, err.Error(), run.Message)
	})

	t.Run("line count", func(t *testing.T) {
		run := newHistoryRun(cfg, 0, testutil.Epoch, time.Second, &compare.LineCountError{Reference: 3, Candidate: 1})
		assert.Equal(t, "line_count_mismatch", run.Outcome)
		assert.Zero(t, run.FailedStep)
		assert.Nil(t, run.Fields)
	})
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *recorder
	assert.Empty(t, rec.Record(context.Background(), history.Run{}))
	rec.Close()

	got, err := (&RootOptions{}).openRecorder()
	require.NoError(t, err)
	assert.Nil(t, got)
}

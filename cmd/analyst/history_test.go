package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/storage/sqlite"
	"github.com/steveyegge/analyst/internal/types"
)

func openStore(t *testing.T) *sqlite.RunStore {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveSampleRun(t *testing.T, store *sqlite.RunStore) *types.RunSummary {
	t.Helper()
	run := &types.RunSummary{
		RunID:      "0f8fad5b-d9cb-469f-a165-70867728950e",
		Prompt:     "Find the drivers of heart disease\nwith plots",
		StartedAt:  time.Now().Add(-time.Minute),
		Duration:   42 * time.Second,
		Iterations: 4,
		Stop:       types.StopExecutionFailure,
		Reason:     "too many consecutive execution failures",
		Topics:     []types.Topic{types.TopicCorrelations},
		Verdict:    types.VerdictPartial,
		Records: []types.IterationRecord{
			{Index: 1, Iteration: 1, Explanation: "Load the data", Code: "print(1)", Succeeded: true, ArtifactCount: 1, Timestamp: time.Now()},
			{Index: 2, Iteration: 2, Explanation: "Plot correlations", Code: "plt.show(", Output: "SyntaxError", Timestamp: time.Now()},
		},
	}
	evts := []*events.Event{
		events.New(events.EventTypeRunStarted, run.RunID, 0, events.SeverityInfo, "Starting adaptive analysis"),
		events.New(events.EventTypeExecutionFailed, run.RunID, 2, events.SeverityWarning, "SyntaxError: unexpected EOF"),
	}
	require.NoError(t, store.SaveRun(context.Background(), run, evts))
	return run
}

func TestListRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listRuns(context.Background(), &buf, openStore(t), 10))
	assert.Contains(t, buf.String(), "No runs recorded yet")
}

func TestListRuns(t *testing.T) {
	store := openStore(t)
	saveSampleRun(t, store)

	var buf bytes.Buffer
	require.NoError(t, listRuns(context.Background(), &buf, store, 10))

	out := buf.String()
	assert.Contains(t, out, "0f8fad5b")
	assert.Contains(t, out, " 4 iterations")
	assert.Contains(t, out, "execution_failure")
	assert.Contains(t, out, "Find the drivers of heart disease")
	assert.NotContains(t, out, "with plots")
}

func TestShowRun(t *testing.T) {
	store := openStore(t)
	run := saveSampleRun(t, store)

	var buf bytes.Buffer
	require.NoError(t, showRun(context.Background(), &buf, store, run.RunID))

	out := buf.String()
	assert.Contains(t, out, "4 (2 steps, 1 with visuals)")
	assert.Contains(t, out, "Topics:      correlations")
	assert.Contains(t, out, "1. [iteration 1] Load the data")
	assert.Contains(t, out, "2. [iteration 2] Plot correlations")
	assert.Contains(t, out, "run_started")
	assert.Contains(t, out, "SyntaxError: unexpected EOF")
}

func TestShowRun_NotFound(t *testing.T) {
	var buf bytes.Buffer
	err := showRun(context.Background(), &buf, openStore(t), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run missing not found")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "second", firstLine("\n  \nsecond\nthird", 20))
	assert.Equal(t, "abcdefg...", firstLine("abcdefghijklmnop", 10))
	assert.Equal(t, "", firstLine("", 10))
	assert.Equal(t, "run-1", shortID("run-1"))
}

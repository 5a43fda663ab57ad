package repl

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/types"
)

func TestConsole_Observe(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Observe(events.New(events.EventTypeExecutionStarted, "r", 1, events.SeverityInfo, "Executing code").
		With("code", "df.describe()"))
	c.Observe(events.New(events.EventTypeExecutionSucceeded, "r", 1, events.SeverityInfo, ""))
	c.Observe(events.New(events.EventTypeArtifactsSaved, "r", 1, events.SeverityInfo, "Saved 1").
		With("paths", []string{"output/step_120000_0.png"}))
	c.Observe(events.New(events.EventTypeSandboxRecoveryFailed, "r", 1, events.SeverityError, "boom"))

	out := buf.String()
	assert.Contains(t, out, "df.describe()")
	assert.Contains(t, out, "Code executed (no output)")
	assert.Contains(t, out, "Saved: output/step_120000_0.png")
	assert.Contains(t, out, "boom")
}

func TestConsole_TruncatesLongOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.ShowCode = false

	c.Observe(events.New(events.EventTypeExecutionStarted, "r", 1, events.SeverityInfo, "Executing code").
		With("code", "secret_code()"))
	c.Observe(events.New(events.EventTypeExecutionSucceeded, "r", 1, events.SeverityInfo, strings.Repeat("x", 2000)))

	assert.NotContains(t, buf.String(), "secret_code()")
	assert.Contains(t, buf.String(), "output truncated")
	assert.Less(t, strings.Count(buf.String(), "x"), 1000)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &types.RunSummary{
		Iterations: 6,
		Duration:   1234 * time.Millisecond,
		Stop:       types.StopTopicCoverage,
		Reason:     "comprehensive coverage achieved: 4 core topics covered",
		Topics:     []types.Topic{types.TopicCorrelations, types.TopicStatistics},
		Verdict:    types.VerdictComprehensive,
		Records: []types.IterationRecord{
			{Index: 1, Succeeded: true, ArtifactCount: 2},
			{Index: 2, Succeeded: true},
			{Index: 3, Succeeded: true, ArtifactCount: 1},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Iterations:          6")
	assert.Contains(t, out, "Steps executed:      3")
	assert.Contains(t, out, "Steps with visuals:  2")
	assert.Contains(t, out, "1.2s")
	assert.Contains(t, out, "Comprehensive analysis achieved")
	assert.NotContains(t, out, "Sandbox recoveries")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	long := strings.Repeat("a", 150)
	got := truncate(long, 100)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasSuffix(got, "..."))
}

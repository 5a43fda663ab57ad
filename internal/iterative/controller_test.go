package iterative

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/sandbox"
	"github.com/steveyegge/analyst/internal/sandbox/sandboxtest"
	"github.com/steveyegge/analyst/internal/types"
)

func TestRunOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    RunOptions
		wantErr string
	}{
		{"defaults", DefaultRunOptions(), ""},
		{"negative min", RunOptions{MinIterations: -1, MaxIterations: 3}, "negative"},
		{"zero max", RunOptions{MinIterations: 0, MaxIterations: 0}, "cannot be zero"},
		{"max below min", RunOptions{MinIterations: 5, MaxIterations: 3}, "must be >="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewControllerRequiresModelAndMonitor(t *testing.T) {
	_, err := NewController(ControllerConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = NewController(ControllerConfig{Model: &scriptedModel{}}, nil, nil)
	assert.Error(t, err)
}

func TestRun_StopsAtCeiling(t *testing.T) {
	h := newHarness(t, &scriptedModel{}, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, types.StopCeiling, summary.Stop)
	assert.Equal(t, "ceiling reached", summary.Reason)
	assert.Equal(t, 5, summary.Iterations)
	assert.Equal(t, 5, summary.StepsExecuted())
	assert.Equal(t, types.VerdictPartial, summary.Verdict)
	assert.NotEmpty(t, summary.RunID)

	for i, rec := range summary.Records {
		assert.Equal(t, i+1, rec.Index, "indexes are contiguous")
		assert.True(t, rec.Succeeded)
	}
	assert.Len(t, h.exec.Code, 5)
	assert.Equal(t, 5, h.exec.Probes, "one health probe per iteration")
	assert.Equal(t, 5, h.ctrl.Analyzer().History.Len())
}

func TestRun_PromptSequence(t *testing.T) {
	h := newHarness(t, &scriptedModel{}, sandboxtest.NewExecutor(sandboxtest.OK("rows: 10")))

	_, err := h.ctrl.Run(context.Background(), "explore sales", RunOptions{MinIterations: 2, MaxIterations: 2})
	require.NoError(t, err)

	calls := h.model.calls
	require.Len(t, calls, 2)
	assert.Equal(t, "explore sales", calls[0].user)
	assert.Contains(t, calls[0].system, "Start with basic data exploration")
	assert.Contains(t, calls[1].system, "PREVIOUS CONTEXT:")
	assert.Contains(t, calls[1].system, "Step 1: rows: 10")
	assert.Contains(t, calls[1].user, "ANALYSIS CONTINUATION - Step 2")
	assert.Contains(t, calls[1].user, "rows: 10")
}

func TestRun_ExplicitCompletionBeforeMinimum(t *testing.T) {
	model := &scriptedModel{replies: []modelReply{
		reply(stepReply(1, "Overview of the shape")),
		reply("EXPLANATION: Everything is covered. ANALYSIS_COMPLETE"),
	}}
	h := newHarness(t, model, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 10})
	require.NoError(t, err)

	assert.Equal(t, types.StopExplicitCompletion, summary.Stop)
	assert.Contains(t, summary.Reason, "analysis_complete")
	assert.Equal(t, 2, summary.Iterations)
	assert.Equal(t, 1, summary.StepsExecuted(), "the completion reply had no code")
}

func TestRun_StopsOnTopicCoverage(t *testing.T) {
	model := &scriptedModel{replies: []modelReply{
		reply(stepReply(1, "Overview of the shape")),
		reply(stepReply(2, "Correlation matrix")),
		reply(stepReply(3, "Histogram of ages")),
		reply(stepReply(4, "Plot the trend")),
		reply(stepReply(5, "Next")),
	}}
	h := newHarness(t, model, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 15})
	require.NoError(t, err)

	assert.Equal(t, types.StopTopicCoverage, summary.Stop)
	assert.Equal(t, 5, summary.Iterations, "coverage cannot stop a run before iteration 5")
	assert.Contains(t, summary.Reason, "5 core topics")
	assert.Equal(t, types.VerdictComprehensive, summary.Verdict)
	assert.Contains(t, summary.Topics, types.TopicVisualization)
}

func TestRun_ModelFailureBudget(t *testing.T) {
	boom := errors.New("503 service unavailable")
	model := &scriptedModel{replies: []modelReply{failure(boom), failure(boom), failure(boom)}}
	h := newHarness(t, model, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 10})
	require.NoError(t, err)

	assert.Equal(t, types.StopModelFailure, summary.Stop)
	assert.Equal(t, 3, summary.Iterations)
	assert.Zero(t, summary.StepsExecuted())
	assert.Empty(t, h.exec.Code)
	assert.Len(t, h.events.OfType(events.EventTypeModelFailure), 3)
}

func TestRun_ModelSuccessResetsFailureCount(t *testing.T) {
	boom := errors.New("overloaded")
	model := &scriptedModel{replies: []modelReply{
		failure(boom), failure(boom),
		reply(stepReply(3, "Step number")),
		failure(boom), failure(boom), failure(boom),
	}}
	h := newHarness(t, model, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 10, MaxIterations: 10})
	require.NoError(t, err)

	assert.Equal(t, types.StopModelFailure, summary.Stop)
	assert.Equal(t, 6, summary.Iterations)
	assert.Equal(t, 1, summary.StepsExecuted())
}

func TestRun_ExecutionFailureBudget(t *testing.T) {
	exec := sandboxtest.NewExecutor(
		sandboxtest.Raise("ValueError", "could not convert string to float"),
		sandboxtest.Raise("KeyError", "'price'"),
	)
	h := newHarness(t, &scriptedModel{}, exec)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 10})
	require.NoError(t, err)

	assert.Equal(t, types.StopExecutionFailure, summary.Stop)
	assert.Equal(t, 2, summary.Iterations)
	require.Len(t, summary.Records, 2, "failed steps are still recorded")
	assert.False(t, summary.Records[0].Succeeded)
	assert.Equal(t, "ValueError: could not convert string to float", summary.Records[0].Output)
	assert.True(t, summary.Stop.IsFailure())
}

func TestRun_RecoverableFailureResetsStreak(t *testing.T) {
	exec := sandboxtest.NewExecutor(
		sandboxtest.Raise("ValueError", "bad value"),
		sandboxtest.Raise("ModuleNotFoundError", "No module named 'seaborn'"),
		sandboxtest.Raise("ValueError", "bad value"),
	)
	h := newHarness(t, &scriptedModel{}, exec)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 3})
	require.NoError(t, err)

	assert.Equal(t, types.StopCeiling, summary.Stop)
	assert.Equal(t, 3, summary.StepsExecuted())
	assert.Equal(t, 1, h.metrics.GetAggregateMetrics().RecoveriesByAction["alternative_approach"])
}

func TestRun_RecreatesSandboxAfterTimeout(t *testing.T) {
	first := sandboxtest.NewExecutor(sandboxtest.Fail("sandbox timeout while executing"))
	second := sandboxtest.NewExecutor()
	h := newHarness(t, &scriptedModel{}, first)
	h.provider.Executors = []*sandboxtest.Executor{second}

	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0644))
	require.NoError(t, h.ctrl.LoadDataset(context.Background(), path))

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 2, MaxIterations: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Recoveries)
	assert.Equal(t, 1, summary.StepsExecuted(), "the dropped step is not recorded")
	assert.Equal(t, 1, h.ctrl.Analyzer().History.Len())
	assert.True(t, first.Closed)
	assert.Len(t, second.Code, 1, "the second step ran on the new sandbox")
	assert.Equal(t, "a,b\n1,2\n", string(second.Uploads[sandbox.DatasetName]))
	assert.Equal(t, second.ID(), h.ctrl.Session().ID())
	assert.Len(t, h.events.OfType(events.EventTypeSandboxRecovered), 1)
}

func TestRun_ReloadsDatasetAfterMissingFile(t *testing.T) {
	exec := sandboxtest.NewExecutor(
		sandboxtest.Raise("FileNotFoundError", "[Errno 2] No such file or directory: 'data.csv'"),
	)
	h := newHarness(t, &scriptedModel{}, exec)

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("x\n1\n"), 0644))
	require.NoError(t, h.ctrl.LoadDataset(context.Background(), path))

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 2, MaxIterations: 2})
	require.NoError(t, err)

	assert.Equal(t, types.StopCeiling, summary.Stop)
	assert.Zero(t, summary.Recoveries)
	assert.Len(t, h.events.OfType(events.EventTypeDatasetReloaded), 1)
	assert.Empty(t, h.provider.Created, "reloading does not recreate the sandbox")
}

func TestRun_AbortsWhenSandboxCannotBeRecreated(t *testing.T) {
	exec := sandboxtest.NewExecutor()
	exec.ProbeResults = []sandboxtest.Result{sandboxtest.Raise("RuntimeError", "kernel died")}
	model := &scriptedModel{}
	h := newHarness(t, model, exec)
	h.provider.CreateErr = errors.New("quota exceeded")

	summary, err := h.ctrl.Run(context.Background(), "go", DefaultRunOptions())
	require.NoError(t, err)

	assert.Equal(t, types.StopHealthFailure, summary.Stop)
	assert.Contains(t, summary.Reason, "quota exceeded")
	assert.Equal(t, 1, summary.Iterations)
	assert.Zero(t, model.callCount())
	assert.Len(t, h.events.OfType(events.EventTypeSandboxRecoveryFailed), 1)
}

func TestRun_RetriesWhenReplyHasNoCode(t *testing.T) {
	model := &scriptedModel{replies: []modelReply{reply("Let me think about the data first.")}}
	h := newHarness(t, model, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 2, MaxIterations: 2})
	require.NoError(t, err)

	require.Len(t, model.calls, 2)
	assert.Equal(t, RetryPrompt, model.calls[1].user)
	assert.Equal(t, 2, summary.Iterations, "the no-code reply consumed a slot")
	assert.Equal(t, 1, summary.StepsExecuted())
	assert.Len(t, h.events.OfType(events.EventTypeNoCode), 1)
}

func TestRun_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := &scriptedModel{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	h := newHarness(t, model, nil)

	summary, err := h.ctrl.Run(ctx, "go", RunOptions{MinIterations: 3, MaxIterations: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, types.StopInterrupted, summary.Stop)
	assert.Equal(t, 2, summary.Iterations)
	assert.Equal(t, 1, summary.StepsExecuted())
}

// cancellingExecutor cancels the run when asked to execute a step, as an
// interrupt arriving during the sandbox call would.
type cancellingExecutor struct {
	*sandboxtest.Executor
	cancel context.CancelFunc
}

func (e *cancellingExecutor) Run(ctx context.Context, code string) (*sandbox.Execution, error) {
	if code != sandbox.HealthCheckCode {
		e.cancel()
		return nil, ctx.Err()
	}
	return e.Executor.Run(ctx, code)
}

func TestRun_InterruptedDuringExecutionRecordsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, &scriptedModel{}, nil)
	exec := &cancellingExecutor{Executor: sandboxtest.NewExecutor(), cancel: cancel}
	ctrl, err := NewController(ControllerConfig{
		Model:    h.model,
		Monitor:  sandbox.NewHealthMonitor(h.provider, nil),
		Observer: h.events,
	}, sandbox.NewSession(exec), nil)
	require.NoError(t, err)

	summary, err := ctrl.Run(ctx, "go", RunOptions{MinIterations: 3, MaxIterations: 10})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, types.StopInterrupted, summary.Stop)
	assert.Empty(t, summary.Records)
	assert.Zero(t, ctrl.Analyzer().History.Len())
}

func TestRun_OpensFirstSessionWithoutCountingRecovery(t *testing.T) {
	h := newHarness(t, &scriptedModel{}, nil)
	ctrl, err := NewController(ControllerConfig{
		Model:    h.model,
		Monitor:  sandbox.NewHealthMonitor(h.provider, nil),
		Observer: h.events,
	}, nil, nil)
	require.NoError(t, err)

	summary, err := ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 1, MaxIterations: 1})
	require.NoError(t, err)

	assert.Zero(t, summary.Recoveries)
	assert.Len(t, h.provider.Created, 1)
	assert.NotNil(t, ctrl.Session())
	assert.Empty(t, h.events.OfType(events.EventTypeSandboxRecovered))
	assert.Equal(t, 1, summary.StepsExecuted())
}

func TestRun_PacesBetweenSteps(t *testing.T) {
	h := newHarness(t, &scriptedModel{}, nil, func(cfg *ControllerConfig) {
		cfg.StepDelay = time.Millisecond
	})

	_, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 3})
	require.NoError(t, err)

	assert.Len(t, h.events.OfType(events.EventTypePacing), 2, "no wait after the last step")
}

func TestRun_RecordsMetricsAndEvents(t *testing.T) {
	h := newHarness(t, &scriptedModel{}, nil)

	summary, err := h.ctrl.Run(context.Background(), "go", RunOptions{MinIterations: 3, MaxIterations: 4})
	require.NoError(t, err)

	agg := h.metrics.GetAggregateMetrics()
	assert.Equal(t, 1, agg.TotalRuns)
	assert.Equal(t, 4, agg.TotalIterations)
	assert.Equal(t, 1, agg.ByStop[types.StopCeiling])
	assert.Equal(t, 4, agg.ByOutcome[OutcomeExecuted])

	started := h.events.OfType(events.EventTypeRunStarted)
	completed := h.events.OfType(events.EventTypeRunCompleted)
	require.Len(t, started, 1)
	require.Len(t, completed, 1)
	assert.Equal(t, summary.RunID, completed[0].RunID)
	assert.Equal(t, string(types.StopCeiling), completed[0].String("stop"))
	assert.Len(t, h.events.OfType(events.EventTypeIterationStarted), 4)
}

func TestRun_HistoryAccumulatesAcrossRuns(t *testing.T) {
	h := newHarness(t, &scriptedModel{}, nil)

	first, err := h.ctrl.Run(context.Background(), "one", RunOptions{MinIterations: 2, MaxIterations: 2})
	require.NoError(t, err)
	second, err := h.ctrl.Run(context.Background(), "two", RunOptions{MinIterations: 2, MaxIterations: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Records[0].Index)
	assert.Equal(t, 3, second.Records[0].Index)
	assert.Equal(t, 4, h.ctrl.Analyzer().History.Len())
	assert.True(t, strings.Contains(h.ctrl.Analyzer().Context.String(), "completed in 2 steps"))
}

func TestStep_ExecutesAndSavesArtifacts(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))
	exec := sandboxtest.NewExecutor(sandboxtest.Result{Execution: &sandbox.Execution{
		Logs:      sandbox.Logs{Stdout: []string{"saved chart\n"}},
		Artifacts: []sandbox.Artifact{{Format: sandbox.FormatPNG, Data: png}},
	}})
	dir := t.TempDir()
	model := &scriptedModel{replies: []modelReply{reply(stepReply(1, "Plot the distribution"))}}
	h := newHarness(t, model, exec, func(cfg *ControllerConfig) { cfg.ArtifactDir = dir })

	res, err := h.ctrl.Step(context.Background(), VisualizePrompt("price by region"))
	require.NoError(t, err)

	require.NotNil(t, res.Record)
	assert.True(t, res.Record.Succeeded)
	assert.Equal(t, 1, res.Record.ArtifactCount)
	assert.Equal(t, "saved chart", res.Record.Output)
	require.Len(t, res.Saved, 1)
	data, err := os.ReadFile(res.Saved[0])
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(data))

	assert.True(t, h.ctrl.Analyzer().Topics.Has(types.TopicVisualization))
	assert.True(t, h.ctrl.Analyzer().Topics.Has(types.TopicDistributions))
	assert.Contains(t, model.calls[0].user, "price by region")
}

func TestStep_ReportsClassifiedFailure(t *testing.T) {
	exec := sandboxtest.NewExecutor(sandboxtest.Raise("ImportError", "cannot import name 'foo'"))
	h := newHarness(t, &scriptedModel{}, exec)

	res, err := h.ctrl.Step(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, res.Classification)
	assert.True(t, res.Classification.Recoverable)
	assert.Equal(t, sandbox.ActionAlternativeApproach, res.Classification.Action)
	assert.False(t, res.Record.Succeeded)
}

func TestStep_SandboxDroppedRequest(t *testing.T) {
	first := sandboxtest.NewExecutor(sandboxtest.Fail("The sandbox was not found"))
	h := newHarness(t, &scriptedModel{}, first)

	res, err := h.ctrl.Step(context.Background(), "q")
	require.NoError(t, err)

	assert.Nil(t, res.Record)
	require.NotNil(t, res.Classification)
	assert.Equal(t, sandbox.ActionRecoverSandbox, res.Classification.Action)
	assert.True(t, res.Recovered)
	assert.Zero(t, h.ctrl.Analyzer().History.Len())
	assert.Len(t, h.provider.Created, 1)
	assert.True(t, first.Closed)
}

func TestStep_NoCode(t *testing.T) {
	model := &scriptedModel{replies: []modelReply{reply("The data has no obvious issues.")}}
	h := newHarness(t, model, nil)

	res, err := h.ctrl.Step(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, res.Record)
	assert.Equal(t, "The data has no obvious issues.", res.Explanation)
	assert.Zero(t, h.ctrl.Analyzer().History.Len())
}

func TestStep_ModelError(t *testing.T) {
	model := &scriptedModel{replies: []modelReply{failure(errors.New("401 unauthorized"))}}
	h := newHarness(t, model, nil)

	_, err := h.ctrl.Step(context.Background(), "q")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	exec := sandboxtest.NewExecutor(sandboxtest.OK("DATASET OVERVIEW:\n", "   Shape: 3 rows x 2 columns\n"))
	h := newHarness(t, &scriptedModel{}, exec)

	out, err := h.ctrl.Describe(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "Shape: 3 rows")
	assert.Equal(t, []string{sandbox.DescribeDatasetCode}, exec.Code)
}

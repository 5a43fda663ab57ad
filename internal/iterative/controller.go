package iterative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/steveyegge/analyst/internal/ai"
	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/sandbox"
	"github.com/steveyegge/analyst/internal/types"
)

var tracer = otel.Tracer("github.com/steveyegge/analyst/internal/iterative")

// Failure budgets.
const (
	// DefaultModelFailureBudget is how many consecutive model failures end a run
	DefaultModelFailureBudget = 3

	// DefaultExecFailureBudget is how many consecutive unrecoverable execution
	// failures end a run
	DefaultExecFailureBudget = 2
)

// ErrNoModel is returned by NewController when no Completer is configured
var ErrNoModel = errors.New("no model configured")

// RunOptions bounds one multi-step run.
type RunOptions struct {
	MinIterations int // the oracle only stops on an explicit completion before this
	MaxIterations int // hard ceiling on iteration slots
}

// DefaultRunOptions returns the bounds used by "run" and "autorun".
func DefaultRunOptions() RunOptions {
	return RunOptions{MinIterations: 3, MaxIterations: 15}
}

// Validate checks the bounds
func (o RunOptions) Validate() error {
	if o.MinIterations < 0 {
		return fmt.Errorf("MinIterations cannot be negative: %d", o.MinIterations)
	}
	if o.MaxIterations == 0 {
		return fmt.Errorf("MaxIterations cannot be zero (prevents infinite loops)")
	}
	if o.MaxIterations < o.MinIterations {
		return fmt.Errorf("MaxIterations (%d) must be >= MinIterations (%d)", o.MaxIterations, o.MinIterations)
	}
	return nil
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Model   ai.Completer
	Monitor *sandbox.HealthMonitor
	Oracle  *Oracle // NewOracle() if nil

	// Observer receives progress events. Optional.
	Observer events.Observer

	// Metrics collects iteration and run metrics. Optional.
	Metrics MetricsCollector

	Logger *slog.Logger

	// ArtifactDir receives image artifacts. Empty disables saving.
	ArtifactDir string

	// StepDelay is the minimum spacing between iterations. Zero disables pacing.
	StepDelay time.Duration

	ModelFailureBudget int // DefaultModelFailureBudget if zero
	ExecFailureBudget  int // DefaultExecFailureBudget if zero
}

// Controller drives analysis steps against one sandbox session. It is not
// safe for concurrent use: a session runs one step at a time.
type Controller struct {
	cfg      ControllerConfig
	logger   *slog.Logger
	session  *sandbox.Session
	analyzer *Analyzer
}

// NewController creates a controller. session may be nil; the first health
// check then opens one through the monitor.
func NewController(cfg ControllerConfig, session *sandbox.Session, analyzer *Analyzer) (*Controller, error) {
	if cfg.Model == nil {
		return nil, ErrNoModel
	}
	if cfg.Monitor == nil || cfg.Monitor.Provider == nil {
		return nil, fmt.Errorf("sandbox health monitor with a provider is required")
	}
	if cfg.Oracle == nil {
		cfg.Oracle = NewOracle()
	}
	if cfg.ModelFailureBudget <= 0 {
		cfg.ModelFailureBudget = DefaultModelFailureBudget
	}
	if cfg.ExecFailureBudget <= 0 {
		cfg.ExecFailureBudget = DefaultExecFailureBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if analyzer == nil {
		analyzer = NewAnalyzer()
	}
	return &Controller{cfg: cfg, logger: logger, session: session, analyzer: analyzer}, nil
}

// Session returns the current sandbox session. It changes after a recovery.
func (c *Controller) Session() *sandbox.Session {
	return c.session
}

// Analyzer returns the session state.
func (c *Controller) Analyzer() *Analyzer {
	return c.analyzer
}

// LoadDataset uploads the CSV at path, opening a session first if needed.
func (c *Controller) LoadDataset(ctx context.Context, path string) error {
	if c.session == nil {
		s, err := c.cfg.Monitor.Open(ctx)
		if err != nil {
			return err
		}
		c.session = s
	}
	return c.session.LoadDataset(ctx, path)
}

// Describe runs the dataset overview script and returns what it printed.
func (c *Controller) Describe(ctx context.Context) (string, error) {
	exec, err := c.session.Run(ctx, sandbox.DescribeDatasetCode)
	if err != nil {
		return "", fmt.Errorf("failed to describe dataset: %w", err)
	}
	if exec.Failed() {
		return "", fmt.Errorf("failed to describe dataset: %w", exec.Error)
	}
	return exec.Logs.String(), nil
}

// Close releases the sandbox session.
func (c *Controller) Close(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	return c.session.Close(ctx)
}

func (c *Controller) emit(e *events.Event) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.Observe(e)
	}
}

// ensureHealthy probes the session and replaces it when it is dead or when
// force is set. It returns whether a recovery happened. Without a session it
// opens the first one, which is not a recovery.
func (c *Controller) ensureHealthy(ctx context.Context, runID string, iteration int, force bool) (bool, error) {
	if c.session == nil {
		s, err := c.cfg.Monitor.Open(ctx)
		if err != nil {
			c.emit(events.New(events.EventTypeSandboxRecoveryFailed, runID, iteration, events.SeverityError,
				fmt.Sprintf("Sandbox could not be created: %v", err)))
			return false, err
		}
		c.session = s
		return false, nil
	}
	if !force && c.cfg.Monitor.Probe(ctx, c.session) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.logger.Info("recreating sandbox", "run_id", runID, "iteration", iteration, "forced", force)
	s, err := c.cfg.Monitor.Recover(ctx, c.session)
	if err != nil {
		c.emit(events.New(events.EventTypeSandboxRecoveryFailed, runID, iteration, events.SeverityError,
			fmt.Sprintf("Sandbox could not be recreated: %v", err)))
		return false, err
	}
	c.session = s
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordRecovery(sandbox.ActionRecoverSandbox.String())
	}
	c.emit(events.New(events.EventTypeSandboxRecovered, runID, iteration, events.SeverityWarning,
		"Sandbox recreated").With("sandbox_id", s.ID()))
	return true, nil
}

// execute runs code and appends the resulting record to the history. It
// returns the record and, for a successful step, the saved artifact paths.
// When the sandbox could not be reached the code never ran: nothing is
// recorded and the transport error is returned.
func (c *Controller) execute(ctx context.Context, runID string, iteration int, explanation, code string) (types.IterationRecord, []string, error) {
	c.emit(events.New(events.EventTypeExecutionStarted, runID, iteration, events.SeverityInfo,
		"Executing code").With("code", code))

	exec, err := c.session.Run(ctx, code)
	if err != nil {
		c.emit(events.New(events.EventTypeExecutionFailed, runID, iteration, events.SeverityWarning,
			err.Error()))
		return types.IterationRecord{}, nil, err
	}

	rec := types.IterationRecord{Iteration: iteration, Explanation: explanation, Code: code}
	switch {
	case exec.Failed():
		rec.Output = exec.Error.Error()
		rec.ArtifactCount = len(exec.Artifacts)
	default:
		rec.Succeeded = true
		rec.Output = exec.Logs.String()
		rec.ArtifactCount = len(exec.Artifacts)
	}
	rec = c.analyzer.History.Append(rec)

	if !rec.Succeeded {
		c.emit(events.New(events.EventTypeExecutionFailed, runID, iteration, events.SeverityWarning,
			rec.Output).With("index", rec.Index))
		return rec, nil, nil
	}

	c.emit(events.New(events.EventTypeExecutionSucceeded, runID, iteration, events.SeverityInfo,
		rec.Output).With("index", rec.Index).With("artifacts", rec.ArtifactCount))

	var saved []string
	if c.cfg.ArtifactDir != "" && len(exec.Artifacts) > 0 {
		var err error
		saved, err = sandbox.SaveArtifacts(c.cfg.ArtifactDir, exec.Artifacts, time.Now())
		if err != nil {
			c.logger.Warn("failed to save artifacts", "dir", c.cfg.ArtifactDir, "error", err)
		}
		if len(saved) > 0 {
			c.emit(events.New(events.EventTypeArtifactsSaved, runID, iteration, events.SeverityInfo,
				fmt.Sprintf("Saved %d visualization(s)", len(saved))).With("paths", saved))
		}
	}
	return rec, saved, nil
}

// Run performs an adaptive multi-step analysis starting from prompt.
//
// Each iteration slot:
//  1. checks sandbox health, recreating the session when needed
//  2. asks the model for the next step and parses the reply
//  3. executes the code, classifying any failure
//  4. asks the oracle whether to stop
//
// The loop also ends on exhausted failure budgets and at MaxIterations. A
// summary is returned for every run that started, including interrupted
// ones; an interrupted run also returns the context error.
func (c *Controller) Run(ctx context.Context, prompt string, opts RunOptions) (*types.RunSummary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	summary := &types.RunSummary{
		RunID:     uuid.NewString(),
		Prompt:    prompt,
		StartedAt: time.Now(),
	}
	runID := summary.RunID

	ctx, span := tracer.Start(ctx, "iterative.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.min_iterations", opts.MinIterations),
			attribute.Int("run.max_iterations", opts.MaxIterations),
		))
	defer span.End()

	c.logger.Info("analysis run started", "run_id", runID,
		"min_iterations", opts.MinIterations, "max_iterations", opts.MaxIterations)
	c.emit(events.New(events.EventTypeRunStarted, runID, 0, events.SeverityInfo,
		fmt.Sprintf("Starting adaptive analysis (min %d, max %d steps)", opts.MinIterations, opts.MaxIterations)).
		With("prompt", prompt))

	var pacer *rate.Limiter
	if c.cfg.StepDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(c.cfg.StepDelay), 1)
		pacer.Allow()
	}

	var (
		decision      types.CompletionDecision
		runErr        error
		userPrompt    = prompt
		modelFailures int
		execFailures  int
		forceRecover  bool
		reloadPending bool
	)

	interrupted := func(iteration int) {
		decision = types.Stop(types.StopInterrupted, "interrupted")
		runErr = fmt.Errorf("analysis interrupted after %d iterations: %w", iteration, ctx.Err())
	}

	for iteration := 1; iteration <= opts.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			interrupted(iteration - 1)
			break
		}

		summary.Iterations = iteration
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordIterationStart(iteration)
		}
		slot := &IterationMetrics{Iteration: iteration}
		slotStart := time.Now()
		iterCtx, iterSpan := tracer.Start(ctx, "iterative.Iteration",
			trace.WithAttributes(attribute.Int("iteration", iteration)))

		endSlot := func(outcome IterationOutcome) {
			slot.Outcome = outcome
			slot.Duration = time.Since(slotStart)
			slot.Stopped = decision.ShouldStop
			iterSpan.SetAttributes(attribute.String("iteration.outcome", string(outcome)))
			iterSpan.End()
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.RecordIterationEnd(iteration, slot)
			}
		}

		c.emit(events.New(events.EventTypeIterationStarted, runID, iteration, events.SeverityInfo,
			fmt.Sprintf("Step %d", iteration)))

		// Health check
		recovered, err := c.ensureHealthy(iterCtx, runID, iteration, forceRecover)
		if err != nil {
			if ctx.Err() != nil {
				interrupted(iteration)
			} else {
				decision = types.Stop(types.StopHealthFailure,
					fmt.Sprintf("sandbox unhealthy and could not be recreated: %v", err))
				iterSpan.RecordError(err)
			}
			endSlot(OutcomeSandboxFailed)
			break
		}
		forceRecover = false
		if recovered {
			summary.Recoveries++
			// Recover re-uploads the dataset itself
			reloadPending = false
		}
		if reloadPending {
			reloadPending = false
			if err := c.session.Reupload(iterCtx); err != nil {
				c.logger.Warn("failed to reload dataset", "run_id", runID, "error", err)
			} else {
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.RecordRecovery(sandbox.ActionReloadDataset.String())
				}
				c.emit(events.New(events.EventTypeDatasetReloaded, runID, iteration, events.SeverityInfo,
					"Dataset reloaded").With("path", c.session.DatasetPath()))
			}
		}

		// Generate
		system := ContinuationSystemPrompt(c.analyzer.Context.String())
		if iteration == 1 {
			system = InitialSystemPrompt(c.analyzer.Context.String())
		}
		modelStart := time.Now()
		reply, err := c.cfg.Model.Complete(iterCtx, system, userPrompt)
		slot.ModelLatency = time.Since(modelStart)
		if err != nil {
			if ctx.Err() != nil {
				interrupted(iteration)
				endSlot(OutcomeModelFailed)
				break
			}
			modelFailures++
			iterSpan.RecordError(err)
			c.logger.Warn("model call failed", "run_id", runID, "iteration", iteration,
				"consecutive_failures", modelFailures, "error", err)
			c.emit(events.New(events.EventTypeModelFailure, runID, iteration, events.SeverityError,
				fmt.Sprintf("Model call failed: %v", err)).With("consecutive", modelFailures))
			if modelFailures >= c.cfg.ModelFailureBudget {
				decision = types.Stop(types.StopModelFailure,
					fmt.Sprintf("model service failed %d times in a row: %v", modelFailures, err))
				endSlot(OutcomeModelFailed)
				break
			}
			endSlot(OutcomeModelFailed)
			continue
		}
		modelFailures = 0

		// Parse and track
		explanation, code := ai.ParseResponse(reply)
		added := TrackTopics(explanation, c.analyzer.Topics)
		slot.NewTopics = len(added)
		if explanation != "" {
			c.emit(events.New(events.EventTypeExplanation, runID, iteration, events.SeverityInfo, explanation))
		}

		if code == "" {
			c.emit(events.New(events.EventTypeNoCode, runID, iteration, events.SeverityWarning,
				"No code generated"))
			decision = c.cfg.Oracle.Decide(reply, iteration, opts.MinIterations, opts.MaxIterations,
				c.analyzer.Topics, c.analyzer.History.Records())
			c.emitDecision(runID, iteration, decision)
			endSlot(OutcomeNoCode)
			if decision.ShouldStop {
				break
			}
			userPrompt = RetryPrompt
			if err := c.pace(ctx, pacer, runID, iteration, opts); err != nil {
				interrupted(iteration)
				break
			}
			continue
		}

		// Execute
		execStart := time.Now()
		rec, _, execErr := c.execute(iterCtx, runID, iteration, explanation, code)
		slot.ExecLatency = time.Since(execStart)
		output := rec.Output
		if execErr != nil {
			output = execErr.Error()
		} else {
			slot.ArtifactCount = rec.ArtifactCount
			summary.Records = append(summary.Records, rec)
		}

		outcome := OutcomeExecuted
		if execErr != nil || !rec.Succeeded {
			outcome = OutcomeExecFailed
			if ctx.Err() != nil {
				interrupted(iteration)
				endSlot(outcome)
				break
			}
			cls := sandbox.ClassifyError(output)
			c.logger.Warn("step failed", "run_id", runID, "iteration", iteration,
				"recoverable", cls.Recoverable, "action", cls.Action.String())
			if cls.Recoverable {
				execFailures = 0
				switch cls.Action {
				case sandbox.ActionRecoverSandbox:
					forceRecover = true
				case sandbox.ActionReloadDataset:
					reloadPending = true
				case sandbox.ActionAlternativeApproach:
					if c.cfg.Metrics != nil {
						c.cfg.Metrics.RecordRecovery(cls.Action.String())
					}
				}
			} else {
				execFailures++
			}
		} else {
			execFailures = 0
		}

		c.analyzer.Context.Append(fmt.Sprintf("Step %d: %s", iteration,
			orDefault(head(output, ContextStepHead), "No output")))

		if execFailures >= c.cfg.ExecFailureBudget {
			decision = types.Stop(types.StopExecutionFailure,
				fmt.Sprintf("%d consecutive unrecoverable execution errors", execFailures))
			c.emitDecision(runID, iteration, decision)
			endSlot(outcome)
			break
		}

		// Decide
		decision = c.cfg.Oracle.Decide(reply, iteration, opts.MinIterations, opts.MaxIterations,
			c.analyzer.Topics, c.analyzer.History.Records())
		c.emitDecision(runID, iteration, decision)
		endSlot(outcome)
		if decision.ShouldStop {
			break
		}

		userPrompt = NextPrompt(iteration, output, c.analyzer.Context.String(), c.analyzer.Topics)
		if err := c.pace(ctx, pacer, runID, iteration, opts); err != nil {
			interrupted(iteration)
			break
		}
	}

	if !decision.ShouldStop {
		decision = types.Stop(types.StopCeiling, "ceiling reached")
	}

	summary.Stop = decision.Cause
	summary.Reason = decision.Reason
	summary.Topics = c.analyzer.Topics.Sorted()
	summary.Verdict = types.VerdictFor(c.analyzer.Topics)
	summary.Duration = time.Since(summary.StartedAt)

	c.analyzer.Context.Append(fmt.Sprintf("Adaptive analysis completed in %d steps", summary.Iterations))

	span.SetAttributes(
		attribute.String("run.stop", string(summary.Stop)),
		attribute.String("run.verdict", string(summary.Verdict)),
		attribute.Int("run.iterations", summary.Iterations),
		attribute.Int("run.steps", summary.StepsExecuted()),
	)
	if summary.Stop.IsFailure() {
		span.SetStatus(codes.Error, summary.Reason)
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordRunComplete(summary)
	}

	severity := events.SeverityInfo
	if summary.Stop.IsFailure() {
		severity = events.SeverityError
	}
	c.emit(events.New(events.EventTypeRunCompleted, runID, summary.Iterations, severity, summary.Reason).
		With("stop", string(summary.Stop)).
		With("verdict", string(summary.Verdict)))
	c.logger.Info("analysis run finished", "summary", summary.String())

	return summary, runErr
}

func (c *Controller) emitDecision(runID string, iteration int, d types.CompletionDecision) {
	c.emit(events.New(events.EventTypeDecision, runID, iteration, events.SeverityInfo, d.Reason).
		With("stop", d.ShouldStop).
		With("cause", string(d.Cause)))
}

// pace waits for the pacer between iterations. No wait follows the last
// iteration.
func (c *Controller) pace(ctx context.Context, pacer *rate.Limiter, runID string, iteration int, opts RunOptions) error {
	if pacer == nil || iteration >= opts.MaxIterations {
		return nil
	}
	c.emit(events.New(events.EventTypePacing, runID, iteration, events.SeverityInfo,
		fmt.Sprintf("Continuing analysis (step %d/%d)", iteration+1, opts.MaxIterations)))
	return pacer.Wait(ctx)
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Explanation string
	Code        string

	// Record is nil when the reply had no code to run or the sandbox could
	// not be reached.
	Record *types.IterationRecord

	// Classification is set for failed executions.
	Classification *sandbox.Classification

	// Saved lists artifact files written for the step.
	Saved []string

	// Recovered is set when the sandbox had to be recreated first.
	Recovered bool
}

// Step runs one model-directed step for prompt without entering the loop.
// Model failures, an unavailable sandbox and interruptions are returned as
// errors. A failed execution is not an error and is reported through the
// result, as is a sandbox that dropped the request; a sandbox that needs
// recreating is replaced before Step returns.
func (c *Controller) Step(ctx context.Context, prompt string) (*StepResult, error) {
	ctx, span := tracer.Start(ctx, "iterative.Step")
	defer span.End()

	recovered, err := c.ensureHealthy(ctx, "", 0, false)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sandbox unavailable: %w", err)
	}

	reply, err := c.cfg.Model.Complete(ctx, InitialSystemPrompt(c.analyzer.Context.String()), prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		c.emit(events.New(events.EventTypeModelFailure, "", 0, events.SeverityError,
			fmt.Sprintf("Model call failed: %v", err)))
		return nil, err
	}

	explanation, code := ai.ParseResponse(reply)
	TrackTopics(explanation, c.analyzer.Topics)
	if explanation != "" {
		c.emit(events.New(events.EventTypeExplanation, "", 0, events.SeverityInfo, explanation))
	}

	res := &StepResult{Explanation: explanation, Code: code, Recovered: recovered}
	if code == "" {
		c.emit(events.New(events.EventTypeNoCode, "", 0, events.SeverityWarning, "No code generated"))
		return res, nil
	}

	rec, saved, err := c.execute(ctx, "", 0, explanation, code)
	if err != nil && ctx.Err() != nil {
		span.RecordError(err)
		return nil, ctx.Err()
	}
	output := rec.Output
	if err != nil {
		output = err.Error()
	} else {
		res.Record = &rec
		res.Saved = saved
	}
	if err != nil || !rec.Succeeded {
		cls := sandbox.ClassifyError(output)
		res.Classification = &cls
		switch cls.Action {
		case sandbox.ActionReloadDataset:
			if err := c.session.Reupload(ctx); err != nil {
				c.logger.Warn("failed to reload dataset", "error", err)
			}
		case sandbox.ActionRecoverSandbox:
			recovered, err := c.ensureHealthy(ctx, "", 0, true)
			if err != nil {
				span.RecordError(err)
				return res, fmt.Errorf("sandbox unavailable: %w", err)
			}
			res.Recovered = res.Recovered || recovered
		}
	}
	span.SetAttributes(attribute.Bool("step.succeeded", err == nil && rec.Succeeded))
	return res, nil
}

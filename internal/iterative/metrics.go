package iterative

import (
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/analyst/internal/types"
)

// MetricsCollector provides instrumentation for analysis runs.
//
// This interface is optional - leave ControllerConfig.Metrics nil to disable
// metrics collection.
type MetricsCollector interface {
	// RecordIterationStart is called at the beginning of each iteration slot
	RecordIterationStart(iteration int)

	// RecordIterationEnd is called when an iteration slot is done, whatever
	// happened in it
	RecordIterationEnd(iteration int, metrics *IterationMetrics)

	// RecordRecovery is called for every recovery action the controller takes
	RecordRecovery(action string)

	// RecordRunComplete is called once when a run ends
	RecordRunComplete(summary *types.RunSummary)

	// GetAggregateMetrics returns rolled-up statistics across all runs
	GetAggregateMetrics() *AggregateMetrics
}

// IterationOutcome classifies what happened in one iteration slot.
type IterationOutcome string

const (
	OutcomeExecuted      IterationOutcome = "executed"
	OutcomeExecFailed    IterationOutcome = "execution_failed"
	OutcomeNoCode        IterationOutcome = "no_code"
	OutcomeModelFailed   IterationOutcome = "model_failed"
	OutcomeSandboxFailed IterationOutcome = "sandbox_failed"
)

// IterationMetrics captures metrics for a single iteration slot.
type IterationMetrics struct {
	// Iteration is the iteration number (1-based)
	Iteration int

	// Outcome is what the slot ended with
	Outcome IterationOutcome

	// ModelLatency is the time spent waiting for the model
	ModelLatency time.Duration

	// ExecLatency is the time spent running code in the sandbox
	ExecLatency time.Duration

	// Duration is the time spent on the whole slot
	Duration time.Duration

	// ArtifactCount is the number of artifacts the step produced
	ArtifactCount int

	// NewTopics is the number of topics first covered in this slot
	NewTopics int

	// Stopped indicates whether the oracle ended the run in this slot
	Stopped bool
}

// RunMetrics captures metrics for an entire run.
type RunMetrics struct {
	RunID          string
	Stop           types.StopReason
	Verdict        types.Verdict
	Iterations     int
	StepsExecuted  int
	Recoveries     int
	TopicsCovered  int
	TotalDuration  time.Duration
	IterationStats []*IterationMetrics
}

// AggregateMetrics provides rolled-up statistics across runs.
type AggregateMetrics struct {
	// TotalRuns is the number of finished runs
	TotalRuns int

	// ComprehensiveRuns is the count graded comprehensive
	ComprehensiveRuns int

	// TotalIterations is the sum of iteration slots across all runs
	TotalIterations int

	// MeanIterations is the average iterations per run
	MeanIterations float64

	// P50Iterations is the median iterations per run
	P50Iterations int

	// P95Iterations is the 95th percentile iterations per run
	P95Iterations int

	// TotalRecoveries counts recovery actions across all runs
	TotalRecoveries int

	// RecoveriesByAction breaks recoveries down by action
	RecoveriesByAction map[string]int

	// ByStop counts runs per stop reason
	ByStop map[types.StopReason]int

	// ByOutcome counts iteration slots per outcome
	ByOutcome map[IterationOutcome]int

	// TotalDuration is the sum of all run durations
	TotalDuration time.Duration
}

// ComprehensiveRate returns the percentage of runs graded comprehensive.
func (a *AggregateMetrics) ComprehensiveRate() float64 {
	if a.TotalRuns == 0 {
		return 0
	}
	return float64(a.ComprehensiveRuns) / float64(a.TotalRuns) * 100
}

// InMemoryMetricsCollector is a simple in-memory implementation of
// MetricsCollector. It stores all metrics in memory for summaries and
// testing. It is safe for concurrent use.
type InMemoryMetricsCollector struct {
	mu sync.Mutex

	runs              []*RunMetrics
	currentIterations []*IterationMetrics
	recoveries        map[string]int
}

// NewInMemoryMetricsCollector creates a new in-memory metrics collector
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{
		runs:       make([]*RunMetrics, 0),
		recoveries: make(map[string]int),
	}
}

// RecordIterationStart implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIterationStart(iteration int) {
	// Nothing to do - we record metrics at iteration end
	_ = iteration
}

// RecordIterationEnd implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIterationEnd(iteration int, metrics *IterationMetrics) {
	if metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentIterations = append(m.currentIterations, metrics)
}

// RecordRecovery implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordRecovery(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries[action]++
}

// RecordRunComplete implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordRunComplete(summary *types.RunSummary) {
	if summary == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, &RunMetrics{
		RunID:          summary.RunID,
		Stop:           summary.Stop,
		Verdict:        summary.Verdict,
		Iterations:     summary.Iterations,
		StepsExecuted:  summary.StepsExecuted(),
		Recoveries:     summary.Recoveries,
		TopicsCovered:  len(summary.Topics),
		TotalDuration:  summary.Duration,
		IterationStats: m.currentIterations,
	})
	m.currentIterations = nil
}

// GetRuns returns all collected run metrics
func (m *InMemoryMetricsCollector) GetRuns() []*RunMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*RunMetrics, len(m.runs))
	copy(out, m.runs)
	return out
}

// GetAggregateMetrics implements MetricsCollector
func (m *InMemoryMetricsCollector) GetAggregateMetrics() *AggregateMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := &AggregateMetrics{
		RecoveriesByAction: make(map[string]int, len(m.recoveries)),
		ByStop:             make(map[types.StopReason]int),
		ByOutcome:          make(map[IterationOutcome]int),
	}
	for action, n := range m.recoveries {
		agg.RecoveriesByAction[action] = n
		agg.TotalRecoveries += n
	}

	var iterationCounts []int
	for _, run := range m.runs {
		agg.TotalRuns++
		agg.TotalIterations += run.Iterations
		agg.TotalDuration += run.TotalDuration
		agg.ByStop[run.Stop]++
		if run.Verdict == types.VerdictComprehensive {
			agg.ComprehensiveRuns++
		}
		for _, it := range run.IterationStats {
			agg.ByOutcome[it.Outcome]++
		}
		iterationCounts = append(iterationCounts, run.Iterations)
	}

	if agg.TotalRuns > 0 {
		agg.MeanIterations = float64(agg.TotalIterations) / float64(agg.TotalRuns)
		sort.Ints(iterationCounts)
		agg.P50Iterations = percentile(iterationCounts, 50)
		agg.P95Iterations = percentile(iterationCounts, 95)
	}

	return agg
}

// Helper: percentile calculates the Nth percentile from a sorted slice
func percentile(sorted []int, p int) int {
	if len(sorted) == 0 {
		return 0
	}
	index := (len(sorted) * p) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

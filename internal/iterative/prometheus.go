package iterative

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/steveyegge/analyst/internal/types"
)

// PrometheusCollector exports run metrics to Prometheus and keeps in-memory
// aggregates for GetAggregateMetrics.
type PrometheusCollector struct {
	*InMemoryMetricsCollector

	iterations        *prometheus.CounterVec
	iterationDuration *prometheus.HistogramVec
	recoveriesTotal   *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runIterations     prometheus.Histogram
	topicsCovered     prometheus.Histogram
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the analyst metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		InMemoryMetricsCollector: NewInMemoryMetricsCollector(),

		// Labels: outcome (executed, execution_failed, no_code, model_failed, sandbox_failed)
		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Iteration slots consumed, by outcome",
		}, []string{"outcome"}),

		iterationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "loop",
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one iteration slot",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),

		// Labels: action (recover_sandbox, reload_dataset, alternative_approach)
		recoveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "loop",
			Name:      "recoveries_total",
			Help:      "Recovery actions taken, by action",
		}, []string{"action"}),

		// Labels: stop (stop reason), verdict (comprehensive, partial)
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "loop",
			Name:      "runs_total",
			Help:      "Finished runs, by stop reason and verdict",
		}, []string{"stop", "verdict"}),

		runIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "loop",
			Name:      "run_iterations",
			Help:      "Iteration slots consumed per run",
			Buckets:   []float64{1, 3, 5, 8, 10, 15, 20, 25},
		}),

		topicsCovered: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "loop",
			Name:      "run_topics_covered",
			Help:      "Topics covered per run",
			Buckets:   prometheus.LinearBuckets(0, 1, len(types.AllTopics)+1),
		}),
	}
}

// RecordIterationEnd implements MetricsCollector
func (p *PrometheusCollector) RecordIterationEnd(iteration int, metrics *IterationMetrics) {
	p.InMemoryMetricsCollector.RecordIterationEnd(iteration, metrics)
	if metrics == nil {
		return
	}
	outcome := string(metrics.Outcome)
	p.iterations.WithLabelValues(outcome).Inc()
	p.iterationDuration.WithLabelValues(outcome).Observe(metrics.Duration.Seconds())
}

// RecordRecovery implements MetricsCollector
func (p *PrometheusCollector) RecordRecovery(action string) {
	p.InMemoryMetricsCollector.RecordRecovery(action)
	p.recoveriesTotal.WithLabelValues(action).Inc()
}

// RecordRunComplete implements MetricsCollector
func (p *PrometheusCollector) RecordRunComplete(summary *types.RunSummary) {
	p.InMemoryMetricsCollector.RecordRunComplete(summary)
	if summary == nil {
		return
	}
	p.runsTotal.WithLabelValues(string(summary.Stop), string(summary.Verdict)).Inc()
	p.runIterations.Observe(float64(summary.Iterations))
	p.topicsCovered.Observe(float64(len(summary.Topics)))
}

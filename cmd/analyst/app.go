package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/steveyegge/analyst/internal/ai"
	"github.com/steveyegge/analyst/internal/config"
	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/iterative"
	"github.com/steveyegge/analyst/internal/repl"
	"github.com/steveyegge/analyst/internal/sandbox"
	"github.com/steveyegge/analyst/internal/storage/sqlite"
)

// appDeps overrides the external services built from the configuration.
// Tests use it to inject a scripted model and sandbox.
type appDeps struct {
	model    ai.Completer
	provider sandbox.Provider
}

// app is everything one command invocation needs.
type app struct {
	cfg      config.Config
	out      io.Writer
	ctrl     *iterative.Controller
	store    *sqlite.RunStore
	recorder *events.Recorder
	metrics  iterative.MetricsCollector

	closers []func(context.Context) error
}

// newApp wires the model, sandbox, controller, run store and telemetry.
func newApp(ctx context.Context, cfg config.Config, out io.Writer, deps appDeps) (*app, error) {
	a := &app{cfg: cfg, out: out, recorder: &events.Recorder{}}
	logger := slog.Default()

	model := deps.model
	if model == nil {
		retry := ai.DefaultRetryConfig()
		retry.RequestsPerMinute = cfg.RequestsPerMinute
		m, err := ai.NewCompleter(ai.Config{
			Provider:    cfg.Provider,
			APIKey:      cfg.APIKey(),
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Retry:       retry,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		model = m
	}

	prov := deps.provider
	if prov == nil {
		if cfg.SandboxURL == "" {
			return nil, fmt.Errorf("sandbox URL not configured (set ANALYST_SANDBOX_URL or sandbox_url)")
		}
		prov = sandbox.NewRemoteProvider(cfg.SandboxURL, cfg.SandboxAPIKey)
	}
	monitor := sandbox.NewHealthMonitor(prov, logger)
	monitor.StartupTimeout = cfg.SandboxStartupTimeout

	if traceSpans {
		shutdown, err := setupTracing(os.Stderr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		a.metrics = iterative.NewPrometheusCollector(reg)
		srv, err := startMetrics(metricsAddr, reg)
		if err != nil {
			a.Close()
			return nil, err
		}
		fmt.Fprintf(out, "Serving metrics on http://%s/metrics\n", srv.Addr())
		a.closers = append(a.closers, srv.Shutdown)
	} else {
		a.metrics = iterative.NewInMemoryMetricsCollector()
	}

	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	analyzer := iterative.NewAnalyzer()
	analyzer.Context.Cap = cfg.ContextCap
	analyzer.Context.Keep = cfg.ContextKeep

	ctrl, err := iterative.NewController(iterative.ControllerConfig{
		Model:       model,
		Monitor:     monitor,
		Observer:    events.Multi{a.recorder, repl.NewConsole(out)},
		Metrics:     a.metrics,
		Logger:      logger,
		ArtifactDir: cfg.OutputDir,
		StepDelay:   cfg.StepDelay,
	}, nil, analyzer)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ctrl = ctrl
	a.closers = append(a.closers, ctrl.Close)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("shutdown failed", "error", err)
		}
	}
	a.closers = nil
}

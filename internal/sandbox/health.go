package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultStartupTimeout bounds sandbox creation.
const DefaultStartupTimeout = 60 * time.Second

// HealthCheckCode is the trivial snippet used to probe a session.
const HealthCheckCode = "print('health_check')"

// HealthMonitor probes sessions and replaces dead ones.
type HealthMonitor struct {
	Provider       Provider
	StartupTimeout time.Duration
	Logger         *slog.Logger
}

// NewHealthMonitor creates a monitor with the default startup timeout.
func NewHealthMonitor(p Provider, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{Provider: p, StartupTimeout: DefaultStartupTimeout, Logger: logger}
}

func (m *HealthMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// Open creates a fresh session.
func (m *HealthMonitor) Open(ctx context.Context) (*Session, error) {
	timeout := m.StartupTimeout
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}
	exec, err := m.Provider.Create(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	m.logger().Debug("sandbox created", "sandbox_id", exec.ID())
	return NewSession(exec), nil
}

// Probe reports whether s can still run code.
//
// A probe that raises inside the sandbox is unhealthy. A transport error is
// unhealthy only when it says the sandbox is gone ("not found") or stuck
// ("timeout"); other transport errors are treated as transient. A closed
// session is unhealthy.
func (m *HealthMonitor) Probe(ctx context.Context, s *Session) bool {
	if s == nil {
		return false
	}
	exec, err := s.Run(ctx, HealthCheckCode)
	if errors.Is(err, ErrNoSession) {
		return false
	}
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "timeout") {
			m.logger().Warn("sandbox health probe failed", "sandbox_id", s.ID(), "error", err)
			return false
		}
		m.logger().Debug("sandbox health probe error treated as transient", "sandbox_id", s.ID(), "error", err)
		return true
	}
	if exec.Failed() {
		m.logger().Warn("sandbox health probe raised", "sandbox_id", s.ID(), "error", exec.Error)
		return false
	}
	return true
}

// Recover discards old and opens a replacement. If old had a dataset it is
// uploaded again; a failed re-upload is logged and does not fail recovery.
func (m *HealthMonitor) Recover(ctx context.Context, old *Session) (*Session, error) {
	if old != nil {
		// Best-effort: the old sandbox is usually already dead
		if err := old.Close(ctx); err != nil {
			m.logger().Debug("failed to close old sandbox", "sandbox_id", old.ID(), "error", err)
		}
	}

	s, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}

	if path := old.DatasetPath(); path != "" {
		if err := s.LoadDataset(ctx, path); err != nil {
			m.logger().Warn("failed to re-upload dataset after sandbox recovery", "path", path, "error", err)
			s.datasetPath = path
		}
	}
	return s, nil
}

package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            2,
		InitialBackoff:        time.Millisecond,
		MaxBackoff:            5 * time.Millisecond,
		BackoffMultiplier:     2.0,
		Timeout:               time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           time.Hour,
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		shouldRetry bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"overloaded", errors.New("529 overloaded_error"), true},
		{"server error", errors.New("500 internal server error"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"auth error", errors.New("401 unauthorized"), false},
		{"invalid request", errors.New("400 bad request"), false},
		{"unknown error", errors.New("mysterious error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, isRetriableError(tt.err))
		})
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(5, 2, 30*time.Second)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	state, failures, _ := cb.GetMetrics()
	assert.Equal(t, CircuitClosed, state, "Circuit should still be closed")
	assert.Equal(t, 4, failures)

	cb.RecordFailure()
	state, failures, _ = cb.GetMetrics()
	assert.Equal(t, CircuitOpen, state, "Circuit should be open after 5 failures")
	assert.Equal(t, 5, failures)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 1, time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, time.Millisecond)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState(), "one success is below the threshold")
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, time.Millisecond)
	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(42).String())
}

func TestCallerRetriesTransientErrors(t *testing.T) {
	c := newCaller(fastRetryConfig(), nil)

	calls := 0
	err := c.do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, CircuitClosed, c.breaker.GetState())
}

func TestCallerGivesUpAfterMaxRetries(t *testing.T) {
	c := newCaller(fastRetryConfig(), nil)

	calls := 0
	err := c.do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("502 bad gateway")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestCallerDoesNotRetryClientErrors(t *testing.T) {
	c := newCaller(fastRetryConfig(), nil)

	calls := 0
	err := c.do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	_, failures, _ := c.breaker.GetMetrics()
	assert.Equal(t, 0, failures, "non-retriable errors must not count against the breaker")
}

func TestCallerFailsFastWhenCircuitOpen(t *testing.T) {
	c := newCaller(fastRetryConfig(), nil)
	for i := 0; i < 5; i++ {
		c.breaker.RecordFailure()
	}

	called := false
	err := c.do(context.Background(), "test", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.ErrorIs(t, c.healthCheck(), ErrCircuitOpen)
}

func TestCallerStopsOnCanceledContext(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	c := newCaller(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := c.do(ctx, "test", func(ctx context.Context) error {
		cancel()
		return errors.New("503 service unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

package iterative

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/sandbox"
	"github.com/steveyegge/analyst/internal/sandbox/sandboxtest"
)

type modelCall struct {
	system string
	user   string
}

type modelReply struct {
	text string
	err  error
}

// scriptedModel answers from replies in order, then with stepReply(n).
type scriptedModel struct {
	mu      sync.Mutex
	replies []modelReply
	calls   []modelCall
	onCall  func(n int)
}

func (m *scriptedModel) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, modelCall{system: system, user: user})
	n := len(m.calls)
	var r *modelReply
	if len(m.replies) > 0 {
		r = &m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if m.onCall != nil {
		m.onCall(n)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r == nil {
		return stepReply(n, "Step number"), nil
	}
	return r.text, r.err
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// stepReply is a labeled reply whose code differs per n.
func stepReply(n int, explanation string) string {
	return fmt.Sprintf("EXPLANATION: %s %d\n\nCODE:\n```python\nprint(%d)\n```\n", explanation, n, n)
}

func reply(text string) modelReply { return modelReply{text: text} }

func failure(err error) modelReply { return modelReply{err: err} }

type harness struct {
	ctrl     *Controller
	model    *scriptedModel
	exec     *sandboxtest.Executor
	provider *sandboxtest.Provider
	events   *events.Recorder
	metrics  *InMemoryMetricsCollector
}

func newHarness(t *testing.T, model *scriptedModel, exec *sandboxtest.Executor, tweak ...func(*ControllerConfig)) *harness {
	t.Helper()
	if exec == nil {
		exec = sandboxtest.NewExecutor()
	}
	h := &harness{
		model:    model,
		exec:     exec,
		provider: sandboxtest.NewProvider(),
		events:   &events.Recorder{},
		metrics:  NewInMemoryMetricsCollector(),
	}
	cfg := ControllerConfig{
		Model:    model,
		Monitor:  sandbox.NewHealthMonitor(h.provider, nil),
		Observer: h.events,
		Metrics:  h.metrics,
	}
	for _, f := range tweak {
		f(&cfg)
	}
	ctrl, err := NewController(cfg, sandbox.NewSession(exec), NewAnalyzer())
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

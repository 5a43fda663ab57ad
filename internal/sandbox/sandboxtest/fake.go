// Package sandboxtest provides an in-memory sandbox for tests.
package sandboxtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/analyst/internal/sandbox"
)

// Result is a scripted response to one Run call.
type Result struct {
	Execution *sandbox.Execution
	Err       error
}

// OK builds a successful result printing stdout.
func OK(stdout ...string) Result {
	return Result{Execution: &sandbox.Execution{Logs: sandbox.Logs{Stdout: stdout}}}
}

// Raise builds a result where the code raised name: value.
func Raise(name, value string) Result {
	return Result{Execution: &sandbox.Execution{Error: &sandbox.ExecutionError{Name: name, Value: value}}}
}

// Fail builds a transport failure.
func Fail(msg string) Result {
	return Result{Err: errors.New(msg)}
}

// Executor is a scripted executor. Health probes are answered from
// ProbeResults when set, everything else from Results; once a script runs
// out, the executor answers with an empty successful execution.
type Executor struct {
	mu sync.Mutex

	id           string
	Results      []Result
	ProbeResults []Result
	UploadErr    error
	CloseErr     error

	Code    []string          // every non-probe snippet run, in order
	Probes  int               // number of health probes
	Uploads map[string][]byte // name -> last content
	Closed  bool
}

// NewExecutor creates an executor with a random id.
func NewExecutor(results ...Result) *Executor {
	return &Executor{id: uuid.NewString(), Results: results, Uploads: make(map[string][]byte)}
}

func (e *Executor) ID() string { return e.id }

func (e *Executor) Run(ctx context.Context, code string) (*sandbox.Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var script *[]Result
	if code == sandbox.HealthCheckCode {
		e.Probes++
		script = &e.ProbeResults
	} else {
		e.Code = append(e.Code, code)
		script = &e.Results
	}

	if len(*script) == 0 {
		return &sandbox.Execution{}, nil
	}
	r := (*script)[0]
	*script = (*script)[1:]
	return r.Execution, r.Err
}

func (e *Executor) Upload(ctx context.Context, name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.UploadErr != nil {
		return e.UploadErr
	}
	if e.Uploads == nil {
		e.Uploads = make(map[string][]byte)
	}
	e.Uploads[name] = append([]byte(nil), data...)
	return nil
}

func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return e.CloseErr
}

// Provider hands out executors in order. When Executors runs out it
// creates empty ones.
type Provider struct {
	mu sync.Mutex

	Executors []*Executor
	CreateErr error

	Created  []*Executor
	Timeouts []time.Duration
}

// NewProvider creates a provider that returns execs in order.
func NewProvider(execs ...*Executor) *Provider {
	return &Provider{Executors: execs}
}

func (p *Provider) Create(ctx context.Context, timeout time.Duration) (sandbox.Executor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Timeouts = append(p.Timeouts, timeout)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	var e *Executor
	if len(p.Executors) > 0 {
		e = p.Executors[0]
		p.Executors = p.Executors[1:]
	} else {
		e = NewExecutor()
	}
	p.Created = append(p.Created, e)
	return e, nil
}

// Session opens a session on a fresh scripted executor.
func Session(results ...Result) (*sandbox.Session, *Executor) {
	e := NewExecutor(results...)
	return sandbox.NewSession(e), e
}

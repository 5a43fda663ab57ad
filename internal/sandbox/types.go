package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logs is the captured output of one execution.
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// String joins stdout then stderr into a single block of text.
func (l Logs) String() string {
	var sb strings.Builder
	for _, line := range l.Stdout {
		sb.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			sb.WriteByte('\n')
		}
	}
	for _, line := range l.Stderr {
		sb.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Empty reports whether nothing was printed.
func (l Logs) Empty() bool {
	return len(l.Stdout) == 0 && len(l.Stderr) == 0
}

// ExecutionError is an error raised by the executed code itself, as opposed
// to a transport failure talking to the sandbox.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback,omitempty"`
}

func (e *ExecutionError) Error() string {
	if e.Value == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Value)
}

// Artifact formats the sandbox reports.
const (
	FormatPNG   = "png"
	FormatJPEG  = "jpeg"
	FormatOther = "other" // text, html or data results; counted but not saved
)

// Artifact is a rich result such as a rendered chart. Data is base64.
type Artifact struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

// Execution is the outcome of running one snippet.
type Execution struct {
	Logs      Logs
	Error     *ExecutionError
	Artifacts []Artifact
}

// Failed reports whether the code raised.
func (e *Execution) Failed() bool {
	return e != nil && e.Error != nil
}

// Executor is a live, stateful code interpreter. Variables defined by one
// Run are visible to the next.
type Executor interface {
	// ID identifies the remote sandbox instance
	ID() string

	// Run executes code. A non-nil error means the sandbox could not be
	// reached; errors raised by the code are reported in Execution.Error.
	Run(ctx context.Context, code string) (*Execution, error)

	// Upload writes data to the sandbox working directory under name.
	Upload(ctx context.Context, name string, data []byte) error

	// Close releases the sandbox.
	Close(ctx context.Context) error
}

// Provider creates executors.
type Provider interface {
	Create(ctx context.Context, timeout time.Duration) (Executor, error)
}

// Package events describes what happens during an analysis run. The
// controller emits events; the console, the REPL and the run store consume
// them.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event that occurred during a run.
type EventType string

const (
	// EventTypeRunStarted indicates a multi-step run began
	EventTypeRunStarted EventType = "run_started"
	// EventTypeIterationStarted indicates a new iteration slot began
	EventTypeIterationStarted EventType = "iteration_started"
	// EventTypeSandboxRecovered indicates the sandbox was recreated
	EventTypeSandboxRecovered EventType = "sandbox_recovered"
	// EventTypeSandboxRecoveryFailed indicates the sandbox could not be recreated
	EventTypeSandboxRecoveryFailed EventType = "sandbox_recovery_failed"
	// EventTypeModelFailure indicates a model call failed
	EventTypeModelFailure EventType = "model_failure"
	// EventTypeExplanation indicates the model explained its next step
	EventTypeExplanation EventType = "explanation"
	// EventTypeNoCode indicates the model reply had no runnable code
	EventTypeNoCode EventType = "no_code"
	// EventTypeExecutionStarted indicates code was sent to the sandbox
	EventTypeExecutionStarted EventType = "execution_started"
	// EventTypeExecutionSucceeded indicates code ran without raising
	EventTypeExecutionSucceeded EventType = "execution_succeeded"
	// EventTypeExecutionFailed indicates code raised or could not be run
	EventTypeExecutionFailed EventType = "execution_failed"
	// EventTypeArtifactsSaved indicates charts were written to disk
	EventTypeArtifactsSaved EventType = "artifacts_saved"
	// EventTypeDatasetReloaded indicates the dataset was uploaded again
	EventTypeDatasetReloaded EventType = "dataset_reloaded"
	// EventTypeDecision indicates the stop/continue verdict for an iteration
	EventTypeDecision EventType = "decision"
	// EventTypePacing indicates the controller is waiting before the next step
	EventTypePacing EventType = "pacing"
	// EventTypeRunCompleted indicates a run ended, for any reason
	EventTypeRunCompleted EventType = "run_completed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
)

// Event is one thing that happened during a run.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// RunID is the run the event belongs to; empty for single steps
	RunID string `json:"run_id,omitempty"`
	// Iteration is the iteration slot, 0 outside the loop
	Iteration int `json:"iteration"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// New creates an event stamped with a fresh ID and the current time.
func New(eventType EventType, runID string, iteration int, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Iteration: iteration,
		Severity:  severity,
		Message:   message,
	}
}

// With sets a data field and returns e for chaining.
func (e *Event) With(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns the data field key as a string, or "".
func (e *Event) String(key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}

// Strings returns the data field key as a string slice, or nil.
func (e *Event) Strings(key string) []string {
	if s, ok := e.Data[key].([]string); ok {
		return s
	}
	return nil
}

// Observer receives events as they happen. Observe is called on the
// controller goroutine and should not block.
type Observer interface {
	Observe(e *Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e *Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e *Event) { f(e) }

// Multi fans an event out to several observers. Nil entries are skipped.
type Multi []Observer

// Observe forwards e to every observer.
func (m Multi) Observe(e *Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// Recorder keeps every event it observes.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Observe stores e.
func (r *Recorder) Observe(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []*Event {
	var out []*Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

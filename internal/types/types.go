package types

import (
	"fmt"
	"time"
)

// IterationRecord is one executed analysis step. Records are appended to a
// History exactly once, after the step's code ran, and never modified after.
type IterationRecord struct {
	Index         int       `json:"index"`                 // 1-based position in the history
	Iteration     int       `json:"iteration"`             // iteration slot that produced the step
	Explanation   string    `json:"explanation,omitempty"` // model explanation for the step
	Code          string    `json:"code"`
	Output        string    `json:"output"` // captured logs, or the error text when Succeeded is false
	Succeeded     bool      `json:"success"`
	ArtifactCount int       `json:"results_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// History is the ordered, append-only list of executed steps for an analyzer
// session. Indexes are assigned by Append and are contiguous.
type History struct {
	records []IterationRecord
}

// NewHistory creates a history seeded with previously recorded steps
// (e.g. from a loaded session file). Seed indexes are renumbered so the
// contiguity invariant holds.
func NewHistory(seed ...IterationRecord) *History {
	h := &History{}
	for _, rec := range seed {
		h.Append(rec)
	}
	return h
}

// Append assigns the next index to rec, stores it and returns the stored copy.
func (h *History) Append(rec IterationRecord) IterationRecord {
	rec.Index = len(h.records) + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	h.records = append(h.records, rec)
	return rec
}

// Records returns a copy of all records, oldest first.
func (h *History) Records() []IterationRecord {
	out := make([]IterationRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Since returns a copy of the records with Index > index.
func (h *History) Since(index int) []IterationRecord {
	if index < 0 {
		index = 0
	}
	if index >= len(h.records) {
		return nil
	}
	out := make([]IterationRecord, len(h.records)-index)
	copy(out, h.records[index:])
	return out
}

// Len returns the number of records.
func (h *History) Len() int {
	return len(h.records)
}

// Reset drops every record. Only an explicit session clear calls this.
func (h *History) Reset() {
	h.records = nil
}

// StopReason identifies why an analysis run ended.
type StopReason string

const (
	// StopNone means no stop condition has been met.
	StopNone StopReason = ""
	// StopExplicitCompletion means the model said the analysis is complete.
	StopExplicitCompletion StopReason = "explicit_completion"
	// StopTopicCoverage means enough core topics were covered.
	StopTopicCoverage StopReason = "topic_coverage"
	// StopRepetitive means recent steps were too similar to each other.
	StopRepetitive StopReason = "repetitive"
	// StopCeiling means the hard iteration ceiling was reached.
	StopCeiling StopReason = "ceiling_reached"
	// StopHealthFailure means the sandbox was unhealthy and could not be recreated.
	StopHealthFailure StopReason = "sandbox_unrecoverable"
	// StopModelFailure means the model service failed too many times in a row.
	StopModelFailure StopReason = "model_failure"
	// StopExecutionFailure means too many consecutive unrecoverable execution errors.
	StopExecutionFailure StopReason = "execution_failure"
	// StopInterrupted means the run was canceled from outside.
	StopInterrupted StopReason = "interrupted"
)

// IsValid checks if the stop reason value is valid
func (r StopReason) IsValid() bool {
	switch r {
	case StopNone, StopExplicitCompletion, StopTopicCoverage, StopRepetitive, StopCeiling,
		StopHealthFailure, StopModelFailure, StopExecutionFailure, StopInterrupted:
		return true
	}
	return false
}

// IsFailure reports whether the run ended because something broke rather
// than because the analysis reached a natural end.
func (r StopReason) IsFailure() bool {
	switch r {
	case StopHealthFailure, StopModelFailure, StopExecutionFailure, StopInterrupted:
		return true
	}
	return false
}

// CompletionDecision is the termination verdict for one iteration.
type CompletionDecision struct {
	ShouldStop bool
	Reason     string
	Cause      StopReason // StopNone when ShouldStop is false
}

// Continue builds a decision to keep iterating.
func Continue(reason string) CompletionDecision {
	return CompletionDecision{Reason: reason}
}

// Stop builds a decision to end the run.
func Stop(cause StopReason, reason string) CompletionDecision {
	return CompletionDecision{ShouldStop: true, Reason: reason, Cause: cause}
}

// Verdict is the qualitative grade of a finished run.
type Verdict string

const (
	VerdictComprehensive Verdict = "comprehensive"
	VerdictPartial       Verdict = "partial"
)

// ComprehensiveCoreTopics is how many core topics a run must cover to be
// graded comprehensive. The coverage stop rule uses the same threshold.
const ComprehensiveCoreTopics = 4

// VerdictFor grades a topic set.
func VerdictFor(covered TopicSet) Verdict {
	if covered.CountOf(CoreTopics) >= ComprehensiveCoreTopics {
		return VerdictComprehensive
	}
	return VerdictPartial
}

// RunSummary describes a finished analysis run.
type RunSummary struct {
	RunID      string
	Prompt     string
	StartedAt  time.Time
	Duration   time.Duration
	Iterations int // iteration slots consumed, including retries and failed model calls
	Stop       StopReason
	Reason     string
	Topics     []Topic // sorted
	Recoveries int
	Verdict    Verdict

	// Records holds the steps executed during this run, in order.
	Records []IterationRecord
}

// StepsExecuted returns the number of steps that ran code.
func (s *RunSummary) StepsExecuted() int {
	return len(s.Records)
}

// StepsWithArtifacts returns the number of executed steps that produced at
// least one artifact.
func (s *RunSummary) StepsWithArtifacts() int {
	n := 0
	for _, rec := range s.Records {
		if rec.ArtifactCount > 0 {
			n++
		}
	}
	return n
}

// String renders a one-line description, used in logs.
func (s *RunSummary) String() string {
	return fmt.Sprintf("run %s: %d iterations, %d steps, stop=%s, verdict=%s, recoveries=%d",
		s.RunID, s.Iterations, len(s.Records), s.Stop, s.Verdict, s.Recoveries)
}

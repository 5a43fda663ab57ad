package iterative

import (
	"fmt"
	"strings"

	"github.com/steveyegge/analyst/internal/types"
)

// Oracle thresholds.
const (
	// CoverageMinIteration is the first iteration at which topic coverage
	// may end a run.
	CoverageMinIteration = 5

	// RepetitionAfterIteration is the iteration after which repetition may
	// end a run.
	RepetitionAfterIteration = 8
)

// Oracle decides after each iteration whether the run should end. The
// iteration ceiling is not its concern: the controller enforces it.
type Oracle struct {
	Detector RepetitionDetector
}

// NewOracle creates an oracle with the default repetition thresholds.
func NewOracle() *Oracle {
	return &Oracle{Detector: DefaultRepetitionDetector()}
}

// Decide applies the stop rules in order:
//
//  1. a completion phrase in latest stops the run
//  2. before minIterations the run continues
//  3. enough core topics at or after CoverageMinIteration stops the run
//  4. repetition after RepetitionAfterIteration stops the run
//  5. otherwise the run continues
//
// The fourth argument is the iteration ceiling. It is accepted for symmetry
// with the run options and is not consulted; the controller enforces it.
func (o *Oracle) Decide(latest string, iteration, minIterations, _ int,
	covered types.TopicSet, history []types.IterationRecord) types.CompletionDecision {
	lower := strings.ToLower(latest)
	for _, phrase := range types.CompletionPhrases {
		if strings.Contains(lower, phrase) {
			return types.Stop(types.StopExplicitCompletion,
				fmt.Sprintf("model indicated completion with signal: %q", phrase))
		}
	}

	if iteration < minIterations {
		return types.Continue("minimum iteration phase")
	}

	if core := covered.CountOf(types.CoreTopics); core >= types.ComprehensiveCoreTopics && iteration >= CoverageMinIteration {
		return types.Stop(types.StopTopicCoverage,
			fmt.Sprintf("comprehensive coverage achieved: %d core topics covered", core))
	}

	if iteration > RepetitionAfterIteration && o.Detector.IsRepetitive(history) {
		return types.Stop(types.StopRepetitive, "analysis becoming repetitive")
	}

	return types.Continue("should continue")
}

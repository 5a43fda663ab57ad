package iterative

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/steveyegge/analyst/internal/types"
)

func coreTopics(n int) types.TopicSet {
	return types.NewTopicSet(types.CoreTopics[:n]...)
}

func TestOracleDecide(t *testing.T) {
	repetitive := repeatedRecords(4)

	tests := []struct {
		name      string
		latest    string
		iteration int
		min       int
		covered   types.TopicSet
		history   []types.IterationRecord
		wantStop  bool
		wantCause types.StopReason
		wantIn    string
	}{
		{
			name:      "completion phrase before minimum",
			latest:    "I believe the Analysis Is Complete now.",
			iteration: 2, min: 3,
			covered:   types.NewTopicSet(),
			wantStop:  true,
			wantCause: types.StopExplicitCompletion,
			wantIn:    "analysis is complete",
		},
		{
			name:      "minimum phase",
			latest:    "EXPLANATION: look at correlations",
			iteration: 2, min: 3,
			covered:   coreTopics(5),
			wantStop:  false,
			wantIn:    "minimum iteration phase",
		},
		{
			name:      "coverage too early",
			latest:    "next",
			iteration: 4, min: 3,
			covered:   coreTopics(5),
			wantStop:  false,
			wantIn:    "should continue",
		},
		{
			name:      "coverage reached",
			latest:    "next",
			iteration: 5, min: 3,
			covered:   coreTopics(4),
			wantStop:  true,
			wantCause: types.StopTopicCoverage,
			wantIn:    "4 core topics",
		},
		{
			name:      "non-core topics do not count",
			latest:    "next",
			iteration: 6, min: 3,
			covered: types.NewTopicSet(types.TopicDataExploration, types.TopicCorrelations, types.TopicDistributions,
				types.TopicStatistics, types.TopicFeatureAnalysis),
			wantStop: false,
			wantIn:   "should continue",
		},
		{
			name:      "repetition at iteration 8 is ignored",
			latest:    "next",
			iteration: 8, min: 3,
			covered:   types.NewTopicSet(),
			history:   repetitive,
			wantStop:  false,
		},
		{
			name:      "repetition after iteration 8",
			latest:    "next",
			iteration: 9, min: 3,
			covered:   types.NewTopicSet(),
			history:   repetitive,
			wantStop:  true,
			wantCause: types.StopRepetitive,
			wantIn:    "repetitive",
		},
	}

	oracle := NewOracle()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := oracle.Decide(tt.latest, tt.iteration, tt.min, 15, tt.covered, tt.history)
			if d.ShouldStop != tt.wantStop {
				t.Fatalf("ShouldStop = %v, want %v (reason %q)", d.ShouldStop, tt.wantStop, d.Reason)
			}
			if d.Cause != tt.wantCause {
				t.Errorf("Cause = %q, want %q", d.Cause, tt.wantCause)
			}
			if tt.wantIn != "" && !strings.Contains(d.Reason, tt.wantIn) {
				t.Errorf("Reason %q does not contain %q", d.Reason, tt.wantIn)
			}
		})
	}
}

// Before the minimum, only a completion phrase can stop a run.
func TestOracle_MinimumPhaseProperty(t *testing.T) {
	oracle := NewOracle()
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.IntRange(2, 20).Draw(t, "min")
		iteration := rapid.IntRange(1, min-1).Draw(t, "iteration")
		n := rapid.IntRange(0, len(types.CoreTopics)).Draw(t, "topics")
		latest := rapid.StringMatching(`[a-z ]{0,40}`).
			Filter(func(s string) bool { return !containsCompletionPhrase(s) }).
			Draw(t, "latest")

		d := oracle.Decide(latest, iteration, min, 25, coreTopics(n), repeatedRecords(5))
		if d.ShouldStop {
			t.Fatalf("stopped at iteration %d < min %d: %s", iteration, min, d.Reason)
		}
	})
}

// A completion phrase anywhere in the reply always stops the run.
func TestOracle_CompletionPhraseProperty(t *testing.T) {
	oracle := NewOracle()
	rapid.Check(t, func(t *rapid.T) {
		phrase := rapid.SampledFrom(types.CompletionPhrases).Draw(t, "phrase")
		prefix := rapid.StringMatching(`[a-zA-Z ]{0,20}`).Draw(t, "prefix")
		iteration := rapid.IntRange(1, 30).Draw(t, "iteration")

		d := oracle.Decide(prefix+" "+strings.ToUpper(phrase), iteration, 50, 60, types.NewTopicSet(), nil)
		if !d.ShouldStop || d.Cause != types.StopExplicitCompletion {
			t.Fatalf("expected explicit completion, got %+v", d)
		}
	})
}

func containsCompletionPhrase(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range types.CompletionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// repeatedRecords builds n records whose code shares well over ten tokens.
func repeatedRecords(n int) []types.IterationRecord {
	code := "import pandas as pd df = pd.read_csv('data.csv') print(df.describe()) print(df.head()) print(df.shape) print(df.columns)"
	recs := make([]types.IterationRecord, n)
	for i := range recs {
		recs[i] = types.IterationRecord{Index: i + 1, Code: fmt.Sprintf("%s # step %d", code, i+1), Succeeded: true}
	}
	return recs
}

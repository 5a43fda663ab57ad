package iterative

import (
	"github.com/steveyegge/analyst/internal/types"
)

// Analyzer is the per-session analysis state shared by runs and single
// steps. Topics and history accumulate across runs until Clear.
type Analyzer struct {
	Context *AnalysisContext
	Topics  types.TopicSet
	History *types.History
}

// NewAnalyzer creates empty session state.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		Context: NewAnalysisContext(),
		Topics:  types.NewTopicSet(),
		History: types.NewHistory(),
	}
}

// Restore replaces the state with a previously saved session.
func (a *Analyzer) Restore(context string, records []types.IterationRecord) {
	a.Context.Set(context)
	a.History = types.NewHistory(records...)
	a.Topics = types.NewTopicSet()
	for _, rec := range records {
		TrackTopics(rec.Explanation, a.Topics)
	}
}

// Clear forgets the context, topics and history.
func (a *Analyzer) Clear() {
	a.Context.Reset()
	a.Topics = types.NewTopicSet()
	a.History.Reset()
}

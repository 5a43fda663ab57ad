package iterative

import (
	"strings"

	"github.com/steveyegge/analyst/internal/types"
)

// TrackTopics adds to covered every topic whose keywords occur in
// explanation. It returns the topics that were newly added.
func TrackTopics(explanation string, covered types.TopicSet) []types.Topic {
	lower := strings.ToLower(explanation)
	var added []types.Topic
	for _, rule := range types.TopicKeywords {
		if covered.Has(rule.Topic) || !rule.Matches(lower) {
			continue
		}
		covered.Add(rule.Topic)
		added = append(added, rule.Topic)
	}
	return added
}

// IterationKeywords mark a free-form request as wanting a multi-step run.
var IterationKeywords = []string{"complex", "comprehensive", "complete", "full", "deep", "thorough", "detailed"}

// WantsIteration reports whether input asks for an iterative analysis.
func WantsIteration(input string) bool {
	lower := strings.ToLower(input)
	for _, kw := range IterationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

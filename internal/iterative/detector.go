package iterative

import (
	"strings"

	"github.com/steveyegge/analyst/internal/types"
)

// RepetitionDetector flags a run whose recent steps keep doing the same
// thing. Similarity is the size of the intersection of the lower-cased
// whitespace token sets of two records' code.
type RepetitionDetector struct {
	MinHistory   int // records needed before detection kicks in
	Window       int // most recent records compared
	SharedTokens int // a pair sharing more than this many tokens is similar
	SimilarPairs int // a record similar to this many later records is repetitive
}

// DefaultRepetitionDetector returns the standard thresholds.
func DefaultRepetitionDetector() RepetitionDetector {
	return RepetitionDetector{MinHistory: 4, Window: 3, SharedTokens: 10, SimilarPairs: 2}
}

// IsRepetitive reports whether some record in the window is similar to at
// least SimilarPairs of the records after it.
func (d RepetitionDetector) IsRepetitive(history []types.IterationRecord) bool {
	if len(history) < d.MinHistory || d.Window <= 0 {
		return false
	}

	window := history
	if len(window) > d.Window {
		window = window[len(window)-d.Window:]
	}

	tokens := make([]map[string]struct{}, len(window))
	for i, rec := range window {
		tokens[i] = tokenSet(rec.Code)
	}

	counts := make([]int, len(window))
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			if sharedCount(tokens[i], tokens[j]) > d.SharedTokens {
				counts[i]++
			}
		}
	}

	for _, c := range counts {
		if c >= d.SimilarPairs {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func sharedCount(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

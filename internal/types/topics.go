package types

import (
	"sort"
	"strings"
)

// Topic is an analysis category inferred from model explanations.
type Topic string

const (
	TopicDataExploration Topic = "data_exploration"
	TopicCorrelations    Topic = "correlations"
	TopicDistributions   Topic = "distributions"
	TopicVisualization   Topic = "visualization"
	TopicPatterns        Topic = "patterns"
	TopicStatistics      Topic = "statistics"
	TopicTargetAnalysis  Topic = "target_analysis"
	TopicFeatureAnalysis Topic = "feature_analysis"
)

// IsValid checks if the topic is part of the vocabulary
func (t Topic) IsValid() bool {
	for _, known := range AllTopics {
		if t == known {
			return true
		}
	}
	return false
}

// The topic tables below are the single configuration for coverage: the
// stop rule and the run verdict read CoreTopics, the next-step prompt
// reports what is left of AllTopics.
var (
	// CoreTopics are the topics counted by the coverage stop rule.
	CoreTopics = []Topic{
		TopicDataExploration,
		TopicCorrelations,
		TopicDistributions,
		TopicVisualization,
		TopicPatterns,
	}

	// AllTopics is the full vocabulary, in prompt priority order.
	AllTopics = []Topic{
		TopicDataExploration,
		TopicCorrelations,
		TopicDistributions,
		TopicVisualization,
		TopicPatterns,
		TopicStatistics,
		TopicTargetAnalysis,
		TopicFeatureAnalysis,
	}

	// TopicKeywords maps each topic to lower-case substrings that mark it.
	TopicKeywords = []TopicRule{
		{TopicDataExploration, []string{"shape", "structure", "overview", "basic", "exploration"}},
		{TopicCorrelations, []string{"correlation", "relationship", "association"}},
		{TopicDistributions, []string{"distribution", "histogram", "spread", "density"}},
		{TopicVisualization, []string{"plot", "chart", "graph", "visualiz"}},
		{TopicPatterns, []string{"pattern", "trend", "outlier", "anomal"}},
		{TopicStatistics, []string{"statistical", "summary", "mean", "median", "std"}},
		{TopicTargetAnalysis, []string{"target", "prediction", "classification"}},
		{TopicFeatureAnalysis, []string{"feature", "variable", "column"}},
	}

	// CompletionPhrases are lower-case substrings that count as the model
	// declaring the analysis finished.
	CompletionPhrases = []string{
		"analysis is complete",
		"comprehensive analysis",
		"analysis complete",
		"analysis_complete",
		"sufficient insights",
		"thorough analysis",
		"complete understanding",
		"analysis finished",
		"all aspects covered",
		"comprehensive coverage",
	}
)

// TopicRule is one row of the keyword table.
type TopicRule struct {
	Topic    Topic
	Keywords []string
}

// Matches reports whether any keyword occurs in the lower-cased text.
func (r TopicRule) Matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// TopicSet is an unordered set of topics.
type TopicSet map[Topic]struct{}

// NewTopicSet creates a set holding topics.
func NewTopicSet(topics ...Topic) TopicSet {
	s := make(TopicSet, len(topics))
	for _, t := range topics {
		s.Add(t)
	}
	return s
}

// Add inserts t. Adding an existing topic is a no-op.
func (s TopicSet) Add(t Topic) {
	s[t] = struct{}{}
}

// Has reports whether t is in the set.
func (s TopicSet) Has(t Topic) bool {
	_, ok := s[t]
	return ok
}

// Len returns the number of topics in the set.
func (s TopicSet) Len() int {
	return len(s)
}

// CountOf returns how many of topics are in the set.
func (s TopicSet) CountOf(topics []Topic) int {
	n := 0
	for _, t := range topics {
		if s.Has(t) {
			n++
		}
	}
	return n
}

// Missing returns the topics from vocab that are not in the set, keeping
// vocab order.
func (s TopicSet) Missing(vocab []Topic) []Topic {
	var out []Topic
	for _, t := range vocab {
		if !s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Sorted returns the topics in lexical order.
func (s TopicSet) Sorted() []Topic {
	out := make([]Topic, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s TopicSet) Clone() TopicSet {
	out := make(TopicSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// JoinTopics renders topics as a comma separated list.
func JoinTopics(topics []Topic) string {
	parts := make([]string, len(topics))
	for i, t := range topics {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

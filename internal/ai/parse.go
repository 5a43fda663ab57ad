package ai

import (
	"strings"
)

// Markers the model is asked to use in its replies.
const (
	ExplanationMarker = "EXPLANATION:"
	CodeMarker        = "CODE:"
	CodeFenceOpen     = "```python"
	CodeFenceClose    = "```"
)

// CodeTokens are substrings that make an unlabeled, unfenced reply look like
// a bare code snippet.
var CodeTokens = []string{"import ", "df.", "plt.", "print(", "pandas"}

// ParseResponse splits a model reply into an explanation and an executable
// snippet. It never fails: unrecognized input degrades to a best-effort
// partition, possibly with both parts empty.
//
// Formats are tried in order:
//  1. Labeled: a line starting with EXPLANATION: plus a ```python fence.
//  2. Fenced: a ```python fence, with the text before it as explanation.
//  3. Bare code: the whole reply contains a code token and is taken as code.
//  4. Otherwise the whole reply is explanation.
func ParseResponse(raw string) (explanation, code string) {
	switch {
	case strings.Contains(raw, ExplanationMarker):
		return parseLabeled(raw)
	case strings.Contains(raw, CodeFenceOpen):
		return parseFenced(raw)
	case looksLikeCode(raw):
		return "", strings.TrimSpace(raw)
	default:
		return strings.TrimSpace(raw), ""
	}
}

func parseLabeled(raw string) (string, string) {
	var explanation string
	var code strings.Builder
	inFence := false

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case inFence && trimmed == CodeFenceClose:
			inFence = false
		case inFence:
			code.WriteString(line)
			code.WriteByte('\n')
		case strings.HasPrefix(line, ExplanationMarker):
			explanation = strings.TrimSpace(strings.TrimPrefix(line, ExplanationMarker))
		case strings.HasPrefix(line, CodeMarker):
			// header only
		case strings.HasPrefix(trimmed, CodeFenceOpen):
			inFence = true
		}
	}

	return explanation, strings.TrimSpace(code.String())
}

func parseFenced(raw string) (string, string) {
	start := strings.Index(raw, CodeFenceOpen)

	explanation := strings.TrimSpace(raw[:start])
	explanation = strings.TrimSpace(strings.Replace(explanation, ExplanationMarker, "", 1))

	body := raw[start+len(CodeFenceOpen):]
	end := strings.Index(body, CodeFenceClose)
	if end == -1 {
		return explanation, ""
	}
	return explanation, strings.TrimSpace(body[:end])
}

func looksLikeCode(raw string) bool {
	for _, tok := range CodeTokens {
		if strings.Contains(raw, tok) {
			return true
		}
	}
	return false
}

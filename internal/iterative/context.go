package iterative

import (
	"strings"
	"unicode/utf8"
)

// Context buffer bounds, in bytes.
const (
	DefaultContextCap  = 2000
	DefaultContextKeep = 1500
)

// AnalysisContext is the running narrative fed back to the model. It only
// grows by Append and is trimmed to its most recent Keep bytes whenever it
// goes over Cap.
type AnalysisContext struct {
	Cap  int
	Keep int

	text string
}

// NewAnalysisContext creates an empty buffer with the default bounds.
func NewAnalysisContext() *AnalysisContext {
	return &AnalysisContext{Cap: DefaultContextCap, Keep: DefaultContextKeep}
}

// Append adds a newline and info.
func (c *AnalysisContext) Append(info string) {
	c.text += "\n" + info
	c.trim()
}

// Set replaces the buffer, e.g. when a saved session is loaded.
func (c *AnalysisContext) Set(text string) {
	c.text = text
	c.trim()
}

func (c *AnalysisContext) trim() {
	limit, keep := c.Cap, c.Keep
	if limit <= 0 {
		limit = DefaultContextCap
	}
	if keep <= 0 || keep > limit {
		keep = limit
	}
	if len(c.text) <= limit {
		return
	}

	start := len(c.text) - keep
	for start < len(c.text) && !utf8.RuneStart(c.text[start]) {
		start++
	}
	c.text = c.text[start:]
}

// String returns the buffer.
func (c *AnalysisContext) String() string {
	return c.text
}

// Len returns the buffer length in bytes.
func (c *AnalysisContext) Len() int {
	return len(c.text)
}

// Tail returns the last n bytes of the buffer, cut on a rune boundary.
func (c *AnalysisContext) Tail(n int) string {
	return tail(c.text, n)
}

// Reset empties the buffer.
func (c *AnalysisContext) Reset() {
	c.text = ""
}

// tail returns the last n bytes of s without splitting a rune.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// head returns the first n bytes of s without splitting a rune.
func head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	end := n
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// orDefault returns fallback when s is blank.
func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

package iterative

import (
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

func TestAnalysisContext_AppendTrims(t *testing.T) {
	c := NewAnalysisContext()
	c.Append(strings.Repeat("a", 1990))
	if c.Len() != 1991 {
		t.Fatalf("expected 1991 bytes, got %d", c.Len())
	}

	c.Append("0123456789")
	if c.Len() != DefaultContextKeep {
		t.Fatalf("expected trim to %d bytes, got %d", DefaultContextKeep, c.Len())
	}
	if !strings.HasSuffix(c.String(), "\n0123456789") {
		t.Errorf("most recent text lost: %q", c.Tail(20))
	}
}

func TestAnalysisContext_TrimKeepsRunesWhole(t *testing.T) {
	c := &AnalysisContext{Cap: 10, Keep: 5}
	c.Append("ééééééé")
	if !utf8.ValidString(c.String()) {
		t.Fatalf("trimmed buffer is not valid UTF-8: %q", c.String())
	}
	if c.Len() > 5 {
		t.Errorf("expected at most 5 bytes, got %d", c.Len())
	}
}

func TestAnalysisContext_SetAndReset(t *testing.T) {
	c := NewAnalysisContext()
	c.Set("loaded")
	if c.String() != "loaded" {
		t.Errorf("Set: got %q", c.String())
	}
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Reset left %d bytes", c.Len())
	}
}

func TestHeadTail(t *testing.T) {
	if got := head("héllo", 2); got != "h" {
		t.Errorf("head cut a rune: %q", got)
	}
	if got := tail("héllo", 4); got != "llo" {
		t.Errorf("tail cut a rune: %q", got)
	}
	if got := tail("abc", 10); got != "abc" {
		t.Errorf("tail of short string: %q", got)
	}
	if got := head("abc", 0); got != "" {
		t.Errorf("head 0: %q", got)
	}
}

// The buffer never exceeds its cap and always ends with the latest append
// when that append fits in Keep.
func TestAnalysisContext_CapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewAnalysisContext()
		appends := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9 é]{0,600}`), 1, 30).Draw(t, "appends")
		for _, s := range appends {
			c.Append(s)
			if c.Len() > DefaultContextCap {
				t.Fatalf("context grew to %d bytes", c.Len())
			}
			if len(s)+1 <= DefaultContextKeep && !strings.HasSuffix(c.String(), "\n"+s) {
				t.Fatalf("latest append missing from tail")
			}
		}
	})
}

package repl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/types"
)

// Display limits for console output.
const (
	outputPreview = 800
	codePreview   = 100
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// Console prints run progress events in color. It is the events.Observer
// used by both the run command and the interactive session.
type Console struct {
	w        io.Writer
	ShowCode bool
}

var _ events.Observer = (*Console)(nil)

// NewConsole creates a console printer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, ShowCode: true}
}

// Observe prints one event.
func (c *Console) Observe(e *events.Event) {
	switch e.Type {
	case events.EventTypeRunStarted:
		fmt.Fprintf(c.w, "\n%s\n", cyan(e.Message))
	case events.EventTypeIterationStarted:
		fmt.Fprintf(c.w, "\n%s\n", cyan(e.Message))
	case events.EventTypeExplanation:
		fmt.Fprintf(c.w, "%s %s\n", green("Explanation:"), e.Message)
	case events.EventTypeNoCode:
		fmt.Fprintf(c.w, "%s %s\n", yellow("!"), e.Message)
	case events.EventTypeExecutionStarted:
		if c.ShowCode {
			fmt.Fprintf(c.w, "%s\n%s\n", faint("Executing:"), faint(e.String("code")))
		}
	case events.EventTypeExecutionSucceeded:
		out := strings.TrimSpace(e.Message)
		if out == "" {
			fmt.Fprintf(c.w, "%s Code executed (no output)\n", green("✓"))
			return
		}
		fmt.Fprintf(c.w, "%s Output:\n%s\n", green("✓"), preview(out, outputPreview))
	case events.EventTypeExecutionFailed:
		fmt.Fprintf(c.w, "%s %s\n", red("✗ Execution failed:"), e.Message)
	case events.EventTypeArtifactsSaved:
		for _, p := range e.Strings("paths") {
			fmt.Fprintf(c.w, "  %s %s\n", green("Saved:"), p)
		}
	case events.EventTypeDecision:
		if stop, _ := e.Data["stop"].(bool); stop {
			fmt.Fprintf(c.w, "%s %s\n", green("Analysis complete:"), e.Message)
		} else {
			fmt.Fprintf(c.w, "%s\n", faint(e.Message))
		}
	case events.EventTypePacing:
		fmt.Fprintf(c.w, "%s\n", faint(e.Message))
	case events.EventTypeRunCompleted:
		// PrintSummary covers it
	default:
		switch e.Severity {
		case events.SeverityError:
			fmt.Fprintf(c.w, "%s %s\n", red("✗"), e.Message)
		case events.SeverityWarning:
			fmt.Fprintf(c.w, "%s %s\n", yellow("!"), e.Message)
		default:
			fmt.Fprintf(c.w, "%s %s\n", green("✓"), e.Message)
		}
	}
}

// PrintSummary prints the completion block for a finished run.
func PrintSummary(w io.Writer, s *types.RunSummary) {
	fmt.Fprintf(w, "\n%s\n", cyan("Analysis Summary"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Iterations:          %d\n", s.Iterations)
	fmt.Fprintf(w, "  Steps executed:      %d\n", s.StepsExecuted())
	fmt.Fprintf(w, "  Steps with visuals:  %d\n", s.StepsWithArtifacts())
	if s.Recoveries > 0 {
		fmt.Fprintf(w, "  Sandbox recoveries:  %d\n", s.Recoveries)
	}
	fmt.Fprintf(w, "  Duration:            %s\n", s.Duration.Round(100*time.Millisecond))

	topics := "none"
	if len(s.Topics) > 0 {
		topics = types.JoinTopics(s.Topics)
	}
	fmt.Fprintf(w, "  Topics covered:      %d (%s)\n", len(s.Topics), topics)

	stop := fmt.Sprintf("%s (%s)", s.Stop, s.Reason)
	if s.Stop.IsFailure() {
		stop = red(stop)
	}
	fmt.Fprintf(w, "  Stopped:             %s\n", stop)

	if s.Verdict == types.VerdictComprehensive {
		fmt.Fprintf(w, "  %s\n", green("✓ Comprehensive analysis achieved"))
	} else {
		fmt.Fprintf(w, "  %s\n", yellow("⚡ Partial analysis, more topics could be explored"))
	}
	fmt.Fprintln(w)
}

// printHistory lists executed steps, oldest first.
func printHistory(w io.Writer, records []types.IterationRecord) {
	fmt.Fprintf(w, "\n%s\n", cyan("Session History"))
	fmt.Fprintln(w)
	if len(records) == 0 {
		fmt.Fprintln(w, "  No analysis history yet.")
		fmt.Fprintln(w)
		return
	}

	for _, rec := range records {
		mark := green("✓")
		if !rec.Succeeded {
			mark = red("✗")
		}
		fmt.Fprintf(w, "  %d. %s %s\n", rec.Index, rec.Timestamp.Format("2006-01-02 15:04:05"), mark)
		fmt.Fprintf(w, "     Results: %d visualization(s)\n", rec.ArtifactCount)
		fmt.Fprintf(w, "     Code: %s\n", truncate(rec.Code, codePreview))
	}
	fmt.Fprintln(w)
}

// truncate shortens s to n bytes, ending in "..." when cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + faint("\n... (output truncated)")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/storage"
	"github.com/steveyegge/analyst/internal/storage/sqlite"
	"github.com/steveyegge/analyst/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past analysis runs",
	Long: `List recent runs from the history database, newest first.

With a run ID, show that run's steps and events.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()

		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		if len(args) == 1 {
			err = showRun(ctx, os.Stdout, store, args[0])
		} else {
			err = listRuns(ctx, os.Stdout, store, limit)
		}
		if err != nil {
			store.Close()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

// listRuns prints one line per run, newest first
func listRuns(ctx context.Context, w io.Writer, store storage.RunStore, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(w, "\n%s No runs recorded yet\n\n", yellow("✨"))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "\n%s\n\n", cyan("Recent Runs"))
	for _, r := range runs {
		stop := string(r.Stop)
		if r.Stop.IsFailure() {
			stop = red(stop)
		} else {
			stop = green(stop)
		}
		fmt.Fprintf(w, "  %s  %s  %2d iterations  %-13s  %s\n",
			shortID(r.RunID), r.StartedAt.Local().Format("2006-01-02 15:04"), r.Iterations, r.Verdict, stop)
		fmt.Fprintf(w, "            %s\n", firstLine(r.Prompt, 70))
	}
	fmt.Fprintln(w)
	return nil
}

// showRun prints one run with its steps and events
func showRun(ctx context.Context, w io.Writer, store storage.RunStore, id string) error {
	r, err := store.GetRun(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}
	evts, err := store.GetEvents(ctx, id)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "\n%s %s\n\n", cyan("Run"), r.RunID)
	fmt.Fprintf(w, "  Prompt:      %s\n", firstLine(r.Prompt, 70))
	fmt.Fprintf(w, "  Started:     %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration:    %s\n", r.Duration)
	fmt.Fprintf(w, "  Iterations:  %d (%d steps, %d with visuals)\n", r.Iterations, r.StepsExecuted(), r.StepsWithArtifacts())
	fmt.Fprintf(w, "  Stopped:     %s (%s)\n", r.Stop, r.Reason)
	fmt.Fprintf(w, "  Verdict:     %s\n", r.Verdict)
	if len(r.Topics) > 0 {
		fmt.Fprintf(w, "  Topics:      %s\n", types.JoinTopics(r.Topics))
	}

	if len(r.Records) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Steps"))
		for _, rec := range r.Records {
			mark := green("✓")
			if !rec.Succeeded {
				mark = red("✗")
			}
			fmt.Fprintf(w, "  %s %d. [iteration %d] %s\n", mark, rec.Index, rec.Iteration, firstLine(rec.Explanation, 70))
		}
	}

	if len(evts) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Events"))
		for _, e := range evts {
			sev := string(e.Severity)
			switch e.Severity {
			case events.SeverityError:
				sev = red(sev)
			case events.SeverityWarning:
				sev = yellow(sev)
			}
			fmt.Fprintf(w, "  %s %-7s %-22s %s\n", e.Timestamp.Local().Format("15:04:05"), sev, e.Type, firstLine(e.Message, 60))
		}
	}
	fmt.Fprintln(w)
	return nil
}

// firstLine returns the first non-empty line of s, cut to n bytes
func firstLine(s string, n int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > n {
			return line[:n-3] + "..."
		}
		return line
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

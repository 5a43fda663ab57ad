package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/analyst/internal/iterative"
	"github.com/steveyegge/analyst/internal/repl"
	"github.com/steveyegge/analyst/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run one iterative analysis of a dataset",
	Long: `Upload a CSV dataset to a fresh sandbox and run the iterative analysis
loop on it. Without a prompt a comprehensive step-by-step summary is
requested.

The run and its events are saved to the history database; see
'analyst history'. Ctrl+C stops the run after the current step.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, _ := cmd.Flags().GetString("data")
		minIter, _ := cmd.Flags().GetInt("min")
		maxIter, _ := cmd.Flags().GetInt("max")

		opts := iterative.RunOptions{MinIterations: cfg.MinIterations, MaxIterations: cfg.MaxIterations}
		if cmd.Flags().Changed("min") {
			opts.MinIterations = minIter
		}
		if cmd.Flags().Changed("max") {
			opts.MaxIterations = maxIter
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, os.Stdout, appDeps{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		_, err = runAnalysis(ctx, a, data, strings.Join(args, " "), opts)
		a.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringP("data", "d", "", "CSV dataset to analyze (required)")
	runCmd.Flags().Int("min", 3, "Minimum iterations before the run may stop")
	runCmd.Flags().Int("max", 15, "Maximum iterations")
	_ = runCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(runCmd)
}

// runAnalysis uploads data, runs the loop and saves the run. An
// interrupted run is still saved and reported.
func runAnalysis(ctx context.Context, a *app, data, prompt string, opts iterative.RunOptions) (*types.RunSummary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if prompt == "" {
		prompt = iterative.SummaryPrompt
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(a.out, "Uploading dataset: %s\n", filepath.Base(data))
	if err := a.ctrl.LoadDataset(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to upload dataset: %w", err)
	}
	fmt.Fprintf(a.out, "%s Dataset uploaded successfully!\n", green("✓"))

	if overview, err := a.ctrl.Describe(ctx); err != nil {
		fmt.Fprintf(a.out, "%s Could not retrieve dataset info: %v\n", yellow("!"), err)
	} else {
		fmt.Fprintf(a.out, "\n%s\n%s\n", cyan("Dataset Overview"), overview)
	}

	a.recorder.Reset()
	summary, runErr := a.ctrl.Run(ctx, prompt, opts)
	if summary == nil {
		return nil, runErr
	}
	repl.PrintSummary(a.out, summary)

	// Saving must survive the interrupt that ended the run
	if err := a.store.SaveRun(context.WithoutCancel(ctx), summary, a.recorder.Events()); err != nil {
		return summary, fmt.Errorf("failed to save run: %w", err)
	}
	fmt.Fprintf(a.out, "Run saved as %s\n", summary.RunID)
	return summary, runErr
}

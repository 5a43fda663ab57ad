package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/analyst/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl <dataset.csv>",
	Short: "Start an interactive analysis session",
	Long: `Upload a CSV dataset and start an interactive analysis shell.

Ask questions in plain language or use commands such as 'analyze',
'visualize', 'explore', 'summary' and 'iterate'. Requests mentioning a
comprehensive, thorough or detailed analysis start the iterative loop
automatically.

Type 'help' in the REPL for available commands.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		a, err := newApp(ctx, cfg, os.Stdout, appDeps{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		r, err := repl.New(&repl.Config{
			Controller:  a.ctrl,
			DatasetPath: args[0],
			Store:       a.store,
			Recorder:    a.recorder,
			Out:         os.Stdout,
			HistoryFile: filepath.Join(filepath.Dir(cfg.DBPath), "repl_history"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create REPL: %v\n", err)
			os.Exit(1)
		}

		if err := r.Open(ctx); err != nil {
			a.Close()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := r.Run(ctx); err != nil {
			a.Close()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// Command analyst runs model-directed analyses of CSV datasets in a remote
// Python sandbox.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/analyst/internal/config"
)

var (
	cfgFile     string
	dbPath      string
	provider    string
	traceSpans  bool
	metricsAddr string
	verbose     bool

	// cfg is the effective configuration, loaded before any command runs
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "analyst",
	Short: "Model-directed CSV analysis",
	Long: `analyst asks a language model for small Python analysis steps, runs
each one in a remote sandbox and feeds the results back until the model
declares the analysis complete, enough topics are covered or the step
ceiling is reached.

Configuration is read from --config (YAML), a .env file and ANALYST_*
environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			c.DBPath = dbPath
		}
		if cmd.Flags().Changed("provider") {
			c.Provider = provider
			if err := c.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
		}
		cfg = c

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		slog.Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Run history database (default .analyst/runs.db)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Model provider: anthropic or openai")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "Print OpenTelemetry spans to stderr")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package config loads analyst settings from defaults, an optional YAML
// file, a .env file and ANALYST_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the CLI needs to wire a session
type Config struct {
	// Provider selects the model backend: "anthropic" or "openai"
	// Default: anthropic
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model
	Model string `yaml:"model"`

	// AnthropicAPIKey and OpenAIAPIKey are read from the environment only
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`

	// MaxTokens bounds each model reply
	// Default: 1500, Range: 1-32000
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature
	// Default: 0.2, Range: 0.0-2.0
	Temperature float64 `yaml:"temperature"`

	// RequestsPerMinute throttles model calls (0 = unlimited)
	// Default: 50
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// SandboxURL is the code interpreter service endpoint
	SandboxURL string `yaml:"sandbox_url"`

	// SandboxAPIKey authenticates against the sandbox service; env only
	SandboxAPIKey string `yaml:"-"`

	// SandboxStartupTimeout bounds sandbox creation
	// Default: 60s
	SandboxStartupTimeout time.Duration `yaml:"sandbox_startup_timeout"`

	// MinIterations and MaxIterations bound "analyst run"
	// Default: 3 and 15
	MinIterations int `yaml:"min_iterations"`
	MaxIterations int `yaml:"max_iterations"`

	// StepDelay is the pause between iterations
	// Default: 3s
	StepDelay time.Duration `yaml:"step_delay"`

	// ContextCap and ContextKeep bound the running analysis context (bytes)
	// Default: 2000 and 1500; ContextKeep must not exceed ContextCap
	ContextCap  int `yaml:"context_cap"`
	ContextKeep int `yaml:"context_keep"`

	// OutputDir receives saved charts
	// Default: output
	OutputDir string `yaml:"output_dir"`

	// DBPath is the sqlite run history database
	// Default: .analyst/runs.db
	DBPath string `yaml:"db_path"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Provider:              "anthropic",
		MaxTokens:             1500,
		Temperature:           0.2,
		RequestsPerMinute:     50,
		SandboxStartupTimeout: 60 * time.Second,
		MinIterations:         3,
		MaxIterations:         15,
		StepDelay:             3 * time.Second,
		ContextCap:            2000,
		ContextKeep:           1500,
		OutputDir:             "output",
		DBPath:                ".analyst/runs.db",
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("provider must be anthropic or openai (got %q)", c.Provider)
	}
	if c.MaxTokens <= 0 || c.MaxTokens > 32000 {
		return fmt.Errorf("max_tokens must be between 1 and 32000 (got %d)", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0 (got %.2f)", c.Temperature)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative (got %d)", c.RequestsPerMinute)
	}
	if c.SandboxStartupTimeout <= 0 {
		return fmt.Errorf("sandbox_startup_timeout must be positive (got %v)", c.SandboxStartupTimeout)
	}
	if c.MinIterations < 0 {
		return fmt.Errorf("min_iterations cannot be negative (got %d)", c.MinIterations)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive (got %d)", c.MaxIterations)
	}
	if c.MaxIterations < c.MinIterations {
		return fmt.Errorf("max_iterations (%d) must be >= min_iterations (%d)", c.MaxIterations, c.MinIterations)
	}
	if c.StepDelay < 0 {
		return fmt.Errorf("step_delay cannot be negative (got %v)", c.StepDelay)
	}
	if c.ContextCap <= 0 {
		return fmt.Errorf("context_cap must be positive (got %d)", c.ContextCap)
	}
	if c.ContextKeep <= 0 || c.ContextKeep > c.ContextCap {
		return fmt.Errorf("context_keep must be between 1 and context_cap (got %d, cap %d)", c.ContextKeep, c.ContextCap)
	}
	return nil
}

// APIKey returns the key for the configured provider
func (c Config) APIKey() string {
	if strings.EqualFold(c.Provider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// String returns a human-readable representation of the config. Keys are
// never included.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Provider: %s, Model: %q, MaxTokens: %d, Temperature: %.2f, RPM: %d, "+
			"Sandbox: %q, StartupTimeout: %v, Iterations: %d-%d, StepDelay: %v, "+
			"Context: %d/%d, OutputDir: %q, DB: %q}",
		c.Provider, c.Model, c.MaxTokens, c.Temperature, c.RequestsPerMinute,
		c.SandboxURL, c.SandboxStartupTimeout, c.MinIterations, c.MaxIterations, c.StepDelay,
		c.ContextCap, c.ContextKeep, c.OutputDir, c.DBPath,
	)
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then the .env file in the working
// directory if there is one, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	// godotenv never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - ANALYST_PROVIDER: anthropic or openai (default: anthropic)
//   - ANALYST_MODEL: model override
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY: provider keys
//   - ANALYST_MAX_TOKENS: reply token limit (default: 1500)
//   - ANALYST_TEMPERATURE: sampling temperature (default: 0.2)
//   - ANALYST_REQUESTS_PER_MINUTE: model call throttle (default: 50)
//   - ANALYST_SANDBOX_URL: code interpreter endpoint
//   - ANALYST_SANDBOX_API_KEY (or E2B_API_KEY): sandbox key
//   - ANALYST_SANDBOX_TIMEOUT_SECS: sandbox startup timeout (default: 60)
//   - ANALYST_MIN_ITERATIONS, ANALYST_MAX_ITERATIONS: run bounds (default: 3, 15)
//   - ANALYST_STEP_DELAY_MS: pause between iterations (default: 3000)
//   - ANALYST_CONTEXT_CAP, ANALYST_CONTEXT_KEEP: context bounds (default: 2000, 1500)
//   - ANALYST_OUTPUT_DIR: chart directory (default: output)
//   - ANALYST_DB: run history database (default: .analyst/runs.db)
//
// Returns an error if any environment variable has an invalid value.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	parseEnvString("ANALYST_PROVIDER", &cfg.Provider)
	parseEnvString("ANALYST_MODEL", &cfg.Model)
	parseEnvString("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	parseEnvString("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	parseEnvString("ANALYST_SANDBOX_URL", &cfg.SandboxURL)
	parseEnvString("E2B_API_KEY", &cfg.SandboxAPIKey)
	parseEnvString("ANALYST_SANDBOX_API_KEY", &cfg.SandboxAPIKey)
	parseEnvString("ANALYST_OUTPUT_DIR", &cfg.OutputDir)
	parseEnvString("ANALYST_DB", &cfg.DBPath)

	if err := parseEnvInt("ANALYST_MAX_TOKENS", &cfg.MaxTokens); err != nil {
		return err
	}
	if err := parseEnvFloat("ANALYST_TEMPERATURE", &cfg.Temperature); err != nil {
		return err
	}
	if err := parseEnvInt("ANALYST_REQUESTS_PER_MINUTE", &cfg.RequestsPerMinute); err != nil {
		return err
	}
	if err := parseEnvDuration("ANALYST_SANDBOX_TIMEOUT_SECS", &cfg.SandboxStartupTimeout, time.Second); err != nil {
		return err
	}
	if err := parseEnvInt("ANALYST_MIN_ITERATIONS", &cfg.MinIterations); err != nil {
		return err
	}
	if err := parseEnvInt("ANALYST_MAX_ITERATIONS", &cfg.MaxIterations); err != nil {
		return err
	}
	if err := parseEnvDuration("ANALYST_STEP_DELAY_MS", &cfg.StepDelay, time.Millisecond); err != nil {
		return err
	}
	if err := parseEnvInt("ANALYST_CONTEXT_CAP", &cfg.ContextCap); err != nil {
		return err
	}
	if err := parseEnvInt("ANALYST_CONTEXT_KEEP", &cfg.ContextKeep); err != nil {
		return err
	}
	return nil
}

// parseEnvString copies a non-empty environment variable into dest
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier converts the numeric value to a duration
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}

package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Model constants.
//
// Environment variable overrides:
// - ANALYST_MODEL: Override the model for the selected provider
const (
	// ModelSonnet is the default Anthropic model
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelGPT4o is the default OpenAI model
	ModelGPT4o = "gpt-4o"
)

// Sampling defaults shared by both providers.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1500
)

// Providers accepted by NewCompleter.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Completer sends one system+user prompt pair to a language model and
// returns the raw reply text. Implementations may retry internally; an error
// means the call as a whole failed.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds model client configuration
type Config struct {
	Provider    string      // "anthropic" (default) or "openai"
	APIKey      string      // if empty, read from ANTHROPIC_API_KEY or OPENAI_API_KEY
	Model       string      // provider default if empty
	BaseURL     string      // API endpoint override, mainly for tests
	MaxTokens   int         // default 1500
	Temperature float64     // default 0.2; negative means provider default
	Retry       RetryConfig // uses defaults if MaxRetries is zero
	Logger      *slog.Logger
}

func (c *Config) normalize() {
	if c.Provider == "" {
		c.Provider = ProviderAnthropic
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry = DefaultRetryConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewCompleter builds the Completer for cfg.Provider.
func NewCompleter(cfg Config) (Completer, error) {
	cfg.normalize()
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return NewSupervisor(&cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(&cfg)
	default:
		return nil, fmt.Errorf("unknown model provider %q (want %s or %s)",
			cfg.Provider, ProviderAnthropic, ProviderOpenAI)
	}
}

// Supervisor is the Anthropic-backed Completer.
type Supervisor struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	calls       *caller
}

var _ Completer = (*Supervisor)(nil)

// NewSupervisor creates a new Anthropic completer
func NewSupervisor(cfg *Config) (*Supervisor, error) {
	cfg.normalize()

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = ModelSonnet
	}

	// Retries are handled by the caller, not the SDK
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Supervisor{
		client:      &client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		calls:       newCaller(cfg.Retry, cfg.Logger),
	}, nil
}

// Model returns the model name used for requests
func (s *Supervisor) Model() string {
	return s.model
}

// HealthCheck reports an error while the circuit breaker is open
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	return s.calls.healthCheck()
}

// Complete sends the prompt pair to the Messages API
func (s *Supervisor) Complete(ctx context.Context, system, user string) (string, error) {
	var text string
	err := s.calls.do(ctx, "anthropic completion", func(attemptCtx context.Context) error {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(s.model),
			MaxTokens: int64(s.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if s.temperature > 0 {
			params.Temperature = anthropic.Float(s.temperature)
		}

		resp, err := s.client.Messages.New(attemptCtx, params)
		if err != nil {
			return err
		}

		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		text = sb.String()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}
	return text, nil
}

func (c *caller) healthCheck() error {
	if c.breaker == nil {
		return nil
	}
	state, failures, _ := c.breaker.GetMetrics()
	if state == CircuitOpen {
		return fmt.Errorf("model service unavailable: %w (failures=%d, retry in %v)",
			ErrCircuitOpen, failures, c.retry.OpenTimeout)
	}
	return nil
}

package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is the OpenAI chat-completions Completer.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	calls       *caller
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a completer backed by the OpenAI API
func NewOpenAIClient(cfg *Config) (*OpenAIClient, error) {
	cfg.normalize()

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = ModelGPT4o
	}

	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	cfg.Logger.Debug("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		calls:       newCaller(cfg.Retry, cfg.Logger),
	}, nil
}

// Model returns the model name used for requests
func (o *OpenAIClient) Model() string {
	return o.model
}

// HealthCheck reports an error while the circuit breaker is open
func (o *OpenAIClient) HealthCheck(ctx context.Context) error {
	return o.calls.healthCheck()
}

// Complete sends the prompt pair as a system and a user message
func (o *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	req := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTokens,
	}
	if o.temperature > 0 {
		req.Temperature = float32(o.temperature)
	}

	var text string
	err := o.calls.do(ctx, "openai completion", func(attemptCtx context.Context) error {
		resp, err := o.client.CreateChatCompletion(attemptCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("OpenAI returned no choices")
		}
		o.calls.logger.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	return text, nil
}

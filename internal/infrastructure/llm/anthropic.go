package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

type promptFunc func(system, user, apiKey string, settings types.RequestSettings) (string, error)

// AnthropicClient implements ports.TextGenerator with the Anthropic Messages API.
type AnthropicClient struct {
	apiKey   string
	settings types.RequestSettings
	prompt   promptFunc
}

var _ ports.TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		apiKey: cfg.APIKey,
		settings: types.RequestSettings{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		},
		prompt: sendPrompt,
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// Generate runs the prompt. The underlying call has no context, so cancellation abandons it.
func (c *AnthropicClient) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	if c.apiKey == "" || c.settings.Model == "" {
		return "", errors.New("anthropic client misconfigured")
	}

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := c.prompt(prompt.System, prompt.User, c.apiKey, c.settings)
		done <- reply{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("anthropic prompt: %w", r.err)
		}
		return r.text, nil
	}
}

func sendPrompt(system, user, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(system, user, "", apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", errors.New("no content in response")
	}
	return response.Content[0].Text, nil
}

// Package llm provides chat completion clients for the supported model
// backends.
package llm

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns the models the client accepts.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider. An empty model
// selects the provider's default; any other must be one of the client's
// Models.
func NewClient(provider Provider, apiKey, model string) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderAnthropic:
		c, err = NewAnthropicClient(apiKey, model)
	case ProviderOpenAI, "":
		c, err = NewOpenAIClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	if model != "" && !lo.Contains(c.Models(), model) {
		return nil, fmt.Errorf("model %q is not supported by %s", model, c.Name())
	}
	return c, nil
}

// Package responder produces chat replies, either from a model backend or
// from a deterministic echo.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/capitalize-ai/realtime-relay/internal/llm"
	"github.com/capitalize-ai/realtime-relay/internal/model"
	"github.com/capitalize-ai/realtime-relay/pkg/metrics"
)

const (
	// SystemPrompt is the fixed instruction sent ahead of every model request.
	SystemPrompt = "You are a helpful assistant for an e-commerce battery store. Keep responses short."

	// Placeholder is returned when the backend yields no usable text.
	Placeholder = "..."

	echoPrefix = "Echo: "
)

// Responder computes the reply to message given the recent history.
type Responder interface {
	Reply(ctx context.Context, history []model.Message, message string) (string, error)
	Name() string
}

// Select returns the model-backed responder when a client is configured and
// the echo responder otherwise. Callers hold the result for the process
// lifetime.
func Select(client llm.Client) Responder {
	if client == nil {
		return Echo{}
	}
	return NewModel(client)
}

// Echo answers without any external call.
type Echo struct{}

// Name implements Responder.
func (Echo) Name() string { return "echo" }

// Reply implements Responder. It never fails.
func (Echo) Reply(_ context.Context, _ []model.Message, message string) (string, error) {
	return echoPrefix + message, nil
}

// Model answers through an llm.Client.
type Model struct {
	client llm.Client
	prompt string
}

// NewModel wraps client with the store-support system prompt.
func NewModel(client llm.Client) *Model {
	return &Model{client: client, prompt: SystemPrompt}
}

// Name implements Responder.
func (m *Model) Name() string { return m.client.Name() }

// Reply issues one completion for [system, history..., user]. History that
// opens on an assistant turn is trimmed to start at a user turn. Backend
// errors are returned to the caller.
func (m *Model) Reply(ctx context.Context, history []model.Message, message string) (string, error) {
	for len(history) > 0 && history[0].Role == model.RoleAssistant {
		history = history[1:]
	}

	turns := make([]model.Message, 0, len(history)+2)
	turns = append(turns, model.SystemMessage(m.prompt))
	turns = append(turns, history...)
	turns = append(turns, model.UserMessage(message))

	messages := lo.Map(turns, func(msg model.Message, _ int) llm.ChatMessage {
		return llm.ChatMessage{Role: string(msg.Role), Content: msg.Content}
	})

	start := time.Now()
	resp, err := m.client.Complete(ctx, &llm.CompletionRequest{Messages: messages})
	if err != nil {
		metrics.RecordLLMCompletion(m.client.Name(), "error", time.Since(start).Seconds(), 0, 0)
		return "", fmt.Errorf("%s completion failed: %w", m.client.Name(), err)
	}
	if resp == nil {
		return Placeholder, nil
	}
	metrics.RecordLLMCompletion(resp.Model, "success", float64(resp.LatencyMs)/1000, resp.TokensIn, resp.TokensOut)

	if text := strings.TrimSpace(resp.Content); text != "" {
		return text, nil
	}
	return Placeholder, nil
}

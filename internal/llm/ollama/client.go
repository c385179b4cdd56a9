package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	langollama "github.com/tmc/langchaingo/llms/ollama"

	"github.com/bru-digital/qteria/internal/llm"
)

// Client implements llm.Client against a local Ollama server, used for
// development and self-hosted deployments.
type Client struct {
	model llms.Model
}

// NewClient constructs a new Ollama-backed client.
func NewClient(baseURL, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Ollama")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}

	backend, err := langollama.New(
		langollama.WithModel(model),
		langollama.WithServerURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return &Client{model: backend}, nil
}

// Complete sends a system+user exchange and returns the raw assistant text.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	content := []llms.MessageContent{}
	if strings.TrimSpace(req.System) != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama response missing choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Content)
	if out == "" {
		return "", fmt.Errorf("ollama response empty content")
	}
	return out, nil
}

var _ llm.Client = (*Client)(nil)

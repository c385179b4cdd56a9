package llm

import (
	"context"
	"errors"
)

// Client abstracts reasoning-model providers. The returned text should parse
// as the JSON shape the caller asked for, but the provider enforces nothing;
// all format policing happens in the evaluator.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single model call.
type Request struct {
	System string
	Prompt string
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrNotImplemented
}

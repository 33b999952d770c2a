package ai

import (
	"context"
	"time"
)

// Request is one completion call against the upstream.
type Request struct {
	Model   string
	Prompt  string
	Timeout time.Duration
}

// Generator is the completion surface the gateway depends on.
// OllamaClient is the production implementation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) *Stream
}

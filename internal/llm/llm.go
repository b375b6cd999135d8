package llm

import (
	"context"
	"errors"
)

var (
	ErrAPIKeyNotSet       = errors.New("llm api key not set")
	ErrMaxRetriesExceeded = errors.New("llm max retries exceeded")
)

type CompletionRequest struct {
	System       string
	Prompt       string
	Model        string
	Temperature  float64
	MaxTokens    int
	JSONResponse bool
}

type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Client generates completions. Implementations wrap rate-limited upstream
// calls in a bounded exponential backoff.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	ModelName() string
}

// Embedder turns text into vectors for the document store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/querypilot/querypilot/internal/observability"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
	baseBackoff       = 2 * time.Second
	maxBackoff        = 32 * time.Second
)

type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	maxRetries  int
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &OpenAIClient{
		client:      openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		maxRetries:  maxRetries,
	}, nil
}

func (c *OpenAIClient) ModelName() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	temperature := c.temperature
	if req.Temperature != 0 {
		temperature = req.Temperature
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			observability.IncrementLLMRetry()
			if err := sleepBackoff(ctx, attempt); err != nil {
				return CompletionResponse{}, err
			}
		}

		params := openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(model),
			Temperature: openai.Float(temperature),
		}
		if req.System != "" {
			params.Messages = append(params.Messages, openai.SystemMessage(req.System))
		}
		params.Messages = append(params.Messages, openai.UserMessage(req.Prompt))
		if req.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}
		if req.JSONResponse {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return CompletionResponse{}, fmt.Errorf("openai completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return CompletionResponse{}, fmt.Errorf("openai completion returned no choices")
		}

		return CompletionResponse{
			Content:    completion.Choices[0].Message.Content,
			TokensUsed: int(completion.Usage.TotalTokens),
			Model:      string(completion.Model),
		}, nil
	}

	return CompletionResponse{}, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
}

func NewOpenAIEmbedder(apiKey, model string, dimension, batchSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{OfString: openai.String(texts[0])}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	vectors := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, value := range data.Embedding {
			vector[i] = float32(value)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := baseBackoff << (attempt - 1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

var (
	_ Client   = (*OpenAIClient)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
)

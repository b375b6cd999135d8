package llm

import (
	"errors"
	"testing"

	"github.com/openai/openai-go/v3"
)

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Fatalf("err = %v, want %v", err, ErrAPIKeyNotSet)
	}
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if client.ModelName() != defaultModel {
		t.Fatalf("model = %q, want %q", client.ModelName(), defaultModel)
	}
	if client.timeout != defaultTimeout {
		t.Fatalf("timeout = %v, want %v", client.timeout, defaultTimeout)
	}
	if client.maxRetries != defaultMaxRetries {
		t.Fatalf("maxRetries = %d, want %d", client.maxRetries, defaultMaxRetries)
	}
}

func TestNewOpenAIEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "text-embedding-3-small", 1536, 100)
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Fatalf("err = %v, want %v", err, ErrAPIKeyNotSet)
	}
}

func TestNewOpenAIEmbedderClampsBatchSize(t *testing.T) {
	embedder, err := NewOpenAIEmbedder("test-key", "text-embedding-3-small", 1536, 500)
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	if embedder.batchSize != 100 {
		t.Fatalf("batchSize = %d, want 100", embedder.batchSize)
	}
	if embedder.Dimension() != 1536 {
		t.Fatalf("dimension = %d, want 1536", embedder.Dimension())
	}
}

func TestIsRateLimitError(t *testing.T) {
	if isRateLimitError(nil) {
		t.Fatal("nil error reported as rate limit")
	}
	if isRateLimitError(errors.New("boom")) {
		t.Fatal("plain error reported as rate limit")
	}
	if !isRateLimitError(&openai.Error{StatusCode: 429}) {
		t.Fatal("429 not reported as rate limit")
	}
	if isRateLimitError(&openai.Error{StatusCode: 500}) {
		t.Fatal("500 reported as rate limit")
	}
}

func TestSleepBackoffCap(t *testing.T) {
	for attempt, want := range map[int]int64{
		1: int64(baseBackoff),
		2: int64(2 * baseBackoff),
		5: int64(maxBackoff),
		9: int64(maxBackoff),
	} {
		backoff := baseBackoff << (attempt - 1)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if int64(backoff) != want {
			t.Fatalf("attempt %d: backoff = %v, want %v", attempt, backoff, want)
		}
	}
}

package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/engine"
	"github.com/querypilot/querypilot/internal/llm"
)

func TestResolveRegisteredValidator(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterValidator("none", func(_ context.Context, _ config.Config) (engine.Validator, error) {
		return engine.NoopValidator{}, nil
	}))

	validator, err := registry.Validator(context.Background(), "none", config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "none", validator.Name())
}

func TestResolveUnknownProviderListsRegistered(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterLLM("openai", func(_ context.Context, cfg config.Config) (llm.Client, error) {
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.LLM.APIKey})
	}))

	_, err := registry.LLM(context.Background(), "anthropic", config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai", "error should list registered providers")
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	registry := NewRegistry()
	factory := func(_ context.Context, _ config.Config) (engine.Validator, error) {
		return engine.NoopValidator{}, nil
	}
	require.NoError(t, registry.RegisterValidator("none", factory))
	require.Error(t, registry.RegisterValidator("none", factory))
}

func TestDefaultRegistryResolvesBuiltins(t *testing.T) {
	registry := NewDefaultRegistry()

	validator, err := registry.Validator(context.Background(), "duckdb", config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "duckdb", validator.Name())

	cfg := config.Config{}
	cfg.LLM.APIKey = "test-key"
	client, err := registry.LLM(context.Background(), "openai", cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, client.ModelName(), "model name should default")

	_, err = registry.LLM(context.Background(), "openai", config.Config{})
	require.Error(t, err, "missing api key must fail")
}

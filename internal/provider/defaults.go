package provider

import (
	"context"
	"fmt"

	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/docstore"
	dspgvector "github.com/querypilot/querypilot/internal/docstore/pgvector"
	"github.com/querypilot/querypilot/internal/engine"
	engineduckdb "github.com/querypilot/querypilot/internal/engine/duckdb"
	"github.com/querypilot/querypilot/internal/llm"
)

// NewDefaultRegistry returns a registry with the built-in providers.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()

	mustRegister(registry.RegisterLLM("openai", func(_ context.Context, cfg config.Config) (llm.Client, error) {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
		})
	}))

	mustRegister(registry.RegisterEmbedder("openai", func(_ context.Context, cfg config.Config) (llm.Embedder, error) {
		return llm.NewOpenAIEmbedder(cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Dimension, cfg.Embedder.BatchSize)
	}))

	mustRegister(registry.RegisterDocStore("pgvector", func(ctx context.Context, cfg config.Config) (docstore.Store, error) {
		db, err := dspgvector.Open(ctx, dspgvector.DBConfig{
			DSN:             cfg.VectorStore.DSN,
			MaxOpenConns:    cfg.VectorStore.MaxOpenConns,
			MaxIdleConns:    cfg.VectorStore.MaxIdleConns,
			ConnMaxIdleTime: cfg.VectorStore.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.VectorStore.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return dspgvector.NewStore(db), nil
	}))

	mustRegister(registry.RegisterValidator("remote", func(_ context.Context, cfg config.Config) (engine.Validator, error) {
		return engine.NewRemoteValidator(engine.RemoteConfig{
			BaseURL: cfg.Engine.Endpoint,
			APIKey:  cfg.Engine.APIKey,
			Timeout: cfg.Engine.Timeout,
		})
	}))
	mustRegister(registry.RegisterValidator("duckdb", func(_ context.Context, _ config.Config) (engine.Validator, error) {
		return engineduckdb.NewValidator(), nil
	}))
	mustRegister(registry.RegisterValidator("none", func(_ context.Context, _ config.Config) (engine.Validator, error) {
		return engine.NoopValidator{}, nil
	}))

	return registry
}

func mustRegister(err error) {
	if err != nil {
		panic(fmt.Sprintf("register default provider: %v", err))
	}
}

// Package provider maps configured provider names to the concrete
// clients behind the pipelines. Factories are registered at startup and
// resolved once when the service wires its dependencies, so an unknown
// name fails fast instead of surfacing mid-job.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/docstore"
	"github.com/querypilot/querypilot/internal/engine"
	"github.com/querypilot/querypilot/internal/llm"
)

type (
	LLMFactory       func(ctx context.Context, cfg config.Config) (llm.Client, error)
	EmbedderFactory  func(ctx context.Context, cfg config.Config) (llm.Embedder, error)
	DocStoreFactory  func(ctx context.Context, cfg config.Config) (docstore.Store, error)
	ValidatorFactory func(ctx context.Context, cfg config.Config) (engine.Validator, error)
)

type Registry struct {
	mu         sync.RWMutex
	llms       map[string]LLMFactory
	embedders  map[string]EmbedderFactory
	docStores  map[string]DocStoreFactory
	validators map[string]ValidatorFactory
}

func NewRegistry() *Registry {
	return &Registry{
		llms:       map[string]LLMFactory{},
		embedders:  map[string]EmbedderFactory{},
		docStores:  map[string]DocStoreFactory{},
		validators: map[string]ValidatorFactory{},
	}
}

func (r *Registry) RegisterLLM(name string, factory LLMFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.llms[name]; dup {
		return fmt.Errorf("llm provider %q already registered", name)
	}
	r.llms[name] = factory
	return nil
}

func (r *Registry) RegisterEmbedder(name string, factory EmbedderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.embedders[name]; dup {
		return fmt.Errorf("embedder provider %q already registered", name)
	}
	r.embedders[name] = factory
	return nil
}

func (r *Registry) RegisterDocStore(name string, factory DocStoreFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.docStores[name]; dup {
		return fmt.Errorf("document store provider %q already registered", name)
	}
	r.docStores[name] = factory
	return nil
}

func (r *Registry) RegisterValidator(name string, factory ValidatorFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.validators[name]; dup {
		return fmt.Errorf("engine provider %q already registered", name)
	}
	r.validators[name] = factory
	return nil
}

func (r *Registry) LLM(ctx context.Context, name string, cfg config.Config) (llm.Client, error) {
	r.mu.RLock()
	factory, ok := r.llms[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q, registered: %v", name, keys(r.llms))
	}
	return factory(ctx, cfg)
}

func (r *Registry) Embedder(ctx context.Context, name string, cfg config.Config) (llm.Embedder, error) {
	r.mu.RLock()
	factory, ok := r.embedders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedder provider %q, registered: %v", name, keys(r.embedders))
	}
	return factory(ctx, cfg)
}

func (r *Registry) DocStore(ctx context.Context, name string, cfg config.Config) (docstore.Store, error) {
	r.mu.RLock()
	factory, ok := r.docStores[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown document store provider %q, registered: %v", name, keys(r.docStores))
	}
	return factory(ctx, cfg)
}

func (r *Registry) Validator(ctx context.Context, name string, cfg config.Config) (engine.Validator, error) {
	r.mu.RLock()
	factory, ok := r.validators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine provider %q, registered: %v", name, keys(r.validators))
	}
	return factory(ctx, cfg)
}

func keys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

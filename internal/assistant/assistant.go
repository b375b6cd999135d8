// Package assistant implements the question answering services: natural
// language to SQL generation, SQL breakdowns, expansions, regenerations,
// explanations and chart generation. Every operation is an asynchronous
// job: submission returns a query ID immediately and a background
// pipeline moves the job through its statuses until a terminal state.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/docstore"
	"github.com/querypilot/querypilot/internal/engine"
	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/mdl"
	"github.com/querypilot/querypilot/internal/pipeline"
)

var (
	ErrEmptyQuery         = errors.New("query is required")
	ErrEmptySQL           = errors.New("sql is required")
	errDeploymentNotFound = errors.New("deployment is not prepared")
	errNoContext          = errors.New("no relevant schema context found")
	errInvalidSQL         = errors.New("generated sql failed validation")
)

const (
	codeDeploymentNotFound = "deployment_not_found"
	codeNoContext          = "no_relevant_context"
	codeInvalidSQL         = "sql_validation_failed"
	codeLLMUnavailable     = "llm_unavailable"
	codeInternal           = "internal_error"
)

type Dependencies struct {
	Jobs      *job.Store
	LLM       llm.Client
	Embedder  llm.Embedder
	Docs      docstore.Store
	Engine    engine.Validator
	Manifests *mdl.Registry
	Logger    *slog.Logger
	Retrieval config.RetrievalConfig

	// BaseContext bounds background pipeline work, independent of the
	// submitting request's lifetime. Defaults to context.Background().
	BaseContext context.Context
}

type Service struct {
	deps    Dependencies
	prompts *promptBuilder
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deps.Engine == nil {
		deps.Engine = engine.NoopValidator{}
	}
	if deps.Manifests == nil {
		deps.Manifests = mdl.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Retrieval.TopK <= 0 {
		deps.Retrieval.TopK = 10
	}

	prompts, err := newPromptBuilder(deps.Retrieval.TokenEncoding, deps.Retrieval.ContextTokens)
	if err != nil {
		return nil, err
	}
	return &Service{deps: deps, prompts: prompts}, nil
}

// Result reads a job snapshot. Failed jobs are regular results, the
// error detail rides inside the snapshot.
func (s *Service) Result(id string) (job.Job, error) {
	return s.deps.Jobs.Get(id)
}

// Stop requests cooperative cancellation. The running pipeline honors
// it at its next stage boundary.
func (s *Service) Stop(id string) error {
	return s.deps.Jobs.RequestStop(id)
}

// run executes a pipeline for a job in the background and settles the
// job in exactly one terminal state.
func (s *Service) run(j job.Job, p *pipeline.Pipeline, seed pipeline.Values, finalize func(pipeline.Values) (any, error)) {
	go func() {
		checkpoint := func(context.Context) (bool, error) {
			stopped, err := s.deps.Jobs.Checkpoint(j.ID)
			if err != nil {
				return false, err
			}
			return stopped, nil
		}

		values, err := p.Execute(s.deps.BaseContext, seed, checkpoint)
		if err != nil {
			if errors.Is(err, pipeline.ErrStopped) {
				s.deps.Logger.Info("job stopped", "query_id", j.ID, "kind", j.Kind)
				return
			}
			s.fail(j, err)
			return
		}

		result, err := finalize(values)
		if err != nil {
			s.fail(j, err)
			return
		}
		raw, err := json.Marshal(result)
		if err != nil {
			s.fail(j, fmt.Errorf("encode result: %w", err))
			return
		}
		if err := s.deps.Jobs.Finish(j.ID, raw); err != nil && !errors.Is(err, job.ErrTerminal) {
			s.deps.Logger.Error("finish job", "query_id", j.ID, "error", err)
		}
	}()
}

func (s *Service) fail(j job.Job, err error) {
	code := classifyError(err)
	s.deps.Logger.Error("job failed", "query_id", j.ID, "kind", j.Kind, "code", code, "error", err)
	if failErr := s.deps.Jobs.Fail(j.ID, code, err.Error()); failErr != nil && !errors.Is(failErr, job.ErrTerminal) {
		s.deps.Logger.Error("record job failure", "query_id", j.ID, "error", failErr)
	}
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, errDeploymentNotFound):
		return codeDeploymentNotFound
	case errors.Is(err, errNoContext):
		return codeNoContext
	case errors.Is(err, errInvalidSQL):
		return codeInvalidSQL
	case errors.Is(err, llm.ErrMaxRetriesExceeded), errors.Is(err, llm.ErrAPIKeyNotSet):
		return codeLLMUnavailable
	default:
		return codeInternal
	}
}

// transition moves the job to a working status from inside a stage. A
// terminal record means a stop raced the transition, surface it as a
// stop so the pipeline unwinds cleanly.
func (s *Service) transition(id string, status job.Status) error {
	if err := s.deps.Jobs.Transition(id, status); err != nil {
		if errors.Is(err, job.ErrTerminal) {
			return pipeline.ErrStopped
		}
		return err
	}
	return nil
}

func (s *Service) manifest(deploymentID string) (mdl.Manifest, error) {
	manifest, ok := s.deps.Manifests.Get(deploymentID)
	if !ok {
		return mdl.Manifest{}, fmt.Errorf("%w: %q", errDeploymentNotFound, deploymentID)
	}
	return manifest, nil
}

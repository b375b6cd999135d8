package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/docstore"
	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/pipeline"
)

type SQLExpansionRequest struct {
	Query        string `json:"query"`
	SQL          string `json:"sql"`
	DeploymentID string `json:"deployment_id"`
}

type SQLExpansionResponse struct {
	SQL     string `json:"sql"`
	Summary string `json:"summary"`
}

// SubmitSQLExpansion extends an existing query with a follow-up request,
// re-grounded on the deployment's schema documents.
func (s *Service) SubmitSQLExpansion(req SQLExpansionRequest) (job.Job, error) {
	if strings.TrimSpace(req.Query) == "" {
		return job.Job{}, ErrEmptyQuery
	}
	if strings.TrimSpace(req.SQL) == "" {
		return job.Job{}, ErrEmptySQL
	}
	if strings.TrimSpace(req.DeploymentID) == "" {
		return job.Job{}, fmt.Errorf("deployment_id is required")
	}

	j := s.deps.Jobs.Create(job.KindSQLExpansion, job.StatusUnderstanding)

	stages := []pipeline.Stage{
		{
			Name: "embed",
			Run: func(ctx context.Context, _ pipeline.Values) (any, error) {
				return s.deps.Embedder.Embed(ctx, req.Query)
			},
		},
		{
			Name: "retrieve",
			Need: []string{"embed"},
			Run: func(ctx context.Context, in pipeline.Values) (any, error) {
				if err := s.transition(j.ID, job.StatusSearching); err != nil {
					return nil, err
				}
				embedding := in["embed"].([]float32)
				results, err := s.deps.Docs.Search(ctx, req.DeploymentID, embedding, s.deps.Retrieval.TopK)
				if err != nil {
					return nil, fmt.Errorf("search documents: %w", err)
				}
				if len(results) == 0 {
					return nil, fmt.Errorf("%w for deployment %q", errNoContext, req.DeploymentID)
				}
				return results, nil
			},
		},
		{
			Name: "expand",
			Need: []string{"retrieve"},
			Run: func(ctx context.Context, in pipeline.Values) (any, error) {
				if err := s.transition(j.ID, job.StatusGenerating); err != nil {
					return nil, err
				}
				manifest, err := s.manifest(req.DeploymentID)
				if err != nil {
					return nil, err
				}
				results := in["retrieve"].([]docstore.SearchResult)
				contextBlock := s.prompts.contextBlock(results)

				resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
					System:       expansionSystemPrompt,
					Prompt:       expansionUserPrompt(contextBlock, req.Query, req.SQL),
					JSONResponse: true,
				})
				if err != nil {
					return nil, err
				}
				var expansion SQLExpansionResponse
				if err := decodeResponse(resp.Content, &expansion); err != nil {
					return nil, err
				}
				if strings.TrimSpace(expansion.SQL) == "" {
					return nil, fmt.Errorf("model returned empty sql")
				}

				validation, err := s.deps.Engine.DryRun(ctx, manifest, expansion.SQL)
				if err != nil {
					return nil, fmt.Errorf("dry run: %w", err)
				}
				if !validation.Valid {
					return nil, fmt.Errorf("%w: %s", errInvalidSQL, validation.Error)
				}
				return expansion, nil
			},
		},
	}

	p, err := pipeline.New(stages...)
	if err != nil {
		return job.Job{}, err
	}

	s.run(j, p, pipeline.Values{}, func(values pipeline.Values) (any, error) {
		return values["expand"].(SQLExpansionResponse), nil
	})
	return j, nil
}

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

type AskRequest struct {
	Query        string `json:"query"`
	DeploymentID string `json:"deployment_id"`
}

type AskResponse struct {
	SQL             string   `json:"sql"`
	Summary         string   `json:"summary"`
	Reasoning       string   `json:"reasoning,omitempty"`
	RetrievedTables []string `json:"retrieved_tables,omitempty"`
}

type generation struct {
	SQL       string `json:"sql"`
	Summary   string `json:"summary"`
	Reasoning string `json:"reasoning"`
}

// SubmitAsk starts an ask job and returns its initial snapshot. The
// pipeline runs in the background: embed the question, search the
// deployment's documents, generate SQL, then dry-run it against the
// engine with one correction attempt.
func (s *Service) SubmitAsk(req AskRequest) (job.Job, error) {
	if strings.TrimSpace(req.Query) == "" {
		return job.Job{}, ErrEmptyQuery
	}
	if strings.TrimSpace(req.DeploymentID) == "" {
		return job.Job{}, fmt.Errorf("deployment_id is required")
	}

	j := s.deps.Jobs.Create(job.KindAsk, job.StatusUnderstanding)

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
			Name: "generate",
			Need: []string{"retrieve"},
			Run: func(ctx context.Context, in pipeline.Values) (any, error) {
				if err := s.transition(j.ID, job.StatusGenerating); err != nil {
					return nil, err
				}
				results := in["retrieve"].([]docstore.SearchResult)
				contextBlock := s.prompts.contextBlock(results)
				return s.generateSQL(ctx, req.DeploymentID, req.Query, contextBlock)
			},
		},
	}

	p, err := pipeline.New(stages...)
	if err != nil {
		return job.Job{}, err
	}

	s.run(j, p, pipeline.Values{}, func(values pipeline.Values) (any, error) {
		gen := values["generate"].(generation)
		results := values["retrieve"].([]docstore.SearchResult)
		tables := make([]string, 0, len(results))
		for _, result := range results {
			tables = append(tables, result.Document.Name)
		}
		return AskResponse{
			SQL:             gen.SQL,
			Summary:         gen.Summary,
			Reasoning:       gen.Reasoning,
			RetrievedTables: tables,
		}, nil
	})
	return j, nil
}

// generateSQL runs the generation prompt and validates the result
// against the engine. An engine rejection earns one correction round
// before the job fails.
func (s *Service) generateSQL(ctx context.Context, deploymentID, query, contextBlock string) (generation, error) {
	manifest, err := s.manifest(deploymentID)
	if err != nil {
		return generation{}, err
	}

	gen, err := s.completeGeneration(ctx, askSystemPrompt, askUserPrompt(contextBlock, query))
	if err != nil {
		return generation{}, err
	}

	validation, err := s.deps.Engine.DryRun(ctx, manifest, gen.SQL)
	if err != nil {
		return generation{}, fmt.Errorf("dry run: %w", err)
	}
	if validation.Valid {
		return gen, nil
	}

	s.deps.Logger.Info("regenerating rejected sql", "deployment_id", deploymentID, "engine_error", validation.Error)
	corrected, err := s.completeGeneration(ctx, correctionSystemPrompt, correctionUserPrompt(contextBlock, query, gen.SQL, validation.Error))
	if err != nil {
		return generation{}, err
	}
	validation, err = s.deps.Engine.DryRun(ctx, manifest, corrected.SQL)
	if err != nil {
		return generation{}, fmt.Errorf("dry run: %w", err)
	}
	if !validation.Valid {
		return generation{}, fmt.Errorf("%w: %s", errInvalidSQL, validation.Error)
	}
	return corrected, nil
}

func (s *Service) completeGeneration(ctx context.Context, system, prompt string) (generation, error) {
	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		System:       system,
		Prompt:       prompt,
		JSONResponse: true,
	})
	if err != nil {
		return generation{}, err
	}
	var gen generation
	if err := decodeResponse(resp.Content, &gen); err != nil {
		return generation{}, err
	}
	if strings.TrimSpace(gen.SQL) == "" {
		return generation{}, fmt.Errorf("model returned empty sql")
	}
	return gen, nil
}

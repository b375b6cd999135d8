package assistant

import (
	"context"
	"fmt"

	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/pipeline"
)

type StepWithCorrection struct {
	SQL        string `json:"sql"`
	Summary    string `json:"summary"`
	CTEName    string `json:"cte_name"`
	Correction string `json:"correction,omitempty"`
}

type SQLRegenerationRequest struct {
	Description string               `json:"description"`
	Steps       []StepWithCorrection `json:"steps"`
}

type SQLRegenerationResponse struct {
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// SubmitSQLRegeneration reworks a reviewed breakdown: steps carrying a
// correction are regenerated, the rest are preserved.
func (s *Service) SubmitSQLRegeneration(req SQLRegenerationRequest) (job.Job, error) {
	if len(req.Steps) == 0 {
		return job.Job{}, fmt.Errorf("steps are required")
	}
	corrected := false
	for _, step := range req.Steps {
		if step.Correction != "" {
			corrected = true
			break
		}
	}
	if !corrected {
		return job.Job{}, fmt.Errorf("at least one step needs a correction")
	}

	j := s.deps.Jobs.Create(job.KindSQLRegeneration, job.StatusUnderstanding)

	p, err := pipeline.New(pipeline.Stage{
		Name: "regenerate",
		Run: func(ctx context.Context, _ pipeline.Values) (any, error) {
			if err := s.transition(j.ID, job.StatusGenerating); err != nil {
				return nil, err
			}
			resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
				System:       regenerationSystemPrompt,
				Prompt:       regenerationUserPrompt(req.Description, req.Steps),
				JSONResponse: true,
			})
			if err != nil {
				return nil, err
			}
			var regenerated SQLRegenerationResponse
			if err := decodeResponse(resp.Content, &regenerated); err != nil {
				return nil, err
			}
			if len(regenerated.Steps) == 0 {
				return nil, fmt.Errorf("model returned no steps")
			}
			return regenerated, nil
		},
	})
	if err != nil {
		return job.Job{}, err
	}

	s.run(j, p, pipeline.Values{}, func(values pipeline.Values) (any, error) {
		return values["regenerate"].(SQLRegenerationResponse), nil
	})
	return j, nil
}

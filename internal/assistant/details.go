package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/pipeline"
)

type AskDetailsRequest struct {
	Query   string `json:"query"`
	SQL     string `json:"sql"`
	Summary string `json:"summary,omitempty"`
}

type Step struct {
	SQL     string `json:"sql"`
	Summary string `json:"summary"`
	CTEName string `json:"cte_name"`
}

type AskDetailsResponse struct {
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// SubmitAskDetails breaks a generated query into reviewable CTE steps.
func (s *Service) SubmitAskDetails(req AskDetailsRequest) (job.Job, error) {
	if strings.TrimSpace(req.Query) == "" {
		return job.Job{}, ErrEmptyQuery
	}
	if strings.TrimSpace(req.SQL) == "" {
		return job.Job{}, ErrEmptySQL
	}

	j := s.deps.Jobs.Create(job.KindAskDetails, job.StatusUnderstanding)

	p, err := pipeline.New(pipeline.Stage{
		Name: "breakdown",
		Run: func(ctx context.Context, _ pipeline.Values) (any, error) {
			if err := s.transition(j.ID, job.StatusGenerating); err != nil {
				return nil, err
			}
			resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
				System:       detailsSystemPrompt,
				Prompt:       detailsUserPrompt(req.Query, req.SQL, req.Summary),
				JSONResponse: true,
			})
			if err != nil {
				return nil, err
			}
			var breakdown AskDetailsResponse
			if err := decodeResponse(resp.Content, &breakdown); err != nil {
				return nil, err
			}
			if len(breakdown.Steps) == 0 {
				return nil, fmt.Errorf("model returned no steps")
			}
			return breakdown, nil
		},
	})
	if err != nil {
		return job.Job{}, err
	}

	s.run(j, p, pipeline.Values{}, func(values pipeline.Values) (any, error) {
		return values["breakdown"].(AskDetailsResponse), nil
	})
	return j, nil
}

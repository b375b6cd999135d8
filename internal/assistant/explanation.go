package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/pipeline"
)

type SQLExplanationRequest struct {
	Query string `json:"query"`
	SQL   string `json:"sql"`
}

type Explanation struct {
	Part        string `json:"part"`
	Explanation string `json:"explanation"`
}

type SQLExplanationResponse struct {
	Explanations []Explanation `json:"explanations"`
}

// SubmitSQLExplanation explains each part of a query in plain language.
func (s *Service) SubmitSQLExplanation(req SQLExplanationRequest) (job.Job, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return job.Job{}, ErrEmptySQL
	}

	j := s.deps.Jobs.Create(job.KindSQLExplanation, job.StatusUnderstanding)

	p, err := pipeline.New(pipeline.Stage{
		Name: "explain",
		Run: func(ctx context.Context, _ pipeline.Values) (any, error) {
			if err := s.transition(j.ID, job.StatusGenerating); err != nil {
				return nil, err
			}
			resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
				System:       explanationSystemPrompt,
				Prompt:       explanationUserPrompt(req.Query, req.SQL),
				JSONResponse: true,
			})
			if err != nil {
				return nil, err
			}
			var explanation SQLExplanationResponse
			if err := decodeResponse(resp.Content, &explanation); err != nil {
				return nil, err
			}
			if len(explanation.Explanations) == 0 {
				return nil, fmt.Errorf("model returned no explanations")
			}
			return explanation, nil
		},
	})
	if err != nil {
		return job.Job{}, err
	}

	s.run(j, p, pipeline.Values{}, func(values pipeline.Values) (any, error) {
		return values["explain"].(SQLExplanationResponse), nil
	})
	return j, nil
}

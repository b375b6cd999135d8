package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/pipeline"
)

type ChartRequest struct {
	Query      string          `json:"query"`
	SQL        string          `json:"sql"`
	SampleData json.RawMessage `json:"sample_data,omitempty"`
}

type ChartResponse struct {
	ChartType   string          `json:"chart_type"`
	ChartSchema json.RawMessage `json:"chart_schema"`
	Reasoning   string          `json:"reasoning,omitempty"`
}

var allowedChartTypes = map[string]struct{}{
	"bar": {}, "grouped_bar": {}, "stacked_bar": {},
	"line": {}, "multi_line": {}, "area": {}, "pie": {},
}

// SubmitChart picks a chart type for a query result and renders a
// vega-lite specification for it.
func (s *Service) SubmitChart(req ChartRequest) (job.Job, error) {
	if strings.TrimSpace(req.Query) == "" {
		return job.Job{}, ErrEmptyQuery
	}
	if strings.TrimSpace(req.SQL) == "" {
		return job.Job{}, ErrEmptySQL
	}

	j := s.deps.Jobs.Create(job.KindChart, job.StatusUnderstanding)

	p, err := pipeline.New(pipeline.Stage{
		Name: "chart",
		Run: func(ctx context.Context, _ pipeline.Values) (any, error) {
			if err := s.transition(j.ID, job.StatusGenerating); err != nil {
				return nil, err
			}
			resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
				System:       chartSystemPrompt,
				Prompt:       chartUserPrompt(req.Query, req.SQL, req.SampleData),
				JSONResponse: true,
			})
			if err != nil {
				return nil, err
			}
			var chart ChartResponse
			if err := decodeResponse(resp.Content, &chart); err != nil {
				return nil, err
			}
			if _, ok := allowedChartTypes[chart.ChartType]; !ok {
				return nil, fmt.Errorf("model returned unsupported chart type %q", chart.ChartType)
			}
			if len(chart.ChartSchema) == 0 {
				return nil, fmt.Errorf("model returned empty chart schema")
			}
			return chart, nil
		},
	})
	if err != nil {
		return job.Job{}, err
	}

	s.run(j, p, pipeline.Values{}, func(values pipeline.Values) (any, error) {
		return values["chart"].(ChartResponse), nil
	})
	return j, nil
}

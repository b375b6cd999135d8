package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/querypilot/querypilot/internal/docstore"
)

const (
	defaultTokenEncoding = "cl100k_base"
	defaultContextTokens = 6000
)

// promptBuilder assembles schema context blocks under a token budget.
type promptBuilder struct {
	encoding      *tiktoken.Tiktoken
	contextTokens int
}

func newPromptBuilder(encodingName string, contextTokens int) (*promptBuilder, error) {
	if encodingName == "" {
		encodingName = defaultTokenEncoding
	}
	if contextTokens <= 0 {
		contextTokens = defaultContextTokens
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", encodingName, err)
	}
	return &promptBuilder{encoding: encoding, contextTokens: contextTokens}, nil
}

func (b *promptBuilder) countTokens(text string) int {
	return len(b.encoding.Encode(text, nil, nil))
}

// contextBlock joins retrieved documents in relevance order, dropping
// the tail once the token budget is spent. At least the top document is
// always included.
func (b *promptBuilder) contextBlock(results []docstore.SearchResult) string {
	var blocks []string
	used := 0
	for i, result := range results {
		tokens := b.countTokens(result.Document.Content)
		if i > 0 && used+tokens > b.contextTokens {
			break
		}
		blocks = append(blocks, result.Document.Content)
		used += tokens
	}
	return strings.Join(blocks, "\n\n")
}

const askSystemPrompt = `You are an expert data analyst. Given a database schema and a question,
write a single SQL query that answers the question.
Respond with a JSON object: {"sql": "...", "summary": "...", "reasoning": "..."}.
The sql field holds one SQL statement using only the tables and columns in the schema.
The summary field is one sentence describing what the query returns.`

func askUserPrompt(contextBlock, query string) string {
	return fmt.Sprintf("Schema:\n%s\n\nQuestion:\n%s", contextBlock, strings.TrimSpace(query))
}

const correctionSystemPrompt = `You are an expert data analyst. A SQL query you wrote was rejected by the
database engine. Fix it using only the tables and columns in the schema.
Respond with a JSON object: {"sql": "...", "summary": "...", "reasoning": "..."}.`

func correctionUserPrompt(contextBlock, query, badSQL, engineError string) string {
	return fmt.Sprintf(
		"Schema:\n%s\n\nQuestion:\n%s\n\nRejected SQL:\n%s\n\nEngine error:\n%s",
		contextBlock, strings.TrimSpace(query), badSQL, engineError,
	)
}

const detailsSystemPrompt = `You are an expert data analyst. Break the given SQL query into a sequence
of common table expression steps a reader can follow.
Respond with a JSON object:
{"description": "...", "steps": [{"sql": "...", "summary": "...", "cte_name": "..."}]}.
Every step except the last must have a cte_name; the last step has an empty cte_name
and selects the final result.`

func detailsUserPrompt(query, sql, summary string) string {
	return fmt.Sprintf("Question:\n%s\n\nSummary:\n%s\n\nSQL:\n%s", strings.TrimSpace(query), summary, sql)
}

const expansionSystemPrompt = `You are an expert data analyst. Extend the given SQL query so it also
answers the follow-up request, keeping the original intent intact.
Respond with a JSON object: {"sql": "...", "summary": "..."}.`

func expansionUserPrompt(contextBlock, query, sql string) string {
	return fmt.Sprintf("Schema:\n%s\n\nOriginal SQL:\n%s\n\nFollow-up request:\n%s", contextBlock, sql, strings.TrimSpace(query))
}

const regenerationSystemPrompt = `You are an expert data analyst. A SQL breakdown was reviewed and some
steps received corrections. Regenerate the affected steps, leaving the others intact.
Respond with a JSON object:
{"description": "...", "steps": [{"sql": "...", "summary": "...", "cte_name": "..."}]}.`

func regenerationUserPrompt(description string, steps []StepWithCorrection) string {
	encoded, _ := json.MarshalIndent(steps, "", "  ")
	return fmt.Sprintf("Description:\n%s\n\nSteps with corrections:\n%s", description, string(encoded))
}

const explanationSystemPrompt = `You are an expert data analyst. Explain what each part of the given SQL
query does, in terms a business user understands.
Respond with a JSON object:
{"explanations": [{"part": "...", "explanation": "..."}]}.`

func explanationUserPrompt(query, sql string) string {
	return fmt.Sprintf("Question:\n%s\n\nSQL:\n%s", strings.TrimSpace(query), sql)
}

const chartSystemPrompt = `You are an expert data visualization engineer. Pick the best chart for the
given question and SQL result shape, and produce a vega-lite v5 specification.
Respond with a JSON object:
{"chart_type": "...", "chart_schema": {...}, "reasoning": "..."}.
chart_type is one of: bar, grouped_bar, stacked_bar, line, multi_line, area, pie.`

func chartUserPrompt(query, sql string, sampleData json.RawMessage) string {
	prompt := fmt.Sprintf("Question:\n%s\n\nSQL:\n%s", strings.TrimSpace(query), sql)
	if len(sampleData) > 0 {
		prompt += fmt.Sprintf("\n\nSample data:\n%s", string(sampleData))
	}
	return prompt
}

// stripJSONFence removes a markdown code fence around a JSON payload.
// Models occasionally wrap JSON mode output anyway.
func stripJSONFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func decodeResponse(content string, target any) error {
	if err := json.Unmarshal([]byte(stripJSONFence(content)), target); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

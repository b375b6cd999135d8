package job

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindAsk                  Kind = "ask"
	KindAskDetails           Kind = "ask_details"
	KindSQLExpansion         Kind = "sql_expansion"
	KindSQLRegeneration      Kind = "sql_regeneration"
	KindSQLExplanation       Kind = "sql_explanation"
	KindChart                Kind = "chart"
	KindSemanticsPreparation Kind = "semantics_preparation"
)

type Status string

const (
	StatusUnderstanding Status = "understanding"
	StatusSearching     Status = "searching"
	StatusGenerating    Status = "generating"
	StatusIndexing      Status = "indexing"
	StatusFinished      Status = "finished"
	StatusFailed        Status = "failed"
	StatusStopped       Status = "stopped"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is a point-in-time snapshot of one asynchronous query job. The store
// owns the mutable record; snapshots handed out never alias store state.
type Job struct {
	ID        string          `json:"query_id"`
	Kind      Kind            `json:"kind"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"response,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

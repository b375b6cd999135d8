package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/querypilot/querypilot/internal/job"
)

type stopRequest struct {
	Status string `json:"status"`
}

type submitResponse struct {
	QueryID string `json:"query_id"`
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// writeSubmitted acknowledges an accepted job. Clients poll the result
// endpoint with the returned query ID.
func writeSubmitted(w http.ResponseWriter, j job.Job) {
	writeJSON(w, http.StatusOK, submitResponse{QueryID: j.ID})
}

// writeSubmitError maps submission failures onto the error envelope.
// Anything the service rejects before starting a pipeline is a request
// validation problem.
func writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), false, nil)
}

// fetchJob loads a snapshot and pins it to the operation the route
// serves. IDs from a different operation read as not found.
func fetchJob(w http.ResponseWriter, r *http.Request, fetch func(string) (job.Job, error), kind job.Kind) (job.Job, bool) {
	id := r.PathValue("id")
	snapshot, err := fetch(id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "QUERY_NOT_FOUND", "no job with the given query id", false, map[string]any{"query_id": id})
			return job.Job{}, false
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "JOB_LOOKUP_FAILED", err.Error(), true, nil)
		return job.Job{}, false
	}
	if snapshot.Kind != kind {
		writeError(r.Context(), w, http.StatusNotFound, "QUERY_NOT_FOUND", "query id belongs to a different operation", false, map[string]any{"query_id": id})
		return job.Job{}, false
	}
	return snapshot, true
}

func handleJobResult(w http.ResponseWriter, r *http.Request, fetch func(string) (job.Job, error), kind job.Kind) {
	snapshot, ok := fetchJob(w, r, fetch, kind)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleJobStop requests cooperative cancellation and returns the fresh
// snapshot. Stopping an already terminal job is a no-op.
func handleJobStop(w http.ResponseWriter, r *http.Request, fetch func(string) (job.Job, error), stop func(string) error, kind job.Kind) {
	var request stopRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_JSON", "invalid stop request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.Status != string(job.StatusStopped) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "UNSUPPORTED_STATUS", "only a stopped status can be requested", false, map[string]any{"status": request.Status})
		return
	}
	if _, ok := fetchJob(w, r, fetch, kind); !ok {
		return
	}
	if err := stop(r.PathValue("id")); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "QUERY_NOT_FOUND", "no job with the given query id", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "STOP_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{QueryID: r.PathValue("id")})
}

func handleAssistantResult(deps Dependencies, w http.ResponseWriter, r *http.Request, kind job.Kind) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}
	handleJobResult(w, r, deps.Assistant.Result, kind)
}

func handleAssistantStop(deps Dependencies, w http.ResponseWriter, r *http.Request, kind job.Kind) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}
	handleJobStop(w, r, deps.Assistant.Result, deps.Assistant.Stop, kind)
}

package api

import (
	"net/http"

	"github.com/querypilot/querypilot/internal/indexing"
	"github.com/querypilot/querypilot/internal/job"
)

func handleSubmitPreparation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Indexing == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INDEXING_NOT_CONFIGURED", "indexing dependencies are not configured", false, nil)
		return
	}

	var request indexing.PreparationRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_JSON", "invalid semantics preparation request body", false, map[string]any{"details": err.Error()})
		return
	}

	snapshot, err := deps.Indexing.SubmitPreparation(request)
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	writeSubmitted(w, snapshot)
}

func handlePreparationStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Indexing == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INDEXING_NOT_CONFIGURED", "indexing dependencies are not configured", false, nil)
		return
	}
	handleJobResult(w, r, deps.Indexing.Status, job.KindSemanticsPreparation)
}

func handlePreparationStop(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Indexing == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INDEXING_NOT_CONFIGURED", "indexing dependencies are not configured", false, nil)
		return
	}
	handleJobStop(w, r, deps.Indexing.Status, deps.Indexing.Stop, job.KindSemanticsPreparation)
}

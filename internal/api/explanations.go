package api

import (
	"net/http"

	"github.com/querypilot/querypilot/internal/assistant"
)

func handleSubmitSQLExplanation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return
	}

	var request assistant.SQLExplanationRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_JSON", "invalid sql explanation request body", false, map[string]any{"details": err.Error()})
		return
	}

	snapshot, err := deps.Assistant.SubmitSQLExplanation(request)
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	writeSubmitted(w, snapshot)
}

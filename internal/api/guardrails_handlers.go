package api

import (
	"encoding/json"
	"net/http"

	"github.com/radiantcrm/triage-engine/internal/service/guardrails"
)

// HandleGetGuardrails returns the organization's guardrail settings,
// creating conservative defaults on first read.
//
//	GET /api/guardrails
func (h *Handlers) HandleGetGuardrails(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	settings, err := h.guardrails.Get(r.Context(), orgID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// HandleUpdateGuardrails applies a partial settings update and returns
// the full resolved settings. Changes take effect on the next policy
// evaluation; nothing already queued is re-judged retroactively.
//
//	PATCH /api/guardrails
func (h *Handlers) HandleUpdateGuardrails(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	var patch guardrails.UpdatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := h.guardrails.Update(r.Context(), orgID, patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.engine.MarkInteraction(orgID)
	respondJSON(w, http.StatusOK, settings)
}

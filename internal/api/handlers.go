package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/radiantcrm/triage-engine/internal/engine"
	"github.com/radiantcrm/triage-engine/internal/service/guardrails"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// Handlers contains all HTTP handlers for the triage API.
type Handlers struct {
	inbox      *inbox.Service
	guardrails *guardrails.Service
	engine     *engine.Manager
	autopilot  *engine.Autopilot
	startTime  time.Time
}

// NewHandlers creates a Handlers instance wired to the services.
func NewHandlers(inboxSvc *inbox.Service, guardrailsSvc *guardrails.Service, eng *engine.Manager) *Handlers {
	return &Handlers{
		inbox:      inboxSvc,
		guardrails: guardrailsSvc,
		engine:     eng,
		startTime:  time.Now(),
	}
}

// SetAutopilot attaches the automated-send worker so its counters show
// up in system status. Optional; deployments without autopilot skip it.
func (h *Handlers) SetAutopilot(a *engine.Autopilot) {
	h.autopilot = a
}

// GetSystemStatus reports engine scheduler and autopilot counters for
// the requesting organization.
func (h *Handlers) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	status := map[string]interface{}{
		"uptime":     formatUptime(time.Since(h.startTime)),
		"schedulers": h.engine.Stats(orgID),
	}
	if h.autopilot != nil {
		sent, skipped, errs := h.autopilot.Stats()
		status["autopilot"] = map[string]int64{
			"sent":    sent,
			"skipped": skipped,
			"errors":  errs,
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/engine"
)

type syncRequest struct {
	Channel string `json:"channel"`
	Force   bool   `json:"force"`
}

// HandleTriggerSync runs or queues a sync for the organization. A
// forced sync cancels any in-flight tick, runs now, and reports its
// result; a non-forced one coalesces with whatever tick is running.
// Sync failures are data, not request failures: they come back 200
// with ok=false and land in the sync state rows.
//
//	POST /api/inbox/sync
func (h *Handlers) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel != "" && !domain.IsValidChannel(req.Channel) {
		respondError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	if !req.Force {
		var err error
		if req.Channel == "" {
			err = h.engine.EnsureOrg(r.Context(), orgID)
			h.engine.WakeIfStale(orgID)
		} else {
			err = h.engine.QueueSync(r.Context(), orgID, domain.ChannelKind(req.Channel))
		}
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]interface{}{"ok": true, "queued": true})
		return
	}

	var err error
	if req.Channel == "" {
		err = h.engine.ForceSyncAll(r.Context(), orgID)
	} else {
		err = h.engine.ForceSync(r.Context(), orgID, domain.ChannelKind(req.Channel))
	}
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	case errors.Is(err, engine.ErrChannelNotConfigured):
		respondServiceError(w, err)
	case r.Context().Err() != nil:
		// Caller went away mid-sync; nothing useful to answer.
		respondError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		// The sync ran and failed; the failure is recorded in sync state.
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": safeErrorMessage(http.StatusInternalServerError, err),
		})
	}
}

// HandleSyncState returns persisted sync health per channel plus live
// scheduler counters.
//
//	GET /api/inbox/sync
func (h *Handlers) HandleSyncState(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	sync, err := h.inbox.SyncOverview(r.Context(), orgID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sync":       sync,
		"schedulers": h.engine.Stats(orgID),
	})
}

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/pkg/metrics"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	// maxBulkItems bounds one bulk request.
	maxBulkItems = 100
)

// HandleListItems returns a page of annotated items plus sync health.
//
//	GET /api/inbox/items?status=&channel=&category=&risk=&search=&page=&page_size=
func (h *Handlers) HandleListItems(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	// First touch spins this tenant's schedulers up, and a stale channel
	// gets its next tick pulled forward while someone is looking.
	if err := h.engine.EnsureOrg(r.Context(), orgID); err != nil {
		log.Printf("[api] Engine ensure for org %s failed: %v", orgID, err)
	}
	h.engine.WakeIfStale(orgID)

	q := r.URL.Query()
	if s := q.Get("status"); s != "" && !domain.IsValidItemStatus(s) {
		respondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	if c := q.Get("channel"); c != "" && !domain.IsValidChannel(c) {
		respondError(w, http.StatusBadRequest, "unknown channel filter")
		return
	}

	params := ParsePagination(r, defaultPageSize, maxPageSize)
	filter := inbox.ListFilter{
		Status:   q.Get("status"),
		Channel:  q.Get("channel"),
		Category: q.Get("category"),
		Risk:     q.Get("risk"),
		Search:   q.Get("search"),
		Limit:    params.PageSize,
		Offset:   params.Offset,
	}

	res, err := h.inbox.List(r.Context(), orgID, filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":      res.Items,
		"sync":       res.Sync,
		"pagination": NewPaginationMeta(params, res.Total),
	})
}

// HandleItemDetail returns one item with verdict and action history.
//
//	GET /api/inbox/items/{itemID}
func (h *Handlers) HandleItemDetail(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemID")

	detail, err := h.inbox.Detail(r.Context(), orgID, itemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

type actionRequest struct {
	Action       string  `json:"action"`
	DraftSubject *string `json:"draft_subject,omitempty"`
	DraftBody    *string `json:"draft_body,omitempty"`
}

// draft returns the riding draft edit, or nil when the request carried
// no draft fields at all.
func (req *actionRequest) draft() *inbox.DraftContent {
	if req.DraftSubject == nil && req.DraftBody == nil {
		return nil
	}
	d := &inbox.DraftContent{}
	if req.DraftSubject != nil {
		d.Subject = *req.DraftSubject
	}
	if req.DraftBody != nil {
		d.Body = *req.DraftBody
	}
	return d
}

// HandleApplyAction applies one lifecycle action to one item.
//
//	POST /api/inbox/items/{itemID}/action
func (h *Handlers) HandleApplyAction(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemID")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		respondError(w, http.StatusBadRequest, "action is required")
		return
	}

	res, err := h.inbox.Apply(r.Context(), orgID, itemID, domain.Action(req.Action), req.draft(), domain.ActorUser)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// Hold imminent refreshes off the tenant while the edit settles.
	h.engine.MarkInteraction(orgID)
	metrics.RecordAction(req.Action, string(domain.ActorUser))

	respondJSON(w, http.StatusOK, res)
}

type bulkRequest struct {
	ItemIDs []string `json:"item_ids"`
	Action  string   `json:"action"`
}

// HandleBulkApply fans one action out over many items. Items succeed
// and fail independently; the summary always comes back 200.
//
//	POST /api/inbox/bulk
func (h *Handlers) HandleBulkApply(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ItemIDs) == 0 {
		respondError(w, http.StatusBadRequest, "item_ids is required")
		return
	}
	if len(req.ItemIDs) > maxBulkItems {
		respondError(w, http.StatusBadRequest, "too many items in one request")
		return
	}
	if !domain.IsValidAction(domain.Action(req.Action)) || !domain.Action(req.Action).IsUserAction() {
		respondError(w, http.StatusBadRequest, "unknown action")
		return
	}

	res, err := h.inbox.BulkApply(r.Context(), orgID, req.ItemIDs, domain.Action(req.Action), domain.ActorUser)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.engine.MarkInteraction(orgID)
	metrics.RecordAction(req.Action, string(domain.ActorUser))

	respondJSON(w, http.StatusOK, res)
}

// HandleStats returns triage counters for the organization.
//
//	GET /api/inbox/stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	orgID := OrgIDFromContext(r.Context())

	stats, err := h.inbox.Stats(r.Context(), orgID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

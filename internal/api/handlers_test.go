package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcrm/triage-engine/internal/channel"
	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/engine"
	"github.com/radiantcrm/triage-engine/internal/service/guardrails"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

const testOrg = "org-test"

// ---------------------------------------------------------------------------
// In-memory backing stores
// ---------------------------------------------------------------------------

// memItems backs the inbox repository, action log, and send quota with
// plain maps so handler tests run against the real service stack.
type memItems struct {
	mu    sync.Mutex
	items map[string]*domain.InboundItem
	log   []domain.ActionLogEntry
	sends int
}

func newMemItems() *memItems {
	return &memItems{items: make(map[string]*domain.InboundItem)}
}

func (m *memItems) add(items ...*domain.InboundItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		cp := *it
		m.items[it.ID] = &cp
	}
}

func (m *memItems) get(id string) *domain.InboundItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		cp := *it
		return &cp
	}
	return nil
}

func (m *memItems) Get(ctx context.Context, orgID, id string) (*domain.InboundItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.OrganizationID != orgID {
		return nil, inbox.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memItems) List(ctx context.Context, orgID string, f inbox.ListFilter) ([]domain.InboundItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.InboundItem
	for _, it := range m.items {
		if it.OrganizationID != orgID {
			continue
		}
		if f.Status != "" && string(it.Status) != f.Status {
			continue
		}
		if f.Channel != "" && string(it.Channel) != f.Channel {
			continue
		}
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memItems) UpdateStatus(ctx context.Context, orgID, id string, from, to domain.ItemStatus, actedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.OrganizationID != orgID {
		return inbox.ErrNotFound
	}
	if it.Status != from {
		return inbox.ErrConflict
	}
	it.Status = to
	it.ActedAt = &actedAt
	it.UpdatedAt = actedAt
	return nil
}

func (m *memItems) UpdateDraft(ctx context.Context, orgID, id, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.OrganizationID != orgID {
		return inbox.ErrNotFound
	}
	it.DraftSubject = subject
	it.DraftBody = body
	return nil
}

func (m *memItems) CountProcessedLifetime(ctx context.Context, orgID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.OrganizationID == orgID && it.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (m *memItems) StatusCounts(ctx context.Context, orgID string) (map[domain.ItemStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.ItemStatus]int)
	for _, it := range m.items {
		if it.OrganizationID == orgID {
			counts[it.Status]++
		}
	}
	return counts, nil
}

func (m *memItems) ChannelCounts(ctx context.Context, orgID string) (map[domain.ChannelKind]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.ChannelKind]int)
	for _, it := range m.items {
		if it.OrganizationID == orgID {
			counts[it.Channel]++
		}
	}
	return counts, nil
}

func (m *memItems) Insert(ctx context.Context, e *domain.ActionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, *e)
	return nil
}

func (m *memItems) ListForItem(ctx context.Context, orgID, itemID string, limit int) ([]domain.ActionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActionLogEntry
	for _, e := range m.log {
		if e.OrganizationID == orgID && e.ItemID == itemID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memItems) logEntries() []domain.ActionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ActionLogEntry(nil), m.log...)
}

func (m *memItems) CountToday(ctx context.Context, orgID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends, nil
}

func (m *memItems) TryClaim(ctx context.Context, orgID string, cap int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sends >= cap {
		return false, m.sends, nil
	}
	m.sends++
	return true, m.sends, nil
}

func (m *memItems) Release(ctx context.Context, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sends > 0 {
		m.sends--
	}
	return nil
}

// Upsert implements the engine's item writer, deduplicating on
// (organization, channel, external id) like the real store.
func (m *memItems) Upsert(ctx context.Context, it *domain.InboundItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.OrganizationID == it.OrganizationID &&
			existing.Channel == it.Channel &&
			existing.ExternalID == it.ExternalID {
			return false, nil
		}
	}
	cp := *it
	m.items[it.ID] = &cp
	return true, nil
}

// memSyncStates backs both the engine's sync state store and the inbox
// service's sync state reader.
type memSyncStates struct {
	mu     sync.Mutex
	states map[domain.ChannelKind]*domain.ChannelSyncState
}

func newMemSyncStates() *memSyncStates {
	return &memSyncStates{states: make(map[domain.ChannelKind]*domain.ChannelSyncState)}
}

func (m *memSyncStates) ensure(orgID string, ch domain.ChannelKind) *domain.ChannelSyncState {
	st, ok := m.states[ch]
	if !ok {
		st = &domain.ChannelSyncState{OrganizationID: orgID, Channel: ch}
		m.states[ch] = st
	}
	return st
}

func (m *memSyncStates) Get(ctx context.Context, orgID string, ch domain.ChannelKind) (*domain.ChannelSyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[ch]
	if !ok {
		return nil, inbox.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memSyncStates) Cursor(ctx context.Context, orgID string, ch domain.ChannelKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[ch]; ok {
		return st.Cursor, nil
	}
	return "", nil
}

func (m *memSyncStates) RecordAttempt(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(orgID, ch)
	st.LastAttemptAt = &at
	return nil
}

func (m *memSyncStates) RecordSuccess(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(orgID, ch)
	st.LastSuccessAt = &at
	st.Cursor = cursor
	st.LastError = ""
	st.ConsecutiveFailures = 0
	return nil
}

func (m *memSyncStates) RecordFailure(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensure(orgID, ch)
	st.LastErrorAt = &at
	st.LastError = msg
	st.ConsecutiveFailures++
	return nil
}

// memGuardrails backs the guardrails repository.
type memGuardrails struct {
	mu   sync.Mutex
	rows map[string]*domain.GuardrailSettings
}

func newMemGuardrails() *memGuardrails {
	return &memGuardrails{rows: make(map[string]*domain.GuardrailSettings)}
}

func (m *memGuardrails) Get(ctx context.Context, orgID string) (*domain.GuardrailSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[orgID]
	if !ok {
		return nil, guardrails.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memGuardrails) Upsert(ctx context.Context, s *domain.GuardrailSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.OrganizationID] = &cp
	return nil
}

// stubConnector is a scriptable provider connector.
type stubConnector struct {
	kind domain.ChannelKind

	mu      sync.Mutex
	pulls   int
	sent    []string
	page    *channel.PullResult
	pullErr error
	sendErr error
}

func (c *stubConnector) Kind() domain.ChannelKind { return c.kind }

func (c *stubConnector) Pull(ctx context.Context, cursor string) (*channel.PullResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulls++
	if c.pullErr != nil {
		return nil, c.pullErr
	}
	if c.page == nil {
		return &channel.PullResult{}, nil
	}
	return c.page, nil
}

func (c *stubConnector) Send(ctx context.Context, item *domain.InboundItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, item.ID)
	return nil
}

func (c *stubConnector) pullCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulls
}

func (c *stubConnector) sentIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

type testEnv struct {
	items   *memItems
	states  *memSyncStates
	email   *stubConnector
	calls   *stubConnector
	manager *engine.Manager
	router  http.Handler
}

// newTestEnv wires the full API stack over in-memory stores: real
// services, real routing, stub providers.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	email := &stubConnector{kind: domain.ChannelEmail}
	calls := &stubConnector{kind: domain.ChannelCall}
	return newTestEnvWith(t, email, calls)
}

func newTestEnvWith(t *testing.T, connectors ...channel.Connector) *testEnv {
	t.Helper()

	items := newMemItems()
	states := newMemSyncStates()
	registry := channel.NewRegistry(connectors...)
	guardrailsSvc := guardrails.NewService(newMemGuardrails())

	// Hour-long intervals keep the schedulers quiet; syncs in these
	// tests happen only when a request forces them.
	manager := engine.NewManager(registry, items, states, guardrailsSvc, engine.ManagerConfig{
		BaseIntervals: map[domain.ChannelKind]time.Duration{
			domain.ChannelEmail: time.Hour,
			domain.ChannelCall:  time.Hour,
		},
		BackoffCap:      time.Hour,
		StaleFastDelay:  time.Hour,
		InteractionHold: time.Millisecond,
	})
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	inboxSvc := inbox.NewService(items, items, states, guardrailsSvc, items, registry)

	h := NewHandlers(inboxSvc, guardrailsSvc, manager)
	hc := NewHealthChecker(nil, nil, manager)
	router := SetupRoutes(h, hc, NewOrgResolver(""), nil)

	env := &testEnv{items: items, states: states, manager: manager, router: router}
	for _, c := range connectors {
		stub, ok := c.(*stubConnector)
		if !ok {
			continue
		}
		switch stub.kind {
		case domain.ChannelEmail:
			env.email = stub
		case domain.ChannelCall:
			env.calls = stub
		}
	}
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("X-Organization-ID", testOrg)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), "body: %s", rec.Body.String())
	return m
}

// seedItem stores a reviewable email item with a ready draft. Each seed
// is a minute older than the previous one so listings are stable.
func (e *testEnv) seedItem(id string, mut ...func(*domain.InboundItem)) *domain.InboundItem {
	conf := 0.95
	e.items.mu.Lock()
	age := time.Duration(len(e.items.items)) * time.Minute
	e.items.mu.Unlock()
	created := time.Now().Add(-time.Minute - age)

	it := &domain.InboundItem{
		ID:             id,
		OrganizationID: testOrg,
		Channel:        domain.ChannelEmail,
		ExternalID:     "ext-" + id,
		Sender:         "pat@example.com",
		Subject:        "Reschedule my appointment",
		Preview:        "Hi, can we move my Thursday visit?",
		Category:       "scheduling",
		Priority:       domain.PriorityNormal,
		Risk:           domain.RiskSafe,
		Confidence:     &conf,
		Status:         domain.StatusQueuedForReview,
		DraftSubject:   "Re: Reschedule my appointment",
		DraftBody:      "We have you down for Thursday at 2pm.",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, m := range mut {
		m(it)
	}
	e.items.add(it)
	return it
}

// ---------------------------------------------------------------------------
// Organization context
// ---------------------------------------------------------------------------

func TestRequireOrgContext(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/inbox/items", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "organization context required", body["error"])

	// The org_id query parameter is an accepted fallback.
	req = httptest.NewRequest(http.MethodGet, "/api/inbox/items?org_id="+testOrg, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrgResolverDevFallback(t *testing.T) {
	resolver := NewOrgResolver("org-dev")

	req := httptest.NewRequest(http.MethodGet, "/api/inbox/items", nil)
	assert.Equal(t, "org-dev", resolver.Resolve(req))

	req.Header.Set("X-Organization-ID", "org-real")
	assert.Equal(t, "org-real", resolver.Resolve(req))
}

// ---------------------------------------------------------------------------
// Inbox listing and detail
// ---------------------------------------------------------------------------

func TestListItems(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")
	env.seedItem("it-2")
	env.seedItem("it-3", func(it *domain.InboundItem) {
		it.Channel = domain.ChannelCall
		it.Subject = "Voicemail about billing"
		it.Category = "billing"
	})

	rec := env.request(t, http.MethodGet, "/api/inbox/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	items := body["items"].([]interface{})
	require.Len(t, items, 3)

	// Every item carries a freshly computed verdict. A brand new tenant
	// is inside its approval runway, so even clean items need review.
	first := items[0].(map[string]interface{})
	assert.Equal(t, "needs_review", first["verdict"])
	assert.Equal(t, "approval_runway", first["verdict_reason"])

	syncRows := body["sync"].([]interface{})
	require.Len(t, syncRows, 2)
	for _, row := range syncRows {
		assert.True(t, row.(map[string]interface{})["is_stale"].(bool), "never-synced channels report stale")
	}

	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(3), pagination["total"])
}

func TestListItemsChannelFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")
	env.seedItem("it-2", func(it *domain.InboundItem) { it.Channel = domain.ChannelCall })

	rec := env.request(t, http.MethodGet, "/api/inbox/items?channel=call", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "it-2", items[0].(map[string]interface{})["id"])
}

func TestListItemsRejectsUnknownFilters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/inbox/items?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown status filter", decodeBody(t, rec)["error"])

	rec = env.request(t, http.MethodGet, "/api/inbox/items?channel=fax", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown channel filter", decodeBody(t, rec)["error"])
}

func TestListItemsPagination(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"it-1", "it-2", "it-3", "it-4", "it-5"} {
		env.seedItem(id)
	}

	rec := env.request(t, http.MethodGet, "/api/inbox/items?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["items"].([]interface{}), 2)

	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), pagination["page"])
	assert.Equal(t, float64(2), pagination["page_size"])
	assert.Equal(t, float64(5), pagination["total"])
	assert.Equal(t, float64(3), pagination["total_pages"])
	assert.Equal(t, true, pagination["has_more"])
}

func TestListItemsClampsPageSize(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/inbox/items?page_size=10000", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pagination := decodeBody(t, rec)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(maxPageSize), pagination["page_size"])
}

func TestItemDetail(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")

	rec := env.request(t, http.MethodGet, "/api/inbox/items/it-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "it-1", body["id"])
	assert.Equal(t, "needs_review", body["verdict"])
	assert.Contains(t, body, "history")
}

func TestItemDetailNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/inbox/items/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "item not found", decodeBody(t, rec)["error"])
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

func TestApplyActionApprove(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")

	rec := env.request(t, http.MethodPost, "/api/inbox/items/it-1/action",
		map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, "queued_for_review", body["from_status"])
	assert.Equal(t, "sent", body["to_status"])

	// The reply went out through the provider and the store agrees.
	assert.Equal(t, []string{"it-1"}, env.email.sentIDs())
	assert.Equal(t, domain.StatusSent, env.items.get("it-1").Status)

	entries := env.items.logEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionApprove, entries[0].Action)
	assert.Equal(t, domain.ActorUser, entries[0].Actor)
}

func TestApplyActionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1", func(it *domain.InboundItem) { it.Status = domain.StatusSent })

	rec := env.request(t, http.MethodPost, "/api/inbox/items/it-1/action",
		map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["applied"])
	assert.Empty(t, env.email.sentIDs(), "terminal items never re-dispatch")
}

func TestApplyActionValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")

	rec := env.request(t, http.MethodPost, "/api/inbox/items/it-1/action", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "action is required", decodeBody(t, rec)["error"])

	rec = env.request(t, http.MethodPost, "/api/inbox/items/it-1/action",
		map[string]string{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown action", decodeBody(t, rec)["error"])

	// auto_send is reserved for the autopilot actor.
	rec = env.request(t, http.MethodPost, "/api/inbox/items/it-1/action",
		map[string]string{"action": "auto_send"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "action not available", decodeBody(t, rec)["error"])
}

func TestApplyActionNoDraft(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1", func(it *domain.InboundItem) {
		it.DraftSubject = ""
		it.DraftBody = ""
	})

	rec := env.request(t, http.MethodPost, "/api/inbox/items/it-1/action",
		map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "item has no draft reply", decodeBody(t, rec)["error"])
	assert.Empty(t, env.email.sentIDs())
}

func TestApplyActionDraftRidesAlong(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")

	rec := env.request(t, http.MethodPost, "/api/inbox/items/it-1/action", map[string]string{
		"action":        "save_draft",
		"draft_subject": "Re: your visit",
		"draft_body":    "Thursday at 2pm works.",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["applied"])
	assert.Equal(t, "Thursday at 2pm works.", env.items.get("it-1").DraftBody)

	// Saving again from draft_created is a no-op transition, but the
	// draft content still lands.
	rec = env.request(t, http.MethodPost, "/api/inbox/items/it-1/action", map[string]string{
		"action":     "save_draft",
		"draft_body": "Friday at 9am works better.",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["applied"])
	assert.Equal(t, "Friday at 9am works better.", env.items.get("it-1").DraftBody)
}

func TestApplyActionSkipBlockedItem(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1", func(it *domain.InboundItem) { it.Risk = domain.RiskBlocked })

	rec := env.request(t, http.MethodPost, "/api/inbox/items/it-1/action",
		map[string]string{"action": "skip"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "skipped_blocked", body["to_status"])

	entries := env.items.logEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "risk_blocked", entries[0].Reason)
}

func TestBulkApply(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")
	env.seedItem("it-2")

	rec := env.request(t, http.MethodPost, "/api/inbox/bulk", map[string]interface{}{
		"item_ids": []string{"it-1", "it-2", "it-missing"},
		"action":   "skip",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["succeeded"])
	assert.Equal(t, float64(1), body["failed"])

	results := body["results"].([]interface{})
	require.Len(t, results, 3)
	byID := make(map[string]map[string]interface{})
	for _, r := range results {
		m := r.(map[string]interface{})
		byID[m["item_id"].(string)] = m
	}
	assert.Equal(t, true, byID["it-1"]["applied"])
	assert.Equal(t, "item not found", byID["it-missing"]["error"])

	assert.Equal(t, domain.StatusSkippedManual, env.items.get("it-1").Status)
	assert.Equal(t, domain.StatusSkippedManual, env.items.get("it-2").Status)
}

func TestBulkApplyValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/inbox/bulk", map[string]interface{}{
		"item_ids": []string{},
		"action":   "skip",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "item_ids is required", decodeBody(t, rec)["error"])

	rec = env.request(t, http.MethodPost, "/api/inbox/bulk", map[string]interface{}{
		"item_ids": []string{"it-1"},
		"action":   "auto_send",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown action", decodeBody(t, rec)["error"])

	ids := make([]string, maxBulkItems+1)
	for i := range ids {
		ids[i] = "it-x"
	}
	rec = env.request(t, http.MethodPost, "/api/inbox/bulk", map[string]interface{}{
		"item_ids": ids,
		"action":   "skip",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "too many items in one request", decodeBody(t, rec)["error"])
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedItem("it-1")
	env.seedItem("it-2")
	env.seedItem("it-3", func(it *domain.InboundItem) { it.Status = domain.StatusSent })

	rec := env.request(t, http.MethodGet, "/api/inbox/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["pending_review"])
	assert.Equal(t, float64(1), body["processed_lifetime"])
	assert.Equal(t, float64(0), body["sent_today"])
	assert.Equal(t, float64(25), body["daily_send_cap"])
	assert.Equal(t, false, body["auto_send_enabled"])
}

// ---------------------------------------------------------------------------
// Guardrails
// ---------------------------------------------------------------------------

func TestGuardrailsDefaultsOnFirstRead(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/guardrails", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, testOrg, body["organization_id"])
	assert.Equal(t, false, body["enable_auto_send"])
	assert.Equal(t, true, body["enable_auto_draft"])
	assert.Equal(t, float64(25), body["daily_send_cap"])
	assert.Equal(t, float64(600), body["stale_threshold_seconds"])
}

func TestGuardrailsPatch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPatch, "/api/guardrails", map[string]interface{}{
		"enable_auto_send": true,
		"daily_send_cap":   75,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["enable_auto_send"])
	assert.Equal(t, float64(75), body["daily_send_cap"])
	// Untouched fields keep their values.
	assert.Equal(t, float64(80), body["auto_send_min_confidence"])

	rec = env.request(t, http.MethodGet, "/api/guardrails", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(75), decodeBody(t, rec)["daily_send_cap"])
}

func TestGuardrailsPatchRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPatch, "/api/guardrails", map[string]interface{}{
		"auto_send_min_confidence": 250,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "auto_send_min_confidence")

	req := httptest.NewRequest(http.MethodPatch, "/api/guardrails", strings.NewReader("{not json"))
	req.Header.Set("X-Organization-ID", testOrg)
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
	assert.Equal(t, "invalid request body", decodeBody(t, rec2)["error"])
}

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

func TestTriggerSyncForce(t *testing.T) {
	env := newTestEnv(t)
	env.email.page = &channel.PullResult{
		Items: []channel.RemoteItem{
			{ExternalID: "m-1", Sender: "a@clinic.test", Subject: "First"},
			{ExternalID: "m-2", Sender: "b@clinic.test", Subject: "Second"},
		},
		NextCursor: "cur-1",
	}

	rec := env.request(t, http.MethodPost, "/api/inbox/sync",
		map[string]interface{}{"channel": "email", "force": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
	assert.Equal(t, 1, env.email.pullCount())

	// Pulled items are visible in the inbox immediately.
	rec = env.request(t, http.MethodGet, "/api/inbox/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"].([]interface{}), 2)

	st, err := env.states.Get(context.Background(), testOrg, domain.ChannelEmail)
	require.NoError(t, err)
	assert.NotNil(t, st.LastSuccessAt)
	assert.Equal(t, "cur-1", st.Cursor)
}

func TestTriggerSyncForceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.email.pullErr = errors.New("provider returned status 503")

	rec := env.request(t, http.MethodPost, "/api/inbox/sync",
		map[string]interface{}{"channel": "email", "force": true})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "an internal error occurred", body["error"])

	st, err := env.states.Get(context.Background(), testOrg, domain.ChannelEmail)
	require.NoError(t, err)
	assert.Contains(t, st.LastError, "status 503")
	assert.Equal(t, 1, st.ConsecutiveFailures)
}

func TestTriggerSyncQueued(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/inbox/sync",
		map[string]interface{}{"channel": "email"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["queued"])
}

func TestTriggerSyncUnknownChannel(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/inbox/sync",
		map[string]interface{}{"channel": "fax", "force": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown channel", decodeBody(t, rec)["error"])
}

func TestTriggerSyncChannelNotConfigured(t *testing.T) {
	// Email-only deployment; the calls channel has no connector.
	env := newTestEnvWith(t, &stubConnector{kind: domain.ChannelEmail})

	rec := env.request(t, http.MethodPost, "/api/inbox/sync",
		map[string]interface{}{"channel": "call", "force": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "channel not configured for this deployment", decodeBody(t, rec)["error"])
}

func TestSyncStateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.email.page = &channel.PullResult{NextCursor: "cur-9"}

	rec := env.request(t, http.MethodPost, "/api/inbox/sync",
		map[string]interface{}{"channel": "email", "force": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/inbox/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	syncRows := body["sync"].([]interface{})
	require.Len(t, syncRows, 2)

	byChannel := make(map[string]map[string]interface{})
	for _, row := range syncRows {
		m := row.(map[string]interface{})
		byChannel[m["channel"].(string)] = m
	}
	assert.NotNil(t, byChannel["email"]["last_success_at"])
	assert.False(t, byChannel["email"]["is_stale"].(bool))
	assert.True(t, byChannel["call"]["is_stale"].(bool))

	schedulers := body["schedulers"].(map[string]interface{})
	assert.Contains(t, schedulers, "email")
}

// ---------------------------------------------------------------------------
// System surfaces
// ---------------------------------------------------------------------------

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)

	// Touch the tenant so its schedulers exist.
	env.request(t, http.MethodGet, "/api/inbox/items", nil)

	rec := env.request(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "uptime")
	schedulers := body["schedulers"].(map[string]interface{})
	assert.Len(t, schedulers, 2)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "up", checks["engine"].(map[string]interface{})["status"])

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decodeBody(t, rec)["status"])

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/inbox/items", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 10s", formatUptime(2*time.Minute+10*time.Second))
	assert.Equal(t, "1h 0m 30s", formatUptime(time.Hour+30*time.Second))
	assert.Equal(t, "3d 4h 12m 5s", formatUptime(3*24*time.Hour+4*time.Hour+12*time.Minute+5*time.Second))
}

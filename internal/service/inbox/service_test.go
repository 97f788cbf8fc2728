package inbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/policy"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// memItems is an in-memory item repository for unit testing.
type memItems struct {
	mu    sync.Mutex
	items map[string]*domain.InboundItem // keyed by id
}

func newMemItems() *memItems {
	return &memItems{items: make(map[string]*domain.InboundItem)}
}

func (m *memItems) Get(_ context.Context, orgID, id string) (*domain.InboundItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.OrganizationID != orgID {
		return nil, inbox.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memItems) List(_ context.Context, orgID string, f inbox.ListFilter) ([]domain.InboundItem, int, error) {
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
		out = append(out, *it)
	}
	return out, len(out), nil
}

func (m *memItems) UpdateStatus(_ context.Context, orgID, id string, from, to domain.ItemStatus, actedAt time.Time) error {
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

func (m *memItems) UpdateDraft(_ context.Context, orgID, id, subject, body string) error {
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

func (m *memItems) CountProcessedLifetime(_ context.Context, orgID string) (int, error) {
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

func (m *memItems) StatusCounts(_ context.Context, orgID string) (map[domain.ItemStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ItemStatus]int)
	for _, it := range m.items {
		if it.OrganizationID == orgID {
			out[it.Status]++
		}
	}
	return out, nil
}

func (m *memItems) ChannelCounts(_ context.Context, orgID string) (map[domain.ChannelKind]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ChannelKind]int)
	for _, it := range m.items {
		if it.OrganizationID == orgID {
			out[it.Channel]++
		}
	}
	return out, nil
}

// memActions is an in-memory audit log.
type memActions struct {
	mu      sync.Mutex
	entries []domain.ActionLogEntry
}

func (m *memActions) Insert(_ context.Context, e *domain.ActionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memActions) ListForItem(_ context.Context, orgID, itemID string, _ int) ([]domain.ActionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActionLogEntry
	for _, e := range m.entries {
		if e.OrganizationID == orgID && e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memActions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// memSync holds per-channel sync state keyed by org+channel.
type memSync struct {
	mu     sync.Mutex
	states map[string]*domain.ChannelSyncState
}

func newMemSync() *memSync {
	return &memSync{states: make(map[string]*domain.ChannelSyncState)}
}

func (m *memSync) put(s *domain.ChannelSyncState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.OrganizationID+"/"+string(s.Channel)] = s
}

func (m *memSync) Get(_ context.Context, orgID string, ch domain.ChannelKind) (*domain.ChannelSyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[orgID+"/"+string(ch)]
	if !ok {
		return nil, inbox.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// stubSettings serves one fixed settings row.
type stubSettings struct {
	mu sync.Mutex
	s  *domain.GuardrailSettings
}

func (st *stubSettings) Get(_ context.Context, _ string) (*domain.GuardrailSettings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := *st.s
	return &cp, nil
}

func (st *stubSettings) set(s *domain.GuardrailSettings) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = s
}

// stubQuota is a local stand-in for the Redis send counter.
type stubQuota struct {
	mu        sync.Mutex
	count     int
	released  int
	denyClaim bool // force the commit-time claim to lose
}

func (q *stubQuota) CountToday(_ context.Context, _ string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count, nil
}

func (q *stubQuota) TryClaim(_ context.Context, _ string, cap int) (bool, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.denyClaim || cap <= 0 || q.count+1 > cap {
		return false, q.count, nil
	}
	q.count++
	return true, q.count, nil
}

func (q *stubQuota) Release(_ context.Context, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count > 0 {
		q.count--
	}
	q.released++
	return nil
}

// stubDispatcher records sends and can be told to fail.
type stubDispatcher struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (d *stubDispatcher) Send(_ context.Context, item *domain.InboundItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sent = append(d.sent, item.ID)
	return nil
}

func (d *stubDispatcher) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// fixture bundles the stores behind one service.
type fixture struct {
	items      *memItems
	actions    *memActions
	sync       *memSync
	settings   *stubSettings
	quota      *stubQuota
	dispatcher *stubDispatcher
	svc        *inbox.Service
}

func newFixture() *fixture {
	f := &fixture{
		items:      newMemItems(),
		actions:    &memActions{},
		sync:       newMemSync(),
		settings:   &stubSettings{s: permissiveSettings(testOrg)},
		quota:      &stubQuota{},
		dispatcher: &stubDispatcher{},
	}
	f.svc = inbox.NewService(f.items, f.actions, f.sync, f.settings, f.quota, f.dispatcher)
	return f
}

// permissiveSettings enables automation with no approval runway so tests
// control eligibility through the item itself.
func permissiveSettings(orgID string) *domain.GuardrailSettings {
	s := domain.DefaultGuardrailSettings(orgID)
	s.EnableAutoSend = true
	s.RequireApprovalFirstN = 0
	s.BusinessHoursOnly = false
	return s
}

func (f *fixture) seed(id string, status domain.ItemStatus, mut ...func(*domain.InboundItem)) *domain.InboundItem {
	conf := 0.95
	it := &domain.InboundItem{
		ID:             id,
		OrganizationID: testOrg,
		Channel:        domain.ChannelEmail,
		ExternalID:     "ext-" + id,
		Sender:         "pat@example.com",
		Subject:        "Reschedule request",
		Category:       "scheduling",
		Priority:       domain.PriorityNormal,
		Risk:           domain.RiskSafe,
		Confidence:     &conf,
		Status:         status,
		DraftSubject:   "Re: Reschedule request",
		DraftBody:      "We have Tuesday at 3pm open.",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	for _, m := range mut {
		m(it)
	}
	f.items.mu.Lock()
	f.items.items[it.ID] = it
	f.items.mu.Unlock()
	return it
}

const testOrg = "org-1"

func TestListAnnotatesVerdicts(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)
	f.seed("b", domain.StatusQueuedForReview, func(it *domain.InboundItem) {
		it.Risk = domain.RiskBlocked
	})

	res, err := f.svc.List(context.Background(), testOrg, inbox.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 2 || len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d (total %d)", len(res.Items), res.Total)
	}

	verdicts := make(map[string]policy.Verdict)
	for _, it := range res.Items {
		verdicts[it.ID] = it.Verdict
	}
	if verdicts["a"] != policy.VerdictAutoSendEligible {
		t.Fatalf("expected item a eligible, got %s", verdicts["a"])
	}
	if verdicts["b"] != policy.VerdictBlocked {
		t.Fatalf("expected item b blocked, got %s", verdicts["b"])
	}
}

func TestListReportsSyncHealth(t *testing.T) {
	f := newFixture()
	recent := time.Now().Add(-time.Minute)
	f.sync.put(&domain.ChannelSyncState{
		OrganizationID: testOrg,
		Channel:        domain.ChannelEmail,
		LastSuccessAt:  &recent,
	})
	// No call state seeded: never synced, so stale.

	res, err := f.svc.List(context.Background(), testOrg, inbox.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Sync) != 2 {
		t.Fatalf("expected 2 sync statuses, got %d", len(res.Sync))
	}
	byChannel := make(map[domain.ChannelKind]inbox.SyncStatus)
	for _, s := range res.Sync {
		byChannel[s.Channel] = s
	}
	if byChannel[domain.ChannelEmail].IsStale {
		t.Fatal("email synced a minute ago should not be stale")
	}
	if !byChannel[domain.ChannelCall].IsStale {
		t.Fatal("never-synced call channel should be stale")
	}
}

func TestDetailIncludesHistory(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)

	if _, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionPreviewDraft, nil, domain.ActorUser); err != nil {
		t.Fatalf("apply: %v", err)
	}

	d, err := f.svc.Detail(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.Status != domain.StatusDraftPreview {
		t.Fatalf("expected draft_preview, got %s", d.Status)
	}
	if len(d.History) != 1 || d.History[0].Action != domain.ActionPreviewDraft {
		t.Fatalf("expected one preview_draft history entry, got %+v", d.History)
	}
}

func TestApplyUnknownAction(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)

	_, err := f.svc.Apply(context.Background(), testOrg, "a", domain.Action("archive"), nil, domain.ActorUser)
	if !errors.Is(err, inbox.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestApplyAutoSendRejectedForUsers(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)

	_, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionAutoSend, nil, domain.ActorUser)
	if !errors.Is(err, inbox.ErrActionNotAllowed) {
		t.Fatalf("expected ErrActionNotAllowed, got %v", err)
	}
}

func TestApproveDispatchesThenPersists(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)

	res, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionApprove, nil, domain.ActorUser)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !res.Applied || res.To != domain.StatusSent {
		t.Fatalf("expected applied transition to sent, got %+v", res)
	}
	if f.dispatcher.sentCount() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", f.dispatcher.sentCount())
	}

	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.Status != domain.StatusSent || got.ActedAt == nil {
		t.Fatalf("expected persisted sent with acted_at, got %+v", got)
	}
	if f.actions.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", f.actions.count())
	}
}

func TestApproveWithoutDraft(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview, func(it *domain.InboundItem) {
		it.DraftSubject = ""
		it.DraftBody = ""
	})

	_, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionApprove, nil, domain.ActorUser)
	if !errors.Is(err, inbox.ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}
	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.Status != domain.StatusQueuedForReview {
		t.Fatalf("status should be unchanged, got %s", got.Status)
	}
}

func TestApproveDispatchFailureLeavesItem(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)
	f.dispatcher.fail = fmt.Errorf("provider 503")

	_, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionApprove, nil, domain.ActorUser)
	if !errors.Is(err, inbox.ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}

	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.Status != domain.StatusQueuedForReview {
		t.Fatalf("failed dispatch must leave status, got %s", got.Status)
	}
	if f.actions.count() != 0 {
		t.Fatalf("no audit entry on failed dispatch, got %d", f.actions.count())
	}
}

func TestDraftEditRidesAlong(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusDraftCreated)

	// save_draft from draft_created targets the same state: the transition
	// is a no-op but the edited content must still be saved.
	res, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionSaveDraft,
		&inbox.DraftContent{Subject: "Re: updated", Body: "New wording."}, domain.ActorUser)
	if err != nil {
		t.Fatalf("save_draft: %v", err)
	}
	if res.Applied {
		t.Fatal("same-state save_draft should be a no-op transition")
	}

	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.DraftBody != "New wording." {
		t.Fatalf("draft content not saved, got %q", got.DraftBody)
	}
}

func TestTerminalAbsorbsActions(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusSent)

	res, err := f.svc.Apply(context.Background(), testOrg, "a", domain.ActionApprove, nil, domain.ActorUser)
	if err != nil {
		t.Fatalf("apply on terminal: %v", err)
	}
	if res.Applied {
		t.Fatal("terminal item must absorb the action as a no-op")
	}
	if f.dispatcher.sentCount() != 0 {
		t.Fatal("no-op must not dispatch")
	}
	if f.actions.count() != 0 {
		t.Fatal("no-op must not write an audit entry")
	}
}

func TestSkipResolvesByVerdict(t *testing.T) {
	f := newFixture()
	f.seed("safe", domain.StatusQueuedForReview)
	f.seed("bad", domain.StatusQueuedForReview, func(it *domain.InboundItem) {
		it.Risk = domain.RiskBlocked
	})

	res, err := f.svc.Apply(context.Background(), testOrg, "safe", domain.ActionSkip, nil, domain.ActorUser)
	if err != nil {
		t.Fatalf("skip safe: %v", err)
	}
	if res.To != domain.StatusSkippedManual {
		t.Fatalf("expected skipped_manual, got %s", res.To)
	}

	res, err = f.svc.Apply(context.Background(), testOrg, "bad", domain.ActionSkip, nil, domain.ActorUser)
	if err != nil {
		t.Fatalf("skip blocked: %v", err)
	}
	if res.To != domain.StatusSkippedBlocked {
		t.Fatalf("expected skipped_blocked, got %s", res.To)
	}
}

func TestAutoSendDisabled(t *testing.T) {
	f := newFixture()
	s := permissiveSettings(testOrg)
	s.EnableAutoSend = false
	f.settings.set(s)
	f.seed("a", domain.StatusQueuedForReview)

	res, err := f.svc.AutoSend(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatalf("autosend: %v", err)
	}
	if res.Sent || res.Reason != "auto_send_disabled" {
		t.Fatalf("expected disabled skip, got %+v", res)
	}
	if f.dispatcher.sentCount() != 0 {
		t.Fatal("disabled autopilot must not dispatch")
	}
}

func TestAutoSendIneligibleItem(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview, func(it *domain.InboundItem) {
		it.Category = "clinical"
	})

	res, err := f.svc.AutoSend(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatalf("autosend: %v", err)
	}
	if res.Sent || res.Reason != policy.ReasonCategoryDenied {
		t.Fatalf("expected category denial, got %+v", res)
	}
}

func TestAutoSendHappyPath(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)

	res, err := f.svc.AutoSend(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatalf("autosend: %v", err)
	}
	if !res.Sent {
		t.Fatalf("expected send, got reason %q", res.Reason)
	}

	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.Status != domain.StatusAutoSent {
		t.Fatalf("expected auto_sent, got %s", got.Status)
	}
	if n, _ := f.quota.CountToday(context.Background(), testOrg); n != 1 {
		t.Fatalf("expected quota count 1, got %d", n)
	}

	history, _ := f.actions.ListForItem(context.Background(), testOrg, "a", 10)
	if len(history) != 1 || history[0].Actor != domain.ActorAutopilot {
		t.Fatalf("expected one autopilot audit entry, got %+v", history)
	}
}

func TestAutoSendNoDraft(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview, func(it *domain.InboundItem) {
		it.DraftSubject = ""
		it.DraftBody = ""
	})

	res, err := f.svc.AutoSend(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatalf("autosend: %v", err)
	}
	if res.Sent || res.Reason != "no_draft" {
		t.Fatalf("expected no_draft skip, got %+v", res)
	}
}

func TestAutoSendClaimLostAtCommit(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)
	// The policy read sees room in the cap, but the atomic claim loses
	// to a concurrent sender.
	f.quota.denyClaim = true

	res, err := f.svc.AutoSend(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatalf("autosend: %v", err)
	}
	if res.Sent || res.Reason != policy.ReasonDailyCapReached {
		t.Fatalf("expected cap denial, got %+v", res)
	}
	if f.dispatcher.sentCount() != 0 {
		t.Fatal("lost claim must not dispatch")
	}
	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.Status != domain.StatusQueuedForReview {
		t.Fatalf("status must be unchanged, got %s", got.Status)
	}
}

func TestAutoSendDispatchFailureReleasesQuota(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)
	f.dispatcher.fail = fmt.Errorf("provider timeout")

	_, err := f.svc.AutoSend(context.Background(), testOrg, "a")
	if !errors.Is(err, inbox.ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	if n, _ := f.quota.CountToday(context.Background(), testOrg); n != 0 {
		t.Fatalf("failed dispatch must release the quota slot, count %d", n)
	}
	got, _ := f.items.Get(context.Background(), testOrg, "a")
	if got.Status != domain.StatusQueuedForReview {
		t.Fatalf("status must be unchanged, got %s", got.Status)
	}
}

func TestAutoSendFromIneligibleState(t *testing.T) {
	f := newFixture()
	f.seed("preview", domain.StatusDraftPreview)
	f.seed("done", domain.StatusAutoSent)

	res, err := f.svc.AutoSend(context.Background(), testOrg, "preview")
	if err != nil {
		t.Fatalf("autosend preview: %v", err)
	}
	if res.Sent || res.Reason != "state_not_sendable" {
		t.Fatalf("expected state_not_sendable, got %+v", res)
	}

	res, err = f.svc.AutoSend(context.Background(), testOrg, "done")
	if err != nil {
		t.Fatalf("autosend done: %v", err)
	}
	if res.Sent || res.Reason != "already_processed" {
		t.Fatalf("expected already_processed, got %+v", res)
	}
}

func TestBulkApplyIndependentOutcomes(t *testing.T) {
	f := newFixture()
	f.seed("ok", domain.StatusQueuedForReview)
	f.seed("done", domain.StatusSent)

	res, err := f.svc.BulkApply(context.Background(), testOrg,
		[]string{"ok", "missing", "done"}, domain.ActionSkip, domain.ActorUser)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 succeeded / 1 failed, got %d / %d", res.Succeeded, res.Failed)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}

	byID := make(map[string]inbox.BulkItemResult)
	for _, r := range res.Results {
		byID[r.ItemID] = r
	}
	if !byID["ok"].Applied || byID["ok"].Error != "" {
		t.Fatalf("expected ok applied, got %+v", byID["ok"])
	}
	if byID["missing"].Error == "" {
		t.Fatal("expected error for missing item")
	}
	if byID["done"].Applied || byID["done"].Error != "" {
		t.Fatalf("terminal item should be a clean no-op, got %+v", byID["done"])
	}

	got, _ := f.items.Get(context.Background(), testOrg, "ok")
	if got.Status != domain.StatusSkippedManual {
		t.Fatalf("expected skipped_manual, got %s", got.Status)
	}
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.seed("q1", domain.StatusQueuedForReview)
	f.seed("q2", domain.StatusDraftCreated, func(it *domain.InboundItem) {
		it.Channel = domain.ChannelCall
	})
	f.seed("s1", domain.StatusSent)
	f.seed("s2", domain.StatusSkippedManual)
	f.quota.count = 3

	st, err := f.svc.Stats(context.Background(), testOrg)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.PendingReview != 2 {
		t.Fatalf("expected 2 pending, got %d", st.PendingReview)
	}
	if st.ProcessedLifetime != 2 {
		t.Fatalf("expected 2 processed, got %d", st.ProcessedLifetime)
	}
	if st.SentToday != 3 {
		t.Fatalf("expected 3 sent today, got %d", st.SentToday)
	}
	if st.ByChannel[domain.ChannelEmail] != 3 || st.ByChannel[domain.ChannelCall] != 1 {
		t.Fatalf("unexpected channel counts: %+v", st.ByChannel)
	}
	if !st.AutoSendEnabled || st.AutomationPaused {
		t.Fatalf("unexpected flags: %+v", st)
	}
	if st.DailySendCap != 25 {
		t.Fatalf("expected cap 25, got %d", st.DailySendCap)
	}
}

func TestOrgIsolation(t *testing.T) {
	f := newFixture()
	f.seed("a", domain.StatusQueuedForReview)

	_, err := f.svc.Detail(context.Background(), "org-2", "a")
	if !errors.Is(err, inbox.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across orgs, got %v", err)
	}
}

package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/lifecycle"
	"github.com/radiantcrm/triage-engine/internal/policy"
)

// bulkWorkers bounds the fan-out for bulk actions.
const bulkWorkers = 4

// historyLimit caps the audit entries returned with an item detail.
const historyLimit = 50

// Service implements inbox triage business logic. All public methods
// are safe for concurrent use if the underlying stores are.
type Service struct {
	items      Repository
	actions    ActionLog
	syncStates SyncStateReader
	settings   SettingsProvider
	quota      QuotaClaimer
	dispatcher Dispatcher
	now        func() time.Time
}

// NewService creates an inbox service wired to its stores and the
// outbound dispatcher.
func NewService(items Repository, actions ActionLog, syncStates SyncStateReader,
	settings SettingsProvider, quota QuotaClaimer, dispatcher Dispatcher) *Service {
	return &Service{
		items:      items,
		actions:    actions,
		syncStates: syncStates,
		settings:   settings,
		quota:      quota,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// AnnotatedItem is an inbound item with its current policy verdict.
// Verdicts are computed on read, never stored.
type AnnotatedItem struct {
	domain.InboundItem
	Verdict       policy.Verdict `json:"verdict"`
	VerdictReason string         `json:"verdict_reason"`
}

// SyncStatus is the sync health of one channel as surfaced alongside
// inbox listings.
type SyncStatus struct {
	Channel       domain.ChannelKind `json:"channel"`
	LastAttemptAt *time.Time         `json:"last_attempt_at,omitempty"`
	LastSuccessAt *time.Time         `json:"last_success_at,omitempty"`
	LastErrorAt   *time.Time         `json:"last_error_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	IsStale       bool               `json:"is_stale"`
}

// ListResult is a page of annotated items plus per-channel sync health.
type ListResult struct {
	Items []AnnotatedItem `json:"items"`
	Total int             `json:"total"`
	Sync  []SyncStatus    `json:"sync"`
}

// ItemDetail is a single annotated item with its action history.
type ItemDetail struct {
	AnnotatedItem
	History []domain.ActionLogEntry `json:"history"`
}

// DraftContent carries draft edits riding along with an action.
type DraftContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ActionResult reports what an applied action did. Applied is false
// for idempotent no-ops (terminal item or already in the target state).
type ActionResult struct {
	Item    *domain.InboundItem `json:"item"`
	Applied bool                `json:"applied"`
	From    domain.ItemStatus   `json:"from_status"`
	To      domain.ItemStatus   `json:"to_status"`
}

// List returns items matching the filter, each annotated with a fresh
// verdict, plus the sync health of every channel.
func (s *Service) List(ctx context.Context, orgID string, f ListFilter) (*ListResult, error) {
	items, total, err := s.items.List(ctx, orgID, f)
	if err != nil {
		return nil, err
	}

	settings, counters, err := s.loadPolicyContext(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	annotated := make([]AnnotatedItem, 0, len(items))
	for i := range items {
		d := policy.Evaluate(policy.Input{
			Item:              &items[i],
			Settings:          settings,
			SendCountToday:    counters.sendsToday,
			ProcessedLifetime: counters.processed,
			Now:               now,
		})
		annotated = append(annotated, AnnotatedItem{
			InboundItem:   items[i],
			Verdict:       d.Verdict,
			VerdictReason: d.Reason,
		})
	}

	syncStatuses, err := s.syncOverview(ctx, orgID, settings.StaleThreshold(), now)
	if err != nil {
		return nil, err
	}

	return &ListResult{Items: annotated, Total: total, Sync: syncStatuses}, nil
}

// Detail returns one annotated item with its action history.
func (s *Service) Detail(ctx context.Context, orgID, itemID string) (*ItemDetail, error) {
	item, err := s.items.Get(ctx, orgID, itemID)
	if err != nil {
		return nil, err
	}

	decision, err := s.evaluate(ctx, item)
	if err != nil {
		return nil, err
	}

	history, err := s.actions.ListForItem(ctx, orgID, itemID, historyLimit)
	if err != nil {
		return nil, err
	}

	return &ItemDetail{
		AnnotatedItem: AnnotatedItem{InboundItem: *item, Verdict: decision.Verdict, VerdictReason: decision.Reason},
		History:       history,
	}, nil
}

// Apply performs a user action on an item. Draft content, when given,
// is saved before the transition regardless of whether the transition
// itself turns out to be a no-op. Repeating an action that already
// took effect is a silent no-op.
func (s *Service) Apply(ctx context.Context, orgID, itemID string, action domain.Action, draft *DraftContent, actor domain.Actor) (*ActionResult, error) {
	if !domain.IsValidAction(action) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if actor == domain.ActorUser && !action.IsUserAction() {
		return nil, fmt.Errorf("%w: %q", ErrActionNotAllowed, action)
	}

	item, err := s.items.Get(ctx, orgID, itemID)
	if err != nil {
		return nil, err
	}

	if draft != nil && !item.Status.IsTerminal() {
		item.DraftSubject = draft.Subject
		item.DraftBody = draft.Body
		if err := s.items.UpdateDraft(ctx, orgID, itemID, draft.Subject, draft.Body); err != nil {
			return nil, fmt.Errorf("save draft: %w", err)
		}
	}

	decision, err := s.evaluate(ctx, item)
	if err != nil {
		return nil, err
	}

	outcome, err := lifecycle.Apply(item.Status, action, decision.Verdict == policy.VerdictBlocked)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrUnknownAction):
			return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, item.Status)
		default:
			return nil, err
		}
	}

	if !outcome.Applied {
		return &ActionResult{Item: item, Applied: false, From: outcome.From, To: outcome.To}, nil
	}

	// Deliver before persisting so a failed send leaves the item
	// untouched. The saved draft survives for a retry.
	if lifecycle.Dispatches(action) {
		if !item.HasDraft() {
			return nil, ErrNoDraft
		}
		if err := s.dispatcher.Send(ctx, item); err != nil {
			log.Printf("[inbox.Service] Dispatch failed for item %s: %v", itemID, err)
			return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
		}
	}

	now := s.now()
	if err := s.items.UpdateStatus(ctx, orgID, itemID, outcome.From, outcome.To, now); err != nil {
		if lifecycle.Dispatches(action) {
			log.Printf("[inbox.Service] Item %s dispatched but status update failed: %v", itemID, err)
		}
		return nil, err
	}
	item.Status = outcome.To
	item.ActedAt = &now
	item.UpdatedAt = now

	// The audit reason stays empty unless the policy verdict shaped the
	// outcome, as it does when a skip resolves to skipped_blocked.
	reason := ""
	if outcome.To == domain.StatusSkippedBlocked {
		reason = decision.Reason
	}
	s.record(ctx, orgID, itemID, action, outcome, actor, reason, now)

	return &ActionResult{Item: item, Applied: true, From: outcome.From, To: outcome.To}, nil
}

// AutoSendResult reports the outcome of one automated send attempt.
// A skip is a normal outcome, not an error.
type AutoSendResult struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// AutoSend attempts an automated send of the item's draft. The policy
// verdict is re-computed here, at commit time, and the daily quota slot
// is claimed atomically before dispatch, so neither stale list verdicts
// nor concurrent workers can overshoot the guardrails.
func (s *Service) AutoSend(ctx context.Context, orgID, itemID string) (*AutoSendResult, error) {
	item, err := s.items.Get(ctx, orgID, itemID)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !settings.EnableAutoSend {
		return &AutoSendResult{Reason: "auto_send_disabled"}, nil
	}

	decision, err := s.evaluate(ctx, item)
	if err != nil {
		return nil, err
	}
	if decision.Verdict != policy.VerdictAutoSendEligible {
		return &AutoSendResult{Reason: decision.Reason}, nil
	}

	outcome, err := lifecycle.Apply(item.Status, domain.ActionAutoSend, false)
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			return &AutoSendResult{Reason: "state_not_sendable"}, nil
		}
		return nil, err
	}
	if !outcome.Applied {
		return &AutoSendResult{Reason: "already_processed"}, nil
	}
	if !item.HasDraft() {
		return &AutoSendResult{Reason: "no_draft"}, nil
	}

	claimed, _, err := s.quota.TryClaim(ctx, orgID, settings.DailySendCap)
	if err != nil {
		return nil, fmt.Errorf("claim send quota: %w", err)
	}
	if !claimed {
		return &AutoSendResult{Reason: policy.ReasonDailyCapReached}, nil
	}

	if err := s.dispatcher.Send(ctx, item); err != nil {
		// Return the unused slot so failed sends don't burn the cap.
		if rlErr := s.quota.Release(ctx, orgID); rlErr != nil {
			log.Printf("[inbox.Service] Quota release failed for org %s: %v", orgID, rlErr)
		}
		log.Printf("[inbox.Service] Auto-send dispatch failed for item %s: %v", itemID, err)
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	now := s.now()
	if err := s.items.UpdateStatus(ctx, orgID, itemID, outcome.From, domain.StatusAutoSent, now); err != nil {
		// The reply went out; the quota slot stays consumed.
		log.Printf("[inbox.Service] Item %s auto-sent but status update failed: %v", itemID, err)
		return nil, err
	}

	s.record(ctx, orgID, itemID, domain.ActionAutoSend, outcome, domain.ActorAutopilot, policy.ReasonEligible, now)

	log.Printf("[inbox.Service] Auto-sent item %s for org %s", itemID, orgID)
	return &AutoSendResult{Sent: true}, nil
}

// BulkItemResult is the outcome for one item in a bulk action.
type BulkItemResult struct {
	ItemID  string `json:"item_id"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// BulkResult summarizes a bulk action. Failed counts only real errors;
// idempotent no-ops count as succeeded.
type BulkResult struct {
	Results   []BulkItemResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// BulkApply fans one action out over many items with bounded
// concurrency. Items succeed and fail independently.
func (s *Service) BulkApply(ctx context.Context, orgID string, itemIDs []string, action domain.Action, actor domain.Actor) (*BulkResult, error) {
	results := make([]BulkItemResult, len(itemIDs))

	type job struct {
		idx int
		id  string
	}
	jobs := make(chan job)

	workers := bulkWorkers
	if len(itemIDs) < workers {
		workers = len(itemIDs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := s.Apply(ctx, orgID, j.id, action, nil, actor)
				if err != nil {
					results[j.idx] = BulkItemResult{ItemID: j.id, Error: publicError(err)}
					continue
				}
				results[j.idx] = BulkItemResult{ItemID: j.id, Applied: res.Applied}
			}
		}()
	}

	for i, id := range itemIDs {
		jobs <- job{idx: i, id: id}
	}
	close(jobs)
	wg.Wait()

	out := &BulkResult{Results: results}
	for _, r := range results {
		if r.Error != "" {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}
	return out, nil
}

// Stats is the triage overview for one organization.
type Stats struct {
	PendingReview     int                        `json:"pending_review"`
	ByStatus          map[domain.ItemStatus]int  `json:"by_status"`
	ByChannel         map[domain.ChannelKind]int `json:"by_channel"`
	SentToday         int                        `json:"sent_today"`
	DailySendCap      int                        `json:"daily_send_cap"`
	ProcessedLifetime int                        `json:"processed_lifetime"`
	AutoSendEnabled   bool                       `json:"auto_send_enabled"`
	AutomationPaused  bool                       `json:"automation_paused"`
}

// Stats returns the organization's triage counters.
func (s *Service) Stats(ctx context.Context, orgID string) (*Stats, error) {
	byStatus, err := s.items.StatusCounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byChannel, err := s.items.ChannelCounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	sentToday, err := s.quota.CountToday(ctx, orgID)
	if err != nil {
		return nil, err
	}
	processed, err := s.items.CountProcessedLifetime(ctx, orgID)
	if err != nil {
		return nil, err
	}

	pending := 0
	for status, n := range byStatus {
		if !status.IsTerminal() {
			pending += n
		}
	}

	return &Stats{
		PendingReview:     pending,
		ByStatus:          byStatus,
		ByChannel:         byChannel,
		SentToday:         sentToday,
		DailySendCap:      settings.DailySendCap,
		ProcessedLifetime: processed,
		AutoSendEnabled:   settings.EnableAutoSend,
		AutomationPaused:  settings.AutomationPaused,
	}, nil
}

// policyCounters are the per-tenant counters feeding evaluation.
type policyCounters struct {
	sendsToday int
	processed  int
}

func (s *Service) loadPolicyContext(ctx context.Context, orgID string) (*domain.GuardrailSettings, policyCounters, error) {
	settings, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return nil, policyCounters{}, fmt.Errorf("load settings: %w", err)
	}
	sends, err := s.quota.CountToday(ctx, orgID)
	if err != nil {
		return nil, policyCounters{}, fmt.Errorf("read send counter: %w", err)
	}
	processed, err := s.items.CountProcessedLifetime(ctx, orgID)
	if err != nil {
		return nil, policyCounters{}, fmt.Errorf("count processed items: %w", err)
	}
	return settings, policyCounters{sendsToday: sends, processed: processed}, nil
}

func (s *Service) evaluate(ctx context.Context, item *domain.InboundItem) (policy.Decision, error) {
	settings, counters, err := s.loadPolicyContext(ctx, item.OrganizationID)
	if err != nil {
		return policy.Decision{}, err
	}
	return policy.Evaluate(policy.Input{
		Item:              item,
		Settings:          settings,
		SendCountToday:    counters.sendsToday,
		ProcessedLifetime: counters.processed,
		Now:               s.now(),
	}), nil
}

// SyncOverview returns the per-channel sync health rows for the
// organization, staleness judged against its configured threshold.
func (s *Service) SyncOverview(ctx context.Context, orgID string) ([]SyncStatus, error) {
	settings, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return s.syncOverview(ctx, orgID, settings.StaleThreshold(), s.now())
}

func (s *Service) syncOverview(ctx context.Context, orgID string, threshold time.Duration, now time.Time) ([]SyncStatus, error) {
	channels := []domain.ChannelKind{domain.ChannelEmail, domain.ChannelCall}
	out := make([]SyncStatus, 0, len(channels))
	for _, ch := range channels {
		st, err := s.syncStates.Get(ctx, orgID, ch)
		if errors.Is(err, ErrNotFound) {
			// Never synced yet
			out = append(out, SyncStatus{Channel: ch, IsStale: true})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read sync state for %s: %w", ch, err)
		}
		out = append(out, SyncStatus{
			Channel:       ch,
			LastAttemptAt: st.LastAttemptAt,
			LastSuccessAt: st.LastSuccessAt,
			LastErrorAt:   st.LastErrorAt,
			LastError:     st.LastError,
			IsStale:       st.IsStale(now, threshold),
		})
	}
	return out, nil
}

// record appends to the action audit log. Log failures are reported
// but do not fail the action that already took effect.
func (s *Service) record(ctx context.Context, orgID, itemID string, action domain.Action, outcome lifecycle.Outcome, actor domain.Actor, reason string, at time.Time) {
	entry := &domain.ActionLogEntry{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		ItemID:         itemID,
		Action:         action,
		FromStatus:     outcome.From,
		ToStatus:       outcome.To,
		Actor:          actor,
		Reason:         reason,
		CreatedAt:      at,
	}
	if err := s.actions.Insert(ctx, entry); err != nil {
		log.Printf("[inbox.Service] Action log write failed for item %s: %v", itemID, err)
	}
}

package guardrails

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// UpdateListener is notified after a settings change is persisted,
// with the full post-update settings. Used to push the new staleness
// threshold into running sync schedulers.
type UpdateListener func(*domain.GuardrailSettings)

// Service implements guardrail settings business logic. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe; concurrent updates are last-write-wins.
type Service struct {
	repo      Repository
	listeners []UpdateListener
	now       func() time.Time
}

// NewService creates a guardrails service backed by the given repository.
func NewService(repo Repository, listeners ...UpdateListener) *Service {
	return &Service{
		repo:      repo,
		listeners: listeners,
		now:       time.Now,
	}
}

// Get returns the organization's settings, creating conservative
// defaults on first access.
func (s *Service) Get(ctx context.Context, orgID string) (*domain.GuardrailSettings, error) {
	settings, err := s.repo.Get(ctx, orgID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	defaults := domain.DefaultGuardrailSettings(orgID)
	defaults.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, defaults); err != nil {
		return nil, fmt.Errorf("create default settings: %w", err)
	}
	log.Printf("[guardrails.Service] Created default settings for org %s", orgID)
	return defaults, nil
}

// Update applies a partial update and returns the full post-update
// settings. Invalid combinations are rejected before anything is
// persisted.
func (s *Service) Update(ctx context.Context, orgID string, patch UpdatePatch) (*domain.GuardrailSettings, error) {
	current, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	next := *current
	applyPatch(&next, patch)

	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	next.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, &next); err != nil {
		return nil, fmt.Errorf("persist settings: %w", err)
	}

	for _, fn := range s.listeners {
		fn(&next)
	}

	log.Printf("[guardrails.Service] Updated settings for org %s (auto_send=%v paused=%v)",
		orgID, next.EnableAutoSend, next.AutomationPaused)
	return &next, nil
}

func applyPatch(s *domain.GuardrailSettings, p UpdatePatch) {
	if p.EnableAutoDraft != nil {
		s.EnableAutoDraft = *p.EnableAutoDraft
	}
	if p.EnableAutoSend != nil {
		s.EnableAutoSend = *p.EnableAutoSend
	}
	if p.AutomationPaused != nil {
		s.AutomationPaused = *p.AutomationPaused
	}
	if p.AutoSendAllowedCategories != nil {
		s.AutoSendAllowedCategories = *p.AutoSendAllowedCategories
	}
	if p.NeverAutoSendCategories != nil {
		s.NeverAutoSendCategories = *p.NeverAutoSendCategories
	}
	if p.AutoSendMinConfidence != nil {
		s.AutoSendMinConfidence = *p.AutoSendMinConfidence
	}
	if p.DailySendCap != nil {
		s.DailySendCap = *p.DailySendCap
	}
	if p.RequireApprovalFirstN != nil {
		s.RequireApprovalFirstN = *p.RequireApprovalFirstN
	}
	if p.BusinessHoursOnly != nil {
		s.BusinessHoursOnly = *p.BusinessHoursOnly
	}
	if p.BusinessHoursStart != nil {
		s.BusinessHoursStart = *p.BusinessHoursStart
	}
	if p.BusinessHoursEnd != nil {
		s.BusinessHoursEnd = *p.BusinessHoursEnd
	}
	if p.Timezone != nil {
		s.Timezone = *p.Timezone
	}
	if p.StaleThresholdSeconds != nil {
		s.StaleThresholdSeconds = *p.StaleThresholdSeconds
	}
}

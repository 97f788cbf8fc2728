package guardrails

import (
	"context"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// Repository defines the data access contract for guardrail settings.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns the settings row for an organization.
	// Returns ErrNotFound if the organization has none yet.
	Get(ctx context.Context, orgID string) (*domain.GuardrailSettings, error)

	// Upsert writes the full settings row for an organization.
	Upsert(ctx context.Context, s *domain.GuardrailSettings) error
}

// UpdatePatch holds the mutable settings fields for a partial update.
// Nil fields are left unchanged.
type UpdatePatch struct {
	EnableAutoDraft           *bool     `json:"enable_auto_draft,omitempty"`
	EnableAutoSend            *bool     `json:"enable_auto_send,omitempty"`
	AutomationPaused          *bool     `json:"automation_paused,omitempty"`
	AutoSendAllowedCategories *[]string `json:"auto_send_allowed_categories,omitempty"`
	NeverAutoSendCategories   *[]string `json:"never_auto_send_categories,omitempty"`
	AutoSendMinConfidence     *int      `json:"auto_send_min_confidence,omitempty"`
	DailySendCap              *int      `json:"daily_send_cap,omitempty"`
	RequireApprovalFirstN     *int      `json:"require_approval_first_n,omitempty"`
	BusinessHoursOnly         *bool     `json:"business_hours_only,omitempty"`
	BusinessHoursStart        *int      `json:"business_hours_start,omitempty"`
	BusinessHoursEnd          *int      `json:"business_hours_end,omitempty"`
	Timezone                  *string   `json:"timezone,omitempty"`
	StaleThresholdSeconds     *int      `json:"stale_threshold_seconds,omitempty"`
}

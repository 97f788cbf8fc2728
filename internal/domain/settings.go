package domain

import (
	"fmt"
	"time"
)

// GuardrailSettings is the per-tenant automation policy. A row is created
// with defaults the first time a tenant touches the engine and is mutated
// only through the settings-update operation. The deny list always wins
// over the allow list when both match a category.
type GuardrailSettings struct {
	OrganizationID string `json:"organization_id" db:"organization_id"`

	EnableAutoDraft bool `json:"enable_auto_draft" db:"enable_auto_draft"`
	EnableAutoSend  bool `json:"enable_auto_send" db:"enable_auto_send"`
	// AutomationPaused is the global kill switch: while true no evaluation
	// ever yields an auto-send verdict.
	AutomationPaused bool `json:"automation_paused" db:"automation_paused"`

	AutoSendAllowedCategories []string `json:"auto_send_allowed_categories" db:"auto_send_allowed_categories"`
	NeverAutoSendCategories   []string `json:"never_auto_send_categories" db:"never_auto_send_categories"`

	// AutoSendMinConfidence is a percentage, 0..100.
	AutoSendMinConfidence int `json:"auto_send_min_confidence" db:"auto_send_min_confidence"`

	// DailySendCap of 0 means automation may never send.
	DailySendCap          int `json:"daily_send_cap" db:"daily_send_cap"`
	RequireApprovalFirstN int `json:"require_approval_first_n" db:"require_approval_first_n"`

	BusinessHoursOnly  bool   `json:"business_hours_only" db:"business_hours_only"`
	BusinessHoursStart int    `json:"business_hours_start" db:"business_hours_start"`
	BusinessHoursEnd   int    `json:"business_hours_end" db:"business_hours_end"`
	Timezone           string `json:"timezone" db:"timezone"`

	StaleThresholdSeconds int `json:"stale_threshold_seconds" db:"stale_threshold_seconds"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultGuardrailSettings returns the settings a tenant starts with:
// auto-send off, conservative deny lists, and a short approval runway.
func DefaultGuardrailSettings(orgID string) *GuardrailSettings {
	return &GuardrailSettings{
		OrganizationID:            orgID,
		EnableAutoDraft:           true,
		EnableAutoSend:            false,
		AutomationPaused:          false,
		AutoSendAllowedCategories: []string{"scheduling", "general"},
		NeverAutoSendCategories:   []string{"clinical", "billing", "legal"},
		AutoSendMinConfidence:     80,
		DailySendCap:              25,
		RequireApprovalFirstN:     10,
		BusinessHoursOnly:         false,
		BusinessHoursStart:        9,
		BusinessHoursEnd:          17,
		Timezone:                  "America/New_York",
		StaleThresholdSeconds:     600,
	}
}

// Validate checks field ranges. It returns a human-readable message for the
// first violation found.
func (g *GuardrailSettings) Validate() error {
	if g.AutoSendMinConfidence < 0 || g.AutoSendMinConfidence > 100 {
		return fmt.Errorf("auto_send_min_confidence must be between 0 and 100, got %d", g.AutoSendMinConfidence)
	}
	if g.DailySendCap < 0 {
		return fmt.Errorf("daily_send_cap must not be negative, got %d", g.DailySendCap)
	}
	if g.RequireApprovalFirstN < 0 {
		return fmt.Errorf("require_approval_first_n must not be negative, got %d", g.RequireApprovalFirstN)
	}
	if g.BusinessHoursStart < 0 || g.BusinessHoursStart > 23 {
		return fmt.Errorf("business_hours_start must be between 0 and 23, got %d", g.BusinessHoursStart)
	}
	if g.BusinessHoursEnd < 0 || g.BusinessHoursEnd > 24 {
		return fmt.Errorf("business_hours_end must be between 0 and 24, got %d", g.BusinessHoursEnd)
	}
	if g.BusinessHoursStart >= g.BusinessHoursEnd {
		return fmt.Errorf("business hours window is empty: start %d >= end %d", g.BusinessHoursStart, g.BusinessHoursEnd)
	}
	if g.Timezone != "" {
		if _, err := time.LoadLocation(g.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", g.Timezone)
		}
	}
	if g.StaleThresholdSeconds <= 0 {
		return fmt.Errorf("stale_threshold_seconds must be positive, got %d", g.StaleThresholdSeconds)
	}
	return nil
}

// StaleThreshold returns the staleness threshold as a duration.
func (g *GuardrailSettings) StaleThreshold() time.Duration {
	return time.Duration(g.StaleThresholdSeconds) * time.Second
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/service/guardrails"
)

// SettingsRepo implements guardrails.Repository against PostgreSQL.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed guardrail settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) Get(ctx context.Context, orgID string) (*domain.GuardrailSettings, error) {
	s := &domain.GuardrailSettings{}
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, enable_auto_draft, enable_auto_send, automation_paused,
		       auto_send_allowed_categories, never_auto_send_categories,
		       auto_send_min_confidence, daily_send_cap, require_approval_first_n,
		       business_hours_only, business_hours_start, business_hours_end,
		       COALESCE(timezone,''), stale_threshold_seconds, updated_at
		FROM triage_guardrail_settings
		WHERE organization_id = $1
	`, orgID).Scan(
		&s.OrganizationID, &s.EnableAutoDraft, &s.EnableAutoSend, &s.AutomationPaused,
		pq.Array(&s.AutoSendAllowedCategories), pq.Array(&s.NeverAutoSendCategories),
		&s.AutoSendMinConfidence, &s.DailySendCap, &s.RequireApprovalFirstN,
		&s.BusinessHoursOnly, &s.BusinessHoursStart, &s.BusinessHoursEnd,
		&s.Timezone, &s.StaleThresholdSeconds, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, guardrails.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guardrail settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, s *domain.GuardrailSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO triage_guardrail_settings
			(organization_id, enable_auto_draft, enable_auto_send, automation_paused,
			 auto_send_allowed_categories, never_auto_send_categories,
			 auto_send_min_confidence, daily_send_cap, require_approval_first_n,
			 business_hours_only, business_hours_start, business_hours_end,
			 timezone, stale_threshold_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (organization_id) DO UPDATE SET
			enable_auto_draft = EXCLUDED.enable_auto_draft,
			enable_auto_send = EXCLUDED.enable_auto_send,
			automation_paused = EXCLUDED.automation_paused,
			auto_send_allowed_categories = EXCLUDED.auto_send_allowed_categories,
			never_auto_send_categories = EXCLUDED.never_auto_send_categories,
			auto_send_min_confidence = EXCLUDED.auto_send_min_confidence,
			daily_send_cap = EXCLUDED.daily_send_cap,
			require_approval_first_n = EXCLUDED.require_approval_first_n,
			business_hours_only = EXCLUDED.business_hours_only,
			business_hours_start = EXCLUDED.business_hours_start,
			business_hours_end = EXCLUDED.business_hours_end,
			timezone = EXCLUDED.timezone,
			stale_threshold_seconds = EXCLUDED.stale_threshold_seconds,
			updated_at = NOW()
	`, s.OrganizationID, s.EnableAutoDraft, s.EnableAutoSend, s.AutomationPaused,
		pq.Array(s.AutoSendAllowedCategories), pq.Array(s.NeverAutoSendCategories),
		s.AutoSendMinConfidence, s.DailySendCap, s.RequireApprovalFirstN,
		s.BusinessHoursOnly, s.BusinessHoursStart, s.BusinessHoursEnd,
		s.Timezone, s.StaleThresholdSeconds)
	if err != nil {
		return fmt.Errorf("upsert guardrail settings: %w", err)
	}
	return nil
}

// ListAutoSendEnabled returns the organizations whose autopilot is worth
// waking for: auto-send on and not paused.
func (r *SettingsRepo) ListAutoSendEnabled(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT organization_id FROM triage_guardrail_settings
		WHERE enable_auto_send = true AND automation_paused = false
		ORDER BY organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list auto-send orgs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

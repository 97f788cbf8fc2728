package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// SyncStateRepo persists per-channel sync health against PostgreSQL.
// The engine writes through the Record methods; the inbox service reads
// through Get.
type SyncStateRepo struct{ db *sql.DB }

// NewSyncStateRepo creates a Postgres-backed sync state repository.
func NewSyncStateRepo(db *sql.DB) *SyncStateRepo { return &SyncStateRepo{db: db} }

func (r *SyncStateRepo) Get(ctx context.Context, orgID string, ch domain.ChannelKind) (*domain.ChannelSyncState, error) {
	s := &domain.ChannelSyncState{}
	var attempt, success, errAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, channel, last_attempt_at, last_success_at,
		       last_error_at, COALESCE(last_error,''), consecutive_failures,
		       COALESCE(cursor,''), updated_at
		FROM triage_sync_state
		WHERE organization_id = $1 AND channel = $2
	`, orgID, ch).Scan(
		&s.OrganizationID, &s.Channel, &attempt, &success,
		&errAt, &s.LastError, &s.ConsecutiveFailures,
		&s.Cursor, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, inbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	if attempt.Valid {
		s.LastAttemptAt = &attempt.Time
	}
	if success.Valid {
		s.LastSuccessAt = &success.Time
	}
	if errAt.Valid {
		s.LastErrorAt = &errAt.Time
	}
	return s, nil
}

// Cursor returns the stored pull cursor, or empty for a channel that has
// never completed a sync.
func (r *SyncStateRepo) Cursor(ctx context.Context, orgID string, ch domain.ChannelKind) (string, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(cursor,'') FROM triage_sync_state
		WHERE organization_id = $1 AND channel = $2
	`, orgID, ch).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get sync cursor: %w", err)
	}
	return cursor, nil
}

// RecordAttempt marks the start of a sync tick.
func (r *SyncStateRepo) RecordAttempt(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO triage_sync_state (organization_id, channel, last_attempt_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (organization_id, channel) DO UPDATE SET
			last_attempt_at = EXCLUDED.last_attempt_at,
			updated_at = NOW()
	`, orgID, ch, at)
	if err != nil {
		return fmt.Errorf("record sync attempt: %w", err)
	}
	return nil
}

// RecordSuccess stores the advanced cursor and clears the error state.
func (r *SyncStateRepo) RecordSuccess(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time, cursor string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO triage_sync_state
			(organization_id, channel, last_attempt_at, last_success_at,
			 last_error, consecutive_failures, cursor, updated_at)
		VALUES ($1, $2, $3, $3, '', 0, $4, NOW())
		ON CONFLICT (organization_id, channel) DO UPDATE SET
			last_success_at = EXCLUDED.last_success_at,
			last_error = '',
			consecutive_failures = 0,
			cursor = EXCLUDED.cursor,
			updated_at = NOW()
	`, orgID, ch, at, cursor)
	if err != nil {
		return fmt.Errorf("record sync success: %w", err)
	}
	return nil
}

// RecordFailure stores the sanitized error and bumps the failure streak.
// The cursor is left where it was so the next tick retries the same page.
func (r *SyncStateRepo) RecordFailure(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time, msg string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO triage_sync_state
			(organization_id, channel, last_attempt_at, last_error_at,
			 last_error, consecutive_failures, updated_at)
		VALUES ($1, $2, $3, $3, $4, 1, NOW())
		ON CONFLICT (organization_id, channel) DO UPDATE SET
			last_error_at = EXCLUDED.last_error_at,
			last_error = EXCLUDED.last_error,
			consecutive_failures = triage_sync_state.consecutive_failures + 1,
			updated_at = NOW()
	`, orgID, ch, at, msg)
	if err != nil {
		return fmt.Errorf("record sync failure: %w", err)
	}
	return nil
}

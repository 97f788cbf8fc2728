package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// ActionLogRepo stores the append-only action audit trail in PostgreSQL.
type ActionLogRepo struct{ db *sql.DB }

// NewActionLogRepo creates a Postgres-backed action log repository.
func NewActionLogRepo(db *sql.DB) *ActionLogRepo { return &ActionLogRepo{db: db} }

func (r *ActionLogRepo) Insert(ctx context.Context, e *domain.ActionLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO triage_action_log
			(id, organization_id, item_id, action, from_status, to_status,
			 actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.OrganizationID, e.ItemID, e.Action, e.FromStatus, e.ToStatus,
		e.Actor, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action log: %w", err)
	}
	return nil
}

func (r *ActionLogRepo) ListForItem(ctx context.Context, orgID, itemID string, limit int) ([]domain.ActionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, item_id, action, from_status, to_status,
		       actor, COALESCE(reason,''), created_at
		FROM triage_action_log
		WHERE organization_id = $1 AND item_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, orgID, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list action log: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionLogEntry
	for rows.Next() {
		var e domain.ActionLogEntry
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.ItemID, &e.Action, &e.FromStatus,
			&e.ToStatus, &e.Actor, &e.Reason, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// ItemRepo implements inbox.Repository against PostgreSQL. Upsert and
// ListAutoSendCandidates additionally serve the sync engine and the
// autopilot worker.
type ItemRepo struct{ db *sql.DB }

// NewItemRepo creates a Postgres-backed inbound item repository.
func NewItemRepo(db *sql.DB) *ItemRepo { return &ItemRepo{db: db} }

const itemColumns = `id, organization_id, channel, external_id, sender, subject,
       preview, COALESCE(body,''), category, priority, risk, confidence, reasons,
       status, COALESCE(draft_subject,''), COALESCE(draft_body,''),
       received_at, acted_at, created_at, updated_at`

func (r *ItemRepo) Get(ctx context.Context, orgID, id string) (*domain.InboundItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM triage_items
		WHERE id = $1 AND organization_id = $2
	`, id, orgID)

	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, inbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (r *ItemRepo) List(ctx context.Context, orgID string, f inbox.ListFilter) ([]domain.InboundItem, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `WHERE organization_id = $1`
	args := []interface{}{orgID}
	idx := 2
	add := func(cond string, val interface{}) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, val)
		idx++
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.Category != "" {
		add("LOWER(category) = LOWER($%d)", f.Category)
	}
	if f.Risk != "" {
		add("risk = $%d", f.Risk)
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (sender ILIKE $%d OR subject ILIKE $%d OR preview ILIKE $%d)", idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triage_items `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	q := `SELECT ` + itemColumns + ` FROM triage_items ` + where +
		fmt.Sprintf(" ORDER BY COALESCE(received_at, created_at) DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, *it)
	}
	return out, total, rows.Err()
}

// Upsert stores a pulled item keyed by (organization, channel, external id).
// On re-pull the classification and content are refreshed only while the
// item is still queued_for_review; once a human or the autopilot has acted,
// the row is left untouched. A non-empty draft is never overwritten.
// Reports whether the row was written.
func (r *ItemRepo) Upsert(ctx context.Context, it *domain.InboundItem) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO triage_items
			(id, organization_id, channel, external_id, sender, subject, preview,
			 body, category, priority, risk, confidence, reasons, status,
			 draft_subject, draft_body, received_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, NOW(), NOW())
		ON CONFLICT (organization_id, channel, external_id) DO UPDATE SET
			sender = EXCLUDED.sender,
			subject = EXCLUDED.subject,
			preview = EXCLUDED.preview,
			body = EXCLUDED.body,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			risk = EXCLUDED.risk,
			confidence = EXCLUDED.confidence,
			reasons = EXCLUDED.reasons,
			received_at = COALESCE(triage_items.received_at, EXCLUDED.received_at),
			draft_subject = CASE
				WHEN triage_items.draft_subject = '' AND triage_items.draft_body = ''
				THEN EXCLUDED.draft_subject ELSE triage_items.draft_subject END,
			draft_body = CASE
				WHEN triage_items.draft_subject = '' AND triage_items.draft_body = ''
				THEN EXCLUDED.draft_body ELSE triage_items.draft_body END,
			updated_at = NOW()
		WHERE triage_items.status = 'queued_for_review'
	`, it.ID, it.OrganizationID, it.Channel, it.ExternalID, it.Sender, it.Subject,
		it.Preview, it.Body, it.Category, it.Priority, it.Risk, nullFloat(it.Confidence),
		pq.Array(it.Reasons), it.Status, it.DraftSubject, it.DraftBody, nullTime(it.ReceivedAt))
	if err != nil {
		return false, fmt.Errorf("upsert item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ItemRepo) UpdateStatus(ctx context.Context, orgID, id string, from, to domain.ItemStatus, actedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE triage_items
		SET status = $1, acted_at = $2, updated_at = NOW()
		WHERE id = $3 AND organization_id = $4 AND status = $5
	`, to, actedAt, id, orgID, from)
	if err != nil {
		return fmt.Errorf("update item status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish a lost compare-and-set from a missing item.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM triage_items WHERE id = $1 AND organization_id = $2)`,
			id, orgID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check item: %w", err)
		}
		if !exists {
			return inbox.ErrNotFound
		}
		return inbox.ErrConflict
	}
	return nil
}

func (r *ItemRepo) UpdateDraft(ctx context.Context, orgID, id, subject, body string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE triage_items
		SET draft_subject = $1, draft_body = $2, updated_at = NOW()
		WHERE id = $3 AND organization_id = $4
	`, subject, body, id, orgID)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return inbox.ErrNotFound
	}
	return nil
}

func (r *ItemRepo) CountProcessedLifetime(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM triage_items
		WHERE organization_id = $1
		  AND status IN ('sent','auto_sent','skipped_manual','skipped_blocked')
	`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processed items: %w", err)
	}
	return n, nil
}

func (r *ItemRepo) StatusCounts(ctx context.Context, orgID string) (map[domain.ItemStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM triage_items
		WHERE organization_id = $1
		GROUP BY status
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ItemStatus]int)
	for rows.Next() {
		var status domain.ItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *ItemRepo) ChannelCounts(ctx context.Context, orgID string) (map[domain.ChannelKind]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel, COUNT(*) FROM triage_items
		WHERE organization_id = $1
		GROUP BY channel
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("channel counts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ChannelKind]int)
	for rows.Next() {
		var ch domain.ChannelKind
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, fmt.Errorf("scan channel count: %w", err)
		}
		out[ch] = n
	}
	return out, rows.Err()
}

// ListAutoSendCandidates returns drafted items in sendable states for
// organizations whose automation is switched on, oldest first. The policy
// engine re-validates every candidate before anything is sent.
func (r *ItemRepo) ListAutoSendCandidates(ctx context.Context, limit int) ([]domain.InboundItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.organization_id, i.channel, i.external_id, i.sender, i.subject,
		       i.preview, COALESCE(i.body,''), i.category, i.priority, i.risk,
		       i.confidence, i.reasons, i.status, COALESCE(i.draft_subject,''),
		       COALESCE(i.draft_body,''), i.received_at, i.acted_at, i.created_at, i.updated_at
		FROM triage_items i
		JOIN triage_guardrail_settings g ON g.organization_id = i.organization_id
		WHERE g.enable_auto_send = true
		  AND g.automation_paused = false
		  AND i.status IN ('queued_for_review','draft_created')
		  AND (i.draft_subject <> '' OR i.draft_body <> '')
		ORDER BY COALESCE(i.received_at, i.created_at) ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto-send candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*domain.InboundItem, error) {
	it := &domain.InboundItem{}
	var conf sql.NullFloat64
	var received, acted sql.NullTime
	err := row.Scan(
		&it.ID, &it.OrganizationID, &it.Channel, &it.ExternalID,
		&it.Sender, &it.Subject, &it.Preview, &it.Body,
		&it.Category, &it.Priority, &it.Risk, &conf, pq.Array(&it.Reasons),
		&it.Status, &it.DraftSubject, &it.DraftBody,
		&received, &acted, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if conf.Valid {
		it.Confidence = &conf.Float64
	}
	if received.Valid {
		it.ReceivedAt = &received.Time
	}
	if acted.Valid {
		it.ActedAt = &acted.Time
	}
	return it, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

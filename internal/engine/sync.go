package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/radiantcrm/triage-engine/internal/channel"
	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/pkg/logger"
	"github.com/radiantcrm/triage-engine/internal/pkg/metrics"
)

// maxSyncErrorLen bounds the error text persisted to sync state.
const maxSyncErrorLen = 300

// ItemWriter persists pulled items.
type ItemWriter interface {
	// Upsert stores an item keyed by (organization, channel, external id)
	// and reports whether the row was written.
	Upsert(ctx context.Context, it *domain.InboundItem) (bool, error)
}

// SyncStateStore persists per-channel sync health and the pull cursor.
type SyncStateStore interface {
	Get(ctx context.Context, orgID string, ch domain.ChannelKind) (*domain.ChannelSyncState, error)
	Cursor(ctx context.Context, orgID string, ch domain.ChannelKind) (string, error)
	RecordAttempt(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time) error
	RecordSuccess(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time, cursor string) error
	RecordFailure(ctx context.Context, orgID string, ch domain.ChannelKind, at time.Time, msg string) error
}

// SettingsReader supplies tenant guardrail settings.
type SettingsReader interface {
	Get(ctx context.Context, orgID string) (*domain.GuardrailSettings, error)
}

// channelSyncer executes one pull pass for a single tenant channel: record
// the attempt, pull a page from the provider, upsert every item, advance
// the cursor. One page per pass; a backlog drains across consecutive ticks.
type channelSyncer struct {
	orgID     string
	connector channel.Connector
	items     ItemWriter
	states    SyncStateStore
	settings  SettingsReader
}

func (c *channelSyncer) Sync(ctx context.Context) error {
	ch := c.connector.Kind()
	now := time.Now()

	if err := c.states.RecordAttempt(ctx, c.orgID, ch, now); err != nil {
		return fmt.Errorf("record sync attempt: %w", err)
	}

	settings, err := c.settings.Get(ctx, c.orgID)
	if err != nil {
		return c.fail(ctx, ch, fmt.Errorf("load settings: %w", err))
	}

	cursor, err := c.states.Cursor(ctx, c.orgID, ch)
	if err != nil {
		return c.fail(ctx, ch, fmt.Errorf("load cursor: %w", err))
	}

	page, err := c.connector.Pull(ctx, cursor)
	if err != nil {
		// A superseded pass records nothing; the superseding operation
		// owns the sync state.
		if isCancellation(err) {
			return err
		}
		return c.fail(ctx, ch, fmt.Errorf("pull: %w", err))
	}

	stored := 0
	for i := range page.Items {
		it := page.Items[i].ToDomain(c.orgID, ch, now)
		if !settings.EnableAutoDraft {
			it.DraftSubject, it.DraftBody = "", ""
		}
		written, err := c.items.Upsert(ctx, it)
		if err != nil {
			if isCancellation(err) {
				return err
			}
			return c.fail(ctx, ch, fmt.Errorf("store item: %w", err))
		}
		if written {
			stored++
		}
	}

	if err := c.states.RecordSuccess(ctx, c.orgID, ch, time.Now(), page.NextCursor); err != nil {
		return fmt.Errorf("record sync success: %w", err)
	}

	metrics.RecordPull(string(ch), len(page.Items), stored)
	metrics.RecordSyncTick(string(ch), "success")
	if len(page.Items) > 0 {
		log.Printf("[engine.Sync %s/%s] Pulled %d items (%d stored)",
			c.orgID, ch, len(page.Items), stored)
	}
	return nil
}

// fail persists a sanitized error message and passes the original error
// back to the scheduler for backoff.
func (c *channelSyncer) fail(ctx context.Context, ch domain.ChannelKind, err error) error {
	msg := logger.RedactEmailsIn(err.Error())
	if len(msg) > maxSyncErrorLen {
		msg = msg[:maxSyncErrorLen]
	}
	if rerr := c.states.RecordFailure(ctx, c.orgID, ch, time.Now(), msg); rerr != nil {
		log.Printf("[engine.Sync %s/%s] Failed to record sync failure: %v", c.orgID, ch, rerr)
	}
	metrics.RecordSyncTick(string(ch), "failure")
	return err
}

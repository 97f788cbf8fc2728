package inbox

import (
	"context"
	"time"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// Repository defines the data access contract for inbound items.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single item. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, orgID, id string) (*domain.InboundItem, error)

	// List returns items matching the given filter, newest first.
	List(ctx context.Context, orgID string, filter ListFilter) ([]domain.InboundItem, int, error)

	// UpdateStatus transitions an item's status with a compare-and-set on
	// the expected current status. Returns ErrConflict if the item is no
	// longer in the from status, ErrNotFound if the item doesn't exist.
	UpdateStatus(ctx context.Context, orgID, id string, from, to domain.ItemStatus, actedAt time.Time) error

	// UpdateDraft replaces the item's draft reply content.
	UpdateDraft(ctx context.Context, orgID, id, subject, body string) error

	// CountProcessedLifetime returns how many items the organization has
	// ever completed triage on (items in a terminal status).
	CountProcessedLifetime(ctx context.Context, orgID string) (int, error)

	// StatusCounts returns item counts grouped by status.
	StatusCounts(ctx context.Context, orgID string) (map[domain.ItemStatus]int, error)

	// ChannelCounts returns item counts grouped by channel.
	ChannelCounts(ctx context.Context, orgID string) (map[domain.ChannelKind]int, error)
}

// ActionLog records and reads the per-item action audit trail.
type ActionLog interface {
	Insert(ctx context.Context, e *domain.ActionLogEntry) error
	ListForItem(ctx context.Context, orgID, itemID string, limit int) ([]domain.ActionLogEntry, error)
}

// SyncStateReader reads per-channel sync health. Returns ErrNotFound
// for a channel that has never attempted a sync.
type SyncStateReader interface {
	Get(ctx context.Context, orgID string, channel domain.ChannelKind) (*domain.ChannelSyncState, error)
}

// SettingsProvider supplies the tenant's guardrail settings.
type SettingsProvider interface {
	Get(ctx context.Context, orgID string) (*domain.GuardrailSettings, error)
}

// QuotaClaimer tracks the daily automated-send counter. CountToday
// feeds policy evaluation; TryClaim/Release are the atomic commit-time
// reservation used by auto-send.
type QuotaClaimer interface {
	CountToday(ctx context.Context, orgID string) (int, error)
	TryClaim(ctx context.Context, orgID string, cap int) (bool, int, error)
	Release(ctx context.Context, orgID string) error
}

// Dispatcher delivers a draft reply through the item's channel provider.
type Dispatcher interface {
	Send(ctx context.Context, item *domain.InboundItem) error
}

// ListFilter controls filtering and pagination for inbox listings.
type ListFilter struct {
	Status   string
	Channel  string
	Category string
	Risk     string
	Search   string
	Limit    int
	Offset   int
}

// Package channel adapts external communication providers to the
// triage engine. Each connector covers one channel: it pulls classified
// inbound items from the provider and delivers approved replies back
// through it. Classification happens upstream; connectors only
// normalize what the provider returns.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// Connector is a provider adapter for one channel.
type Connector interface {
	// Kind identifies the channel this connector serves.
	Kind() domain.ChannelKind
	// Pull fetches a page of inbound items newer than the cursor.
	// An empty cursor means "from the beginning".
	Pull(ctx context.Context, cursor string) (*PullResult, error)
	// Send delivers the item's draft reply through the provider.
	Send(ctx context.Context, item *domain.InboundItem) error
}

// PullResult is one page of items from a provider.
type PullResult struct {
	Items      []RemoteItem
	NextCursor string
}

// RemoteItem is a provider-side inbound item before it is persisted.
// Classification fields may all be empty when the provider has not
// classified the item yet.
type RemoteItem struct {
	ExternalID string
	Sender     string
	Subject    string
	Preview    string
	Body       string

	Category   string
	Priority   domain.Priority
	Risk       domain.RiskLevel
	Confidence *float64
	Reasons    []string

	// Provider-suggested reply, stored only when auto-drafting is
	// enabled for the tenant.
	DraftSubject string
	DraftBody    string

	ReceivedAt *time.Time
}

// ToDomain converts a pulled item into a new inbound item owned by the
// given organization. New items always start queued for review.
func (r RemoteItem) ToDomain(orgID string, kind domain.ChannelKind, now time.Time) *domain.InboundItem {
	return &domain.InboundItem{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Channel:        kind,
		ExternalID:     r.ExternalID,
		Sender:         r.Sender,
		Subject:        r.Subject,
		Preview:        r.Preview,
		Body:           r.Body,
		Category:       r.Category,
		Priority:       r.Priority,
		Risk:           r.Risk,
		Confidence:     r.Confidence,
		Reasons:        r.Reasons,
		Status:         domain.StatusQueuedForReview,
		DraftSubject:   r.DraftSubject,
		DraftBody:      r.DraftBody,
		ReceivedAt:     r.ReceivedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// normalizeRisk maps a provider risk string onto the fixed risk enum.
// Empty stays empty (unclassified); anything unrecognized is treated
// as needs_review rather than trusted.
func normalizeRisk(s string) domain.RiskLevel {
	switch domain.RiskLevel(s) {
	case "":
		return ""
	case domain.RiskSafe, domain.RiskNeedsReview, domain.RiskBlocked:
		return domain.RiskLevel(s)
	default:
		return domain.RiskNeedsReview
	}
}

// normalizePriority maps a provider priority string onto the priority
// enum, defaulting unrecognized values to normal.
func normalizePriority(s string) domain.Priority {
	switch domain.Priority(s) {
	case "":
		return ""
	case domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh, domain.PriorityUrgent:
		return domain.Priority(s)
	default:
		return domain.PriorityNormal
	}
}

// parseTimestamp parses an RFC3339 timestamp, returning nil for absent
// or malformed values.
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// Registry holds the configured connectors keyed by channel.
type Registry struct {
	connectors map[domain.ChannelKind]Connector
}

// NewRegistry builds a registry from the given connectors.
func NewRegistry(connectors ...Connector) *Registry {
	m := make(map[domain.ChannelKind]Connector, len(connectors))
	for _, c := range connectors {
		m[c.Kind()] = c
	}
	return &Registry{connectors: m}
}

// Get returns the connector for the channel, if configured.
func (r *Registry) Get(kind domain.ChannelKind) (Connector, bool) {
	c, ok := r.connectors[kind]
	return c, ok
}

// Kinds lists the channels with a configured connector.
func (r *Registry) Kinds() []domain.ChannelKind {
	kinds := make([]domain.ChannelKind, 0, len(r.connectors))
	for k := range r.connectors {
		kinds = append(kinds, k)
	}
	return kinds
}

// Send routes a dispatch to the connector for the item's channel.
func (r *Registry) Send(ctx context.Context, item *domain.InboundItem) error {
	c, ok := r.connectors[item.Channel]
	if !ok {
		return fmt.Errorf("no connector configured for channel %q", item.Channel)
	}
	return c.Send(ctx, item)
}

package domain

import (
	"time"
)

// ChannelSyncState tracks the health of the pull loop for one tenant
// channel. LastError holds the sanitized message of the most recent failed
// tick and is cleared on success; cancelled ticks touch nothing here.
type ChannelSyncState struct {
	OrganizationID      string      `json:"organization_id" db:"organization_id"`
	Channel             ChannelKind `json:"channel" db:"channel"`
	LastAttemptAt       *time.Time  `json:"last_attempt_at" db:"last_attempt_at"`
	LastSuccessAt       *time.Time  `json:"last_success_at" db:"last_success_at"`
	LastErrorAt         *time.Time  `json:"last_error_at" db:"last_error_at"`
	LastError           string      `json:"last_error" db:"last_error"`
	ConsecutiveFailures int         `json:"consecutive_failures" db:"consecutive_failures"`
	Cursor              string      `json:"cursor" db:"cursor"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// IsStale reports whether the channel has gone longer than threshold without
// a successful pull. A channel that has never synced is stale.
func (s *ChannelSyncState) IsStale(now time.Time, threshold time.Duration) bool {
	if s.LastSuccessAt == nil {
		return true
	}
	return now.Sub(*s.LastSuccessAt) > threshold
}

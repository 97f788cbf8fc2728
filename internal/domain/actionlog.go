package domain

import (
	"time"
)

// Actor identifies who applied a lifecycle action.
type Actor string

const (
	ActorUser      Actor = "user"
	ActorAutopilot Actor = "autopilot"
)

// ActionLogEntry is one row of the append-only audit trail. Reason carries
// the policy reason for automated entries and is empty for most user
// actions.
type ActionLogEntry struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	ItemID         string     `json:"item_id" db:"item_id"`
	Action         Action     `json:"action" db:"action"`
	FromStatus     ItemStatus `json:"from_status" db:"from_status"`
	ToStatus       ItemStatus `json:"to_status" db:"to_status"`
	Actor          Actor      `json:"actor" db:"actor"`
	Reason         string     `json:"reason" db:"reason"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

package domain

import (
	"time"
)

// ChannelKind identifies the communication channel an item arrived on.
type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelCall  ChannelKind = "call"
)

// IsValidChannel reports whether s names a known channel.
func IsValidChannel(s string) bool {
	switch ChannelKind(s) {
	case ChannelEmail, ChannelCall:
		return true
	}
	return false
}

// RiskLevel is the upstream classifier's risk label. The contract is fixed:
// blocked items may never be auto-sent, needs_review items always require a
// human. An empty value means the item arrived unclassified.
type RiskLevel string

const (
	RiskSafe        RiskLevel = "safe"
	RiskNeedsReview RiskLevel = "needs_review"
	RiskBlocked     RiskLevel = "blocked"
)

// Priority is the upstream classifier's urgency label.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ItemStatus enumerates the lifecycle states of an inbound item.
type ItemStatus string

const (
	StatusQueuedForReview  ItemStatus = "queued_for_review"
	StatusDraftCreated     ItemStatus = "draft_created"
	StatusDraftPreview     ItemStatus = "draft_preview"
	StatusRewriteRequested ItemStatus = "rewrite_requested"
	StatusSent             ItemStatus = "sent"
	StatusAutoSent         ItemStatus = "auto_sent"
	StatusSkippedManual    ItemStatus = "skipped_manual"
	StatusSkippedBlocked   ItemStatus = "skipped_blocked"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case StatusSent, StatusAutoSent, StatusSkippedManual, StatusSkippedBlocked:
		return true
	}
	return false
}

// IsValidItemStatus reports whether s names a known lifecycle state.
func IsValidItemStatus(s string) bool {
	switch ItemStatus(s) {
	case StatusQueuedForReview, StatusDraftCreated, StatusDraftPreview,
		StatusRewriteRequested, StatusSent, StatusAutoSent,
		StatusSkippedManual, StatusSkippedBlocked:
		return true
	}
	return false
}

// Action is a lifecycle verb applied to an item. ActionAutoSend is reserved
// for the autopilot; the remaining actions arrive from users through the API.
type Action string

const (
	ActionApprove        Action = "approve"
	ActionSaveDraft      Action = "save_draft"
	ActionPreviewDraft   Action = "preview_draft"
	ActionRequestRewrite Action = "request_rewrite"
	ActionSkip           Action = "skip"
	ActionAutoSend       Action = "auto_send"
)

// IsValidAction reports whether a names a known lifecycle verb.
func IsValidAction(a Action) bool {
	switch a {
	case ActionApprove, ActionSaveDraft, ActionPreviewDraft,
		ActionRequestRewrite, ActionSkip, ActionAutoSend:
		return true
	}
	return false
}

// IsUserAction reports whether the action may be submitted through the API.
func (a Action) IsUserAction() bool {
	switch a {
	case ActionApprove, ActionSaveDraft, ActionPreviewDraft,
		ActionRequestRewrite, ActionSkip:
		return true
	}
	return false
}

// InboundItem is a single inbound communication (email thread or call)
// awaiting triage. Classification fields are produced upstream and arrive
// with the item; Confidence is nil when the classifier produced no score,
// and a nil ReceivedAt means the channel has not observed the item yet.
type InboundItem struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	Channel        ChannelKind `json:"channel" db:"channel"`
	ExternalID     string      `json:"external_id" db:"external_id"`
	Sender         string      `json:"sender" db:"sender"`
	Subject        string      `json:"subject" db:"subject"`
	Preview        string      `json:"preview" db:"preview"`
	Body           string      `json:"body,omitempty" db:"body"`

	Category   string     `json:"category" db:"category"`
	Priority   Priority   `json:"priority" db:"priority"`
	Risk       RiskLevel  `json:"risk" db:"risk"`
	Confidence *float64   `json:"confidence" db:"confidence"`
	Reasons    []string   `json:"reasons" db:"reasons"`
	Status     ItemStatus `json:"status" db:"status"`

	DraftSubject string `json:"draft_subject" db:"draft_subject"`
	DraftBody    string `json:"draft_body" db:"draft_body"`

	ReceivedAt *time.Time `json:"received_at" db:"received_at"`
	ActedAt    *time.Time `json:"acted_at" db:"acted_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// HasDraft reports whether the item carries reply draft content.
func (i *InboundItem) HasDraft() bool {
	return i.DraftSubject != "" || i.DraftBody != ""
}

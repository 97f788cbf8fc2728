// Package lifecycle implements the item state machine: which lifecycle
// actions are legal from which states, where they land, and when an apply
// is an idempotent no-op.
//
// The rules the rest of the engine relies on:
//
//   - Terminal states (sent, auto_sent, skipped_manual, skipped_blocked)
//     absorb every action as a silent no-op. A double-click can never
//     duplicate a send.
//   - Applying an action whose target equals the current state is also a
//     no-op; content updates that ride along (draft edits) are the caller's
//     concern, not a transition.
//   - Unknown actions are rejected with ErrUnknownAction at the boundary,
//     never silently ignored.
//   - skip resolves to skipped_blocked when the policy verdict for the item
//     is blocked at skip time, otherwise skipped_manual.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

var (
	// ErrUnknownAction means the action string names no lifecycle verb.
	ErrUnknownAction = errors.New("unknown lifecycle action")

	// ErrInvalidTransition means the action is a known verb but is not
	// legal from the item's current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// Outcome describes the result of applying an action. Applied is false for
// idempotent no-ops; To equals From in that case.
type Outcome struct {
	From    domain.ItemStatus
	To      domain.ItemStatus
	Applied bool
}

// allowedFrom is the transition table: the set of actions legal from each
// non-terminal state. Terminal states are intentionally absent; they are
// handled by the absorption rule before the table is consulted.
var allowedFrom = map[domain.ItemStatus]map[domain.Action]bool{
	domain.StatusQueuedForReview: {
		domain.ActionApprove:        true,
		domain.ActionSaveDraft:      true,
		domain.ActionPreviewDraft:   true,
		domain.ActionRequestRewrite: true,
		domain.ActionSkip:           true,
		domain.ActionAutoSend:       true,
	},
	domain.StatusDraftCreated: {
		domain.ActionApprove:        true,
		domain.ActionSaveDraft:      true,
		domain.ActionPreviewDraft:   true,
		domain.ActionRequestRewrite: true,
		domain.ActionSkip:           true,
		domain.ActionAutoSend:       true,
	},
	domain.StatusDraftPreview: {
		domain.ActionApprove:        true,
		domain.ActionSaveDraft:      true,
		domain.ActionPreviewDraft:   true,
		domain.ActionRequestRewrite: true,
		domain.ActionSkip:           true,
	},
	domain.StatusRewriteRequested: {
		domain.ActionApprove:        true,
		domain.ActionSaveDraft:      true,
		domain.ActionPreviewDraft:   true,
		domain.ActionRequestRewrite: true,
		domain.ActionSkip:           true,
	},
}

// Target returns the state an action lands in. policyBlocked resolves the
// skip split; it is ignored for every other action.
func Target(action domain.Action, policyBlocked bool) (domain.ItemStatus, error) {
	switch action {
	case domain.ActionApprove:
		return domain.StatusSent, nil
	case domain.ActionSaveDraft:
		return domain.StatusDraftCreated, nil
	case domain.ActionPreviewDraft:
		return domain.StatusDraftPreview, nil
	case domain.ActionRequestRewrite:
		return domain.StatusRewriteRequested, nil
	case domain.ActionSkip:
		if policyBlocked {
			return domain.StatusSkippedBlocked, nil
		}
		return domain.StatusSkippedManual, nil
	case domain.ActionAutoSend:
		return domain.StatusAutoSent, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// Apply runs the state machine for one action against the current state.
// It performs no I/O; persistence and dispatch belong to the caller, which
// must only act when Applied is true.
func Apply(current domain.ItemStatus, action domain.Action, policyBlocked bool) (Outcome, error) {
	target, err := Target(action, policyBlocked)
	if err != nil {
		return Outcome{}, err
	}

	if current.IsTerminal() {
		return Outcome{From: current, To: current, Applied: false}, nil
	}
	if current == target {
		return Outcome{From: current, To: current, Applied: false}, nil
	}

	if !allowedFrom[current][action] {
		return Outcome{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current)
	}
	return Outcome{From: current, To: target, Applied: true}, nil
}

// Dispatches reports whether an action triggers an external send when
// applied. Callers persist the transition only after the dispatch succeeds.
func Dispatches(action domain.Action) bool {
	return action == domain.ActionApprove || action == domain.ActionAutoSend
}

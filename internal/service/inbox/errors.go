package inbox

import "errors"

// Sentinel errors for the inbox service layer.
var (
	ErrNotFound          = errors.New("inbox item not found")
	ErrUnknownAction     = errors.New("unknown action")
	ErrActionNotAllowed  = errors.New("action not available to users")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoDraft           = errors.New("item has no draft reply")
	ErrConflict          = errors.New("item was changed concurrently")
	ErrDispatchFailed    = errors.New("delivery to provider failed")
)

// publicError maps an error to a message safe to return to clients.
// Provider and database details never leak through item results.
func publicError(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "item not found"
	case errors.Is(err, ErrUnknownAction):
		return "unknown action"
	case errors.Is(err, ErrActionNotAllowed):
		return "action not available"
	case errors.Is(err, ErrInvalidTransition):
		return "action not valid for item's current state"
	case errors.Is(err, ErrNoDraft):
		return "item has no draft reply"
	case errors.Is(err, ErrConflict):
		return "item was changed by someone else, refresh and retry"
	case errors.Is(err, ErrDispatchFailed):
		return "delivery failed, the item was not marked sent"
	default:
		return "internal error"
	}
}

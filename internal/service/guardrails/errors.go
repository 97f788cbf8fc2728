package guardrails

import "errors"

// Sentinel errors for the guardrails service layer.
var (
	ErrNotFound        = errors.New("guardrail settings not found")
	ErrInvalidSettings = errors.New("invalid guardrail settings")
)

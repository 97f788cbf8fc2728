package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/radiantcrm/triage-engine/internal/engine"
	"github.com/radiantcrm/triage-engine/internal/service/guardrails"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// =============================================================================
// ERROR SANITIZER
// Internal errors (database details, provider URLs, file paths) never reach
// API consumers. Service sentinels map to stable status codes with short
// public messages; everything else becomes a generic 5xx while the full
// error is logged server-side.
// =============================================================================

// errorStatus maps a service error to its HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, inbox.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inbox.ErrUnknownAction),
		errors.Is(err, inbox.ErrActionNotAllowed),
		errors.Is(err, guardrails.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, inbox.ErrInvalidTransition),
		errors.Is(err, inbox.ErrNoDraft),
		errors.Is(err, inbox.ErrConflict),
		errors.Is(err, engine.ErrChannelNotConfigured):
		return http.StatusConflict
	case errors.Is(err, inbox.ErrDispatchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError converts a service error into a sanitized JSON
// error response, logging the internal error for 5xx codes.
func respondServiceError(w http.ResponseWriter, err error) {
	code := errorStatus(err)
	respondError(w, code, sanitizedError(code, err))
}

// sanitizedError returns the public message for an error and logs the
// internal detail server-side.
func sanitizedError(code int, err error) string {
	msg := safeErrorMessage(code, err)
	if err != nil {
		log.Printf("ERROR [%d]: %s: %v", code, msg, err)
	}
	return msg
}

// safeErrorMessage maps internal error text to a public-safe message.
// 4xx errors are about the request itself and pass through; 5xx errors
// collapse to generic messages by failure class.
func safeErrorMessage(code int, err error) string {
	switch {
	case errors.Is(err, inbox.ErrNotFound):
		return "item not found"
	case errors.Is(err, inbox.ErrUnknownAction):
		return "unknown action"
	case errors.Is(err, inbox.ErrActionNotAllowed):
		return "action not available"
	case errors.Is(err, inbox.ErrInvalidTransition):
		return "action not valid for item's current state"
	case errors.Is(err, inbox.ErrNoDraft):
		return "item has no draft reply"
	case errors.Is(err, inbox.ErrConflict):
		return "item was changed by someone else, refresh and retry"
	case errors.Is(err, inbox.ErrDispatchFailed):
		return "delivery failed, the item was not marked sent"
	case errors.Is(err, engine.ErrChannelNotConfigured):
		return "channel not configured for this deployment"
	}

	if code < 500 {
		if err != nil {
			return err.Error()
		}
		return "bad request"
	}

	if err == nil {
		return "an internal error occurred"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "query") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "a database error occurred"

	case strings.Contains(errStr, "json") ||
		strings.Contains(errStr, "unmarshal") ||
		strings.Contains(errStr, "decode") ||
		strings.Contains(errStr, "parse"):
		return "invalid request format"

	default:
		return "an internal error occurred"
	}
}

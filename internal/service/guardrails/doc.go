// Package guardrails manages per-tenant automation guardrail settings.
//
// Settings control what the automation layer may do on the tenant's
// behalf: category allow/deny lists, confidence thresholds, daily send
// caps, business-hours windows, and the kill switch. Reads create
// default settings on first access so a tenant always has a complete,
// conservative policy. All writes go through Update; nothing else in
// the system mutates settings.
//
// Repository implementations live in repository/postgres/.
package guardrails

// Package inbox implements triage of inbound communication items.
//
// The service layer joins the pieces: items from the repository, the
// tenant's guardrail settings, today's send counter, and the policy
// engine. Every read annotates items with a freshly computed verdict;
// nothing stores verdicts, so a settings change is reflected on the
// next read. Actions go through the lifecycle transition table and are
// idempotent per (item, target state).
//
// Approve and auto-send dispatch to the provider before the status is
// persisted, so a failed delivery leaves the item where it was.
//
// Repository implementations live in repository/postgres/.
package inbox

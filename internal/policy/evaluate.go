// Package policy implements the guardrail decision engine: a pure function
// mapping an inbound item, the tenant's guardrail settings, and the current
// send counters to an eligibility verdict.
//
// Evaluate performs no I/O and reads no clocks; callers pass the evaluation
// time in. The same input always produces the same verdict, which is what
// makes commit-time re-validation meaningful.
package policy

import (
	"strings"
	"time"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// Verdict is the eligibility outcome for one item.
type Verdict string

const (
	VerdictAutoSendEligible Verdict = "auto_send_eligible"
	VerdictNeedsReview      Verdict = "needs_review"
	VerdictBlocked          Verdict = "blocked"
)

// Reason codes attached to decisions. They are stable identifiers, safe to
// show in the UI and to match on in tests and audit logs.
const (
	ReasonAutomationPaused   = "automation_paused"
	ReasonRiskBlocked        = "risk_blocked"
	ReasonCategoryDenied     = "category_never_auto_send"
	ReasonRiskNeedsReview    = "risk_needs_review"
	ReasonNoConfidence       = "no_confidence"
	ReasonLowConfidence      = "confidence_below_minimum"
	ReasonCategoryNotAllowed = "category_not_allowed"
	ReasonDailyCapReached    = "daily_cap_reached"
	ReasonOutsideHours       = "outside_business_hours"
	ReasonApprovalRunway     = "approval_runway"
	ReasonEligible           = "eligible"
)

// Decision is a verdict plus the first rule that produced it.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
}

// Input carries everything Evaluate needs. SendCountToday is the number of
// automated sends committed today for the tenant; ProcessedLifetime is the
// number of items the tenant has ever completed triage on.
type Input struct {
	Item              *domain.InboundItem
	Settings          *domain.GuardrailSettings
	SendCountToday    int
	ProcessedLifetime int
	Now               time.Time
}

// Evaluate applies the guardrail rules in strict precedence order and
// returns the first matching verdict. Deny-list and risk checks come before
// allow-list and confidence checks so a single misclassification cannot be
// overridden by a broad allow rule. The daily cap yields needs_review, not
// blocked: it is a throttle, and the item should surface to a human rather
// than be dropped.
func Evaluate(in Input) Decision {
	item, s := in.Item, in.Settings

	if s.AutomationPaused {
		return Decision{VerdictNeedsReview, ReasonAutomationPaused}
	}
	if item.Risk == domain.RiskBlocked {
		return Decision{VerdictBlocked, ReasonRiskBlocked}
	}
	if containsFold(s.NeverAutoSendCategories, item.Category) {
		return Decision{VerdictBlocked, ReasonCategoryDenied}
	}
	if item.Risk == domain.RiskNeedsReview {
		return Decision{VerdictNeedsReview, ReasonRiskNeedsReview}
	}
	if item.Confidence == nil {
		return Decision{VerdictNeedsReview, ReasonNoConfidence}
	}
	if *item.Confidence*100 < float64(s.AutoSendMinConfidence) {
		return Decision{VerdictNeedsReview, ReasonLowConfidence}
	}
	if !containsFold(s.AutoSendAllowedCategories, item.Category) {
		return Decision{VerdictNeedsReview, ReasonCategoryNotAllowed}
	}
	if in.SendCountToday >= s.DailySendCap {
		return Decision{VerdictNeedsReview, ReasonDailyCapReached}
	}
	if s.BusinessHoursOnly && !withinBusinessHours(s, in.Now) {
		return Decision{VerdictNeedsReview, ReasonOutsideHours}
	}
	if in.ProcessedLifetime < s.RequireApprovalFirstN {
		return Decision{VerdictNeedsReview, ReasonApprovalRunway}
	}
	return Decision{VerdictAutoSendEligible, ReasonEligible}
}

// withinBusinessHours reports whether now falls inside the tenant's
// configured [start, end) hour window in its local timezone. An unknown
// timezone falls back to UTC rather than failing the evaluation.
func withinBusinessHours(s *domain.GuardrailSettings, now time.Time) bool {
	loc := time.UTC
	if s.Timezone != "" {
		if l, err := time.LoadLocation(s.Timezone); err == nil {
			loc = l
		}
	}
	hour := now.In(loc).Hour()
	return hour >= s.BusinessHoursStart && hour < s.BusinessHoursEnd
}

// containsFold matches category labels case-insensitively; classifier
// labels are not guaranteed to agree with operator-entered settings on case.
func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

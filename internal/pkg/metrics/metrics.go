// Package metrics exposes the engine's Prometheus instrumentation.
// Collectors are registered on the default registry at init and served
// by the API's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncTicks counts completed sync passes per channel and result.
	SyncTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_sync_ticks_total",
			Help: "Completed channel sync passes",
		},
		[]string{"channel", "result"}, // result: success, failure
	)

	// ItemsPulled counts items fetched from channel providers.
	ItemsPulled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_items_pulled_total",
			Help: "Inbound items fetched from channel providers",
		},
		[]string{"channel"},
	)

	// ItemsStored counts pulled items that were written to storage.
	// Items already acted on are pulled but not stored.
	ItemsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_items_stored_total",
			Help: "Pulled items written to storage",
		},
		[]string{"channel"},
	)

	// ActionsApplied counts lifecycle actions that took effect.
	ActionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_actions_applied_total",
			Help: "Lifecycle actions that changed an item's state",
		},
		[]string{"action", "actor"},
	)

	// AutoSendOutcomes counts autopilot attempts by outcome.
	AutoSendOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_auto_send_outcomes_total",
			Help: "Autopilot send attempts by outcome",
		},
		[]string{"outcome"}, // outcome: sent, skipped, failed
	)

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

// RecordSyncTick records one completed sync pass.
func RecordSyncTick(channel, result string) {
	SyncTicks.WithLabelValues(channel, result).Inc()
}

// RecordPull records one pull page: how many items came back and how
// many were stored.
func RecordPull(channel string, pulled, stored int) {
	ItemsPulled.WithLabelValues(channel).Add(float64(pulled))
	ItemsStored.WithLabelValues(channel).Add(float64(stored))
}

// RecordAction records one applied lifecycle action.
func RecordAction(action, actor string) {
	ActionsApplied.WithLabelValues(action, actor).Inc()
}

// RecordAutoSend records one autopilot attempt outcome.
func RecordAutoSend(outcome string) {
	AutoSendOutcomes.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest observes one API request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

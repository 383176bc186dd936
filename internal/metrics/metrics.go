package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReportsIngested counts accepted state reports by ingest source.
	ReportsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reports_ingested_total",
			Help: "State reports accepted into history",
		},
		[]string{"source"},
	)

	// ReportsRejected counts reports refused before append.
	ReportsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reports_rejected_total",
			Help: "State reports rejected by validation or ordering",
		},
		[]string{"reason"},
	)

	// Transitions counts state transitions by resulting condition.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_transitions_total",
			Help: "Condition transitions detected during ingestion",
		},
		[]string{"condition"},
	)

	// NotificationsEnqueued counts delivery jobs handed to the queue.
	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notifications_enqueued_total",
			Help: "Delivery jobs enqueued by kind and channel",
		},
		[]string{"kind", "channel"},
	)

	// NotificationsSent counts successful channel deliveries.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notifications_sent_total",
			Help: "Delivered notifications by channel",
		},
		[]string{"channel"},
	)

	// NotificationsFailed counts failed channel deliveries.
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notifications_failed_total",
			Help: "Failed notification deliveries by channel",
		},
		[]string{"channel"},
	)

	// FailingChecks tracks the number of checks currently failing.
	FailingChecks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_failing_checks",
			Help: "Checks whose latest condition is failing",
		},
	)
)

// Handler returns the scrape endpoint handler.
// Params: none.
// Returns: promhttp handler bound to the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

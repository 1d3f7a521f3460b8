package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_events_received_total",
			Help: "Total number of audit envelopes received",
		},
		[]string{"transport"},
	)

	EventsIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_events_ignored_total",
			Help: "Total number of envelopes outside the admitted event pattern",
		},
	)

	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_events_rejected_total",
			Help: "Total number of malformed envelopes",
		},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_events_processed_total",
			Help: "Total number of events classified, by outcome",
		},
		[]string{"outcome"},
	)

	// Store metrics
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudguard_signin_store_duration_seconds",
			Help:    "Duration of activity store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_store_errors_total",
			Help: "Total number of activity store errors",
		},
		[]string{"operation"},
	)

	// Classification metrics
	ClassificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudguard_signin_classification_duration_seconds",
			Help:    "Duration of event classification in seconds, counter query included",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_alerts_total",
			Help: "Total number of alert decisions, by reason and severity",
		},
		[]string{"reason", "severity"},
	)

	// Routing metrics
	AlertsRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_alerts_routed_total",
			Help: "Total number of alerts published",
		},
	)

	RoutingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_routing_failures_total",
			Help: "Total number of alerts lost after publish retries were exhausted",
		},
	)

	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_signin_dead_lettered_total",
			Help: "Total number of dead-letter writes, by result",
		},
		[]string{"result"},
	)
)

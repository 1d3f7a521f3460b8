// Package metrics defines the notifier's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts alert messages by transport.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_messages_received_total",
			Help: "Total number of alert messages received",
		},
		[]string{"transport"},
	)

	// MessagesFiltered counts messages the subscriber filter policy skipped.
	MessagesFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_messages_filtered_total",
			Help: "Total number of alert messages not matching the filter policy",
		},
	)

	// MessagesInvalid counts messages whose body could not be decoded.
	MessagesInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_messages_invalid_total",
			Help: "Total number of alert messages with an undecodable body",
		},
	)

	// UnknownChannel counts alerts for channels without a webhook.
	UnknownChannel = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_unknown_channel_total",
			Help: "Total number of alerts addressed to a channel with no configured webhook",
		},
		[]string{"channel"},
	)

	// Delivered counts messages posted to Slack.
	Delivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_delivered_total",
			Help: "Total number of alerts delivered to Slack",
		},
		[]string{"reason", "severity"},
	)

	// DeliveryFailures counts messages that could not be posted.
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_delivery_failures_total",
			Help: "Total number of failed Slack deliveries",
		},
		[]string{"channel"},
	)

	// DeliveryDuration tracks webhook latency including retries.
	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cloudguard_notifier_delivery_duration_seconds",
			Help:    "Slack delivery latency including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ConfigReloads counts channel configuration reloads by result.
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudguard_notifier_config_reloads_total",
			Help: "Total number of channel configuration reloads",
		},
		[]string{"result"},
	)
)

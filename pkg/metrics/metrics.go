package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncAttempts tracks every delivery attempt by outcome and trigger.
	// Labels allow separating event-driven syncs from queue replays and manual runs.
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersync_attempts_total",
		Help: "Total number of user sync delivery attempts",
	}, []string{"status", "event_type"})

	// DeliveryDuration measures outbound API round trips
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "usersync_delivery_duration_seconds",
		Help:    "Duration of outbound API calls in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// QueueDepth is the primary lag indicator: pending items awaiting retry
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usersync_queue_depth",
		Help: "Current number of pending items in the retry queue",
	})

	// QueueProcessed counts retry outcomes per scheduled drain
	QueueProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersync_queue_processed_total",
		Help: "Total retry queue items processed, by result",
	}, []string{"result"})

	// RateLimited counts sends rejected before reaching the network
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usersync_rate_limited_total",
		Help: "Total delivery attempts rejected by the local rate limiter",
	})

	// WebhookValidations tracks inbound callback verification outcomes
	WebhookValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersync_webhook_validations_total",
		Help: "Total inbound webhook validations, by result",
	}, []string{"result"})

	// HealthStatus provides a binary 0/1 signal for the event consumer link
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usersync_healthy",
		Help: "Current health of the sync daemon (1 for healthy, 0 for unhealthy)",
	})
)

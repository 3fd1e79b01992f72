// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages flowing through the dispatcher.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages dispatched",
		},
		[]string{"direction"},
	)

	// ConversationsTotal tracks conversation lifecycle transitions.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversation status transitions",
		},
		[]string{"status"},
	)

	// WebhookEventsTotal tracks inbound webhook deliveries by outcome.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total inbound webhook deliveries",
		},
		[]string{"result"},
	)

	// DeliveryFailuresTotal tracks failed outbound channel calls.
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_failures_total",
			Help: "Total failed outbound provider deliveries",
		},
	)

	// NotificationsTotal tracks notifications created.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total notifications created",
		},
		[]string{"type"},
	)

	// BotDecisionsTotal tracks bot stage outcomes.
	BotDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_decisions_total",
			Help: "Total bot stage decisions",
		},
		[]string{"action"},
	)

	// CleanupClosedTotal tracks conversations force-closed by the scheduler.
	CleanupClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanup_closed_total",
			Help: "Total stale conversations closed by the cleanup scheduler",
		},
	)

	// WSConnectionsActive tracks active websocket sessions.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active websocket connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMessage records one dispatched message.
func RecordMessage(direction string) {
	MessagesTotal.WithLabelValues(direction).Inc()
}

// RecordTransition records a conversation status transition.
func RecordTransition(status string) {
	ConversationsTotal.WithLabelValues(status).Inc()
}

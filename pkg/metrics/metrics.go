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
			Name:    "portal_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// BackendCallDuration tracks calls made to the REST backend.
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_backend_call_duration_seconds",
			Help:    "REST backend call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "outcome"},
	)

	// ActionsTotal tracks dispatcher actions by outcome.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_actions_total",
			Help: "Create/update/delete/status actions by outcome",
		},
		[]string{"resource", "action", "outcome"},
	)

	// DerivationsTotal counts list view derivations per screen.
	DerivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_list_derivations_total",
			Help: "List view derivations per screen",
		},
		[]string{"screen"},
	)

	// ChatMessagesTotal counts chat message lifecycle transitions.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_chat_messages_total",
			Help: "Chat message status transitions",
		},
		[]string{"status"},
	)

	// PushLeasesActive tracks outstanding push channel leases.
	PushLeasesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_push_leases_active",
			Help: "Number of mounted chat views holding the push connection",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordBackendCall records metrics for a backend call.
func RecordBackendCall(method, outcome string, duration float64) {
	BackendCallDuration.WithLabelValues(method, outcome).Observe(duration)
}

// RecordAction records a dispatcher action outcome.
func RecordAction(resource, action, outcome string) {
	ActionsTotal.WithLabelValues(resource, action, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

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

	// ModelCallDuration tracks upstream model call duration, retries included.
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_call_duration_seconds",
			Help:    "Model backend call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "outcome"},
	)

	// ModelTokensTotal tracks total tokens reported by the model backend.
	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_tokens_total",
			Help: "Total model tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ModelRetriesTotal counts retried upstream attempts.
	ModelRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_retries_total",
			Help: "Upstream model attempts that were retried",
		},
	)

	// RateLimitRejectionsTotal counts admission-control rejections.
	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "model_rate_limit_rejections_total",
			Help: "Model calls rejected by admission control",
		},
	)

	// TurnsTotal counts handled turns by entry path and outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Conversation turns handled",
		},
		[]string{"message_type", "outcome"},
	)

	// PersistenceTotal counts persistence attempts by result.
	PersistenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_persistence_total",
			Help: "Turn persistence attempts",
		},
		[]string{"result"},
	)

	// PushConnectionsActive tracks live push-channel connections.
	PushConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "push_connections_active",
			Help: "Number of active push-channel connections",
		},
		[]string{"transport"},
	)

	// VoiceEventsTotal counts voice bridge events.
	VoiceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_events_total",
			Help: "Voice bridge events",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordModelCall records metrics for an upstream model call.
func RecordModelCall(model, outcome string, duration float64, tokensIn, tokensOut int) {
	ModelCallDuration.WithLabelValues(model, outcome).Observe(duration)
	ModelTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	ModelTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordTurn records a handled turn.
func RecordTurn(messageType, outcome string) {
	TurnsTotal.WithLabelValues(messageType, outcome).Inc()
}

// RecordPersistence records a persistence result ("ok", "error", "dropped").
func RecordPersistence(result string) {
	PersistenceTotal.WithLabelValues(result).Inc()
}

// IncrementPushConnections increments the active connection count.
func IncrementPushConnections(transport string) {
	PushConnectionsActive.WithLabelValues(transport).Inc()
}

// DecrementPushConnections decrements the active connection count.
func DecrementPushConnections(transport string) {
	PushConnectionsActive.WithLabelValues(transport).Dec()
}

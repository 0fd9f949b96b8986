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
			Name:    "relay_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ChatRepliesTotal counts chat replies by responder and outcome.
	ChatRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_chat_replies_total",
			Help: "Chat replies by responder and outcome",
		},
		[]string{"responder", "outcome"},
	)

	// LLMCompletionDuration tracks model completion latency.
	LLMCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_llm_completion_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// RealtimeConnectionsActive tracks open realtime connections.
	RealtimeConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_realtime_connections_active",
			Help: "Number of open realtime connections",
		},
	)

	// RoomDeliveriesTotal counts frames handed to connections per event.
	RoomDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_room_deliveries_total",
			Help: "Frames handed to connections by event and result",
		},
		[]string{"event", "result"},
	)

	// BroadcastTicksTotal counts analytics broadcast ticks.
	BroadcastTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_analytics_broadcast_ticks_total",
			Help: "Analytics broadcast ticks",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCompletion records metrics for one model completion.
func RecordLLMCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMCompletionDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordChatReply counts one finished chat request.
func RecordChatReply(responder, outcome string) {
	ChatRepliesTotal.WithLabelValues(responder, outcome).Inc()
}

// RecordDelivery counts one frame handed (or not) to a connection.
func RecordDelivery(event string, ok bool) {
	result := "sent"
	if !ok {
		result = "dropped"
	}
	RoomDeliveriesTotal.WithLabelValues(event, result).Inc()
}

// IncrementConnections increments the open realtime connection count.
func IncrementConnections() {
	RealtimeConnectionsActive.Inc()
}

// DecrementConnections decrements the open realtime connection count.
func DecrementConnections() {
	RealtimeConnectionsActive.Dec()
}

// Package observability exposes Prometheus metrics and OpenTelemetry tracing
// for the workforce core.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Routing metrics
	messagesRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_messages_routed_total",
			Help: "Total number of messages accepted by the router",
		},
		[]string{"type"},
	)

	messagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_messages_dropped_total",
			Help: "Total number of messages dropped by the router",
		},
		[]string{"reason"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_deliveries_total",
			Help: "Total number of per-recipient message deliveries",
		},
		[]string{"recipient_kind"},
	)

	// Tool metrics
	toolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_tool_invocations_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	toolInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seoflow_tool_invocation_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// LLM metrics
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_llm_calls_total",
			Help: "Total number of LLM completion calls",
		},
		[]string{"provider", "status"},
	)

	llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seoflow_llm_call_duration_seconds",
			Help:    "LLM completion call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	llmRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_llm_retries_total",
			Help: "Total number of retried LLM calls",
		},
		[]string{"provider", "kind"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoflow_llm_tokens_total",
			Help: "Total LLM token usage",
		},
		[]string{"provider", "direction"},
	)

	// Task metrics
	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seoflow_tasks",
			Help: "Number of tracked tasks by status",
		},
		[]string{"status"},
	)

	agentInboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seoflow_agent_inbox_depth",
			Help: "Number of messages waiting in an agent inbox",
		},
		[]string{"agent"},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesRoutedTotal,
			messagesDroppedTotal,
			deliveriesTotal,
			toolInvocationsTotal,
			toolInvocationDuration,
			llmCallsTotal,
			llmCallDuration,
			llmRetriesTotal,
			llmTokensTotal,
			tasksByStatus,
			agentInboxDepth,
		)
	})
}

// MetricsHandler returns an HTTP handler serving the metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessageRouted records a message accepted by the router.
func RecordMessageRouted(msgType string) {
	messagesRoutedTotal.WithLabelValues(msgType).Inc()
}

// RecordMessageDropped records a message the router could not deliver.
func RecordMessageDropped(reason string) {
	messagesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordDelivery records one per-recipient delivery.
func RecordDelivery(recipientKind string) {
	deliveriesTotal.WithLabelValues(recipientKind).Inc()
}

// RecordToolInvocation records a tool invocation outcome.
func RecordToolInvocation(tool, status string, duration time.Duration) {
	toolInvocationsTotal.WithLabelValues(tool, status).Inc()
	toolInvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordLLMCall records an LLM completion outcome.
func RecordLLMCall(provider, status string, duration time.Duration) {
	llmCallsTotal.WithLabelValues(provider, status).Inc()
	llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLLMRetry records a retried LLM call and the error kind that caused it.
func RecordLLMRetry(provider, kind string) {
	llmRetriesTotal.WithLabelValues(provider, kind).Inc()
}

// RecordLLMTokens records prompt/completion token usage.
func RecordLLMTokens(provider string, promptTokens, completionTokens int) {
	llmTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	llmTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}

// SetTasksByStatus sets the task gauge for one status.
func SetTasksByStatus(status string, count int) {
	tasksByStatus.WithLabelValues(status).Set(float64(count))
}

// SetAgentInboxDepth sets the inbox depth gauge for an agent.
func SetAgentInboxDepth(agent string, depth int) {
	agentInboxDepth.WithLabelValues(agent).Set(float64(depth))
}

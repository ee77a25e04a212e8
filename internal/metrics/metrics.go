package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tool metrics
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "category", "outcome"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatflow_tool_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	PolicyDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_policy_denials_total",
			Help: "Tool calls denied by policy",
		},
		[]string{"tool", "mode"},
	)

	// Chat metrics
	ChatResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_chat_responses_total",
			Help: "Total number of generated chat responses",
		},
		[]string{"provider", "model"},
	)

	ConversationsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_conversations_saved_total",
			Help: "Conversation persistence attempts",
		},
		[]string{"status"},
	)

	// Notification metrics
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_notifications_published_total",
			Help: "Notifications published to the event stream",
		},
		[]string{"type", "status"},
	)

	// Engine client metrics
	ClientCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_engine_client_calls_total",
			Help: "Workflow engine client calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ClientCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatflow_engine_client_call_duration_seconds",
			Help:    "Workflow engine client call latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatflow_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatflow_circuit_breaker_rejections_total",
			Help: "Calls rejected by an open circuit breaker",
		},
		[]string{"name"},
	)
)

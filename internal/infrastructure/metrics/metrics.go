package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contextd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Conversations
	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "conversations_created_total",
			Help:      "Total conversations created",
		},
	)

	BranchesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "branches_created_total",
			Help:      "Total branches forked",
		},
	)

	ItemsAppendedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "items_appended_total",
			Help:      "Total conversation items appended",
		},
	)

	TrimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "trims_total",
			Help:      "Total trim operations by mode",
		},
		[]string{"mode"},
	)

	// Token counters
	TokensPromptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "tokens_prompt_total",
			Help:      "Total prompt tokens recorded",
		},
		[]string{"model"},
	)

	TokensCompletionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "tokens_completion_total",
			Help:      "Total completion tokens recorded",
		},
		[]string{"model"},
	)

	// Storage failures
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "storage_errors_total",
			Help:      "Total storage backend failures",
		},
		[]string{"backend"},
	)

	// Retention
	RetentionSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Subsystem: "engine",
			Name:      "retention_swept_total",
			Help:      "Total conversations removed by retention sweeps",
		},
	)
)

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain metrics, exported at /metrics alongside fiberprometheus request metrics
var (
	// Summary operations by kind and outcome
	summaryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdigest_summary_operations_total",
		Help: "Total number of summary repository operations by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome: "ok" or the error kind

	// Store latency per operation
	summaryOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdigest_summary_operation_duration_seconds",
		Help:    "Summary repository operation latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	aiGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdigest_ai_generations_total",
		Help: "Total number of AI summaries created by model",
	}, []string{"model"})

	quotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperdigest_ai_quota_rejections_total",
		Help: "Total number of AI generations rejected by the monthly quota",
	})

	throttleRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdigest_ai_throttle_rejections_total",
		Help: "Total number of AI generations rejected by the burst throttle",
	}, []string{"backend"}) // backend: "redis" or "memory"

	apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdigest_api_errors_total",
		Help: "Total number of API error responses by code",
	}, []string{"code"})
)

// RecordAPIError counts an error response by its API error code
func RecordAPIError(code string) {
	apiErrors.WithLabelValues(code).Inc()
}

func observeSummaryOp(operation string, seconds float64, err error) {
	summaryOperationLatency.WithLabelValues(operation).Observe(seconds)
	summaryOperations.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

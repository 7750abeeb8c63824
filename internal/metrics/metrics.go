// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "digital_twin"

var (
	// HTTPRequestsTotal counts API requests.
	// Labels: route, status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestDuration tracks API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route"},
	)

	// VectorCallsTotal counts vector store calls.
	// Labels: op (upsert, query, info, delete, reset), result (success, error)
	VectorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "calls_total",
			Help:      "Total vector store calls by operation and result",
		},
		[]string{"op", "result"},
	)

	// VectorCallDuration tracks vector store latency.
	VectorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "call_duration_seconds",
			Help:      "Vector store call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// GenerationAttemptsTotal counts individual LLM attempts.
	// Labels: provider, outcome (success or an error kind)
	GenerationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Total LLM completion attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// GenerationDuration tracks complete Generate calls including retries.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "generation_duration_seconds",
			Help:      "LLM generation duration in seconds including retries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// FallbackAnswersTotal counts questions answered without any context.
	FallbackAnswersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "fallback_answers_total",
			Help:      "Questions answered with the no-information fallback",
		},
	)
)

// ObserveVectorCall records one vector store call.
func ObserveVectorCall(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	VectorCallsTotal.WithLabelValues(op, result).Inc()
	VectorCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

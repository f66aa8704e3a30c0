// Package metrics exposes Prometheus instrumentation for the HTTP API and
// the email pipeline. Counters are package-level so services can increment
// them without carrying a registry around.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TriggerEnqueued counts queue entries created by campaign triggers.
	TriggerEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_trigger_enqueued_total",
			Help: "Queue entries enqueued by campaign triggers",
		},
	)

	// TriggerDeduped counts enqueue attempts skipped by the dedup key.
	TriggerDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_trigger_deduped_total",
			Help: "Enqueue attempts skipped because the occurrence was already queued",
		},
	)

	// DrainProcessed counts entries claimed by the drainer, by outcome.
	DrainProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_drain_processed_total",
			Help: "Queue entries processed by the drainer",
		},
		[]string{"outcome"}, // sent, failed
	)

	// DrainRequeued counts failed/stuck entries given another attempt.
	DrainRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_drain_requeued_total",
			Help: "Queue entries requeued by the reconciliation sweep",
		},
		[]string{"reason"}, // failed, stuck
	)

	// DrainDeadLettered counts entries retired after exhausting attempts.
	DrainDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_drain_dead_lettered_total",
			Help: "Queue entries moved to dead_letter after exhausting attempts",
		},
	)

	// PersonalizeFallbacks counts LLM rewrites that fell back to the raw template.
	PersonalizeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_personalize_fallbacks_total",
			Help: "Personalization attempts that fell back to the raw template",
		},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	WorkerProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_items_processed_total", Help: "Items processed successfully per worker"},
		[]string{"job_name"})
	WorkerFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_items_failed_total", Help: "Items that failed per worker"},
		[]string{"job_name"})
	WorkerRunsLocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_runs_locked_total", Help: "Triggers that exited because another instance held the lock"},
		[]string{"job_name"})
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "queue_depth", Help: "Pending items per queue"},
		[]string{"queue"})
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhooks_received_total", Help: "Inbound webhook events by provider and verification outcome"},
		[]string{"provider", "verified"})
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request latency"},
		[]string{"method", "path", "status"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			WorkerProcessed,
			WorkerFailed,
			WorkerRunsLocked,
			QueueDepth,
			WebhooksReceived,
			HTTPRequestDuration,
		)
	})
	return promhttp.Handler()
}

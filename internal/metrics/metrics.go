// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsIngested  prometheus.Counter
	DocumentsProcessed *prometheus.CounterVec
	Conversions        *prometheus.CounterVec
	ProcessDuration    prometheus.Histogram
	DispatchFailures   prometheus.Counter
	Deliveries         *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DocumentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdraft_documents_ingested_total",
			Help: "Documents stored and queued for processing",
		}),
		DocumentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdraft_documents_processed_total",
			Help: "Processing attempts by terminal status",
		}, []string{"status"}),
		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdraft_conversions_total",
			Help: "Conversions by path (direct or ocr)",
		}, []string{"path"}),
		ProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdraft_process_duration_seconds",
			Help:    "Duration of a processing attempt",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdraft_dispatch_failures_total",
			Help: "Processing tasks that could not be enqueued",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdraft_deliveries_total",
			Help: "Task callback deliveries by result",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mdraft_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "code"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Ingested counts a stored and queued upload.
func (m *Metrics) Ingested() {
	if m == nil {
		return
	}
	m.DocumentsIngested.Inc()
}

// Processed records a finished attempt with its final status.
func (m *Metrics) Processed(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsProcessed.WithLabelValues(status).Inc()
	m.ProcessDuration.Observe(elapsed.Seconds())
}

// Converted counts a conversion by path, direct or ocr.
func (m *Metrics) Converted(path string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(path).Inc()
}

// DispatchFailed counts a processing task that could not be enqueued.
func (m *Metrics) DispatchFailed() {
	if m == nil {
		return
	}
	m.DispatchFailures.Inc()
}

// Delivered counts a callback delivery by result.
func (m *Metrics) Delivered(result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// Request counts a served HTTP request.
func (m *Metrics) Request(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

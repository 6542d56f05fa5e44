// Package metrics owns the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docintell"

type Metrics struct {
	registry *prometheus.Registry

	documentsProcessed *prometheus.CounterVec
	processingSeconds  *prometheus.HistogramVec
	embeddingSeconds   prometheus.Histogram
	chatTurns          *prometheus.CounterVec
	generationSeconds  prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	httpSeconds        *prometheus.HistogramVec
	httpInFlight       prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents that reached a terminal status.",
		}, []string{"file_type", "status"}),
		processingSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_processing_seconds",
			Help:      "Time from processing start to terminal status.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"file_type"}),
		embeddingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_seconds",
			Help:      "Duration of one embedding request.",
			Buckets:   prometheus.DefBuckets,
		}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_seconds",
			Help:      "Duration of one answer generation call.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests being served.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documentsProcessed,
		m.processingSeconds,
		m.embeddingSeconds,
		m.chatTurns,
		m.generationSeconds,
		m.httpRequests,
		m.httpSeconds,
		m.httpInFlight,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DocumentProcessed(fileType, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.documentsProcessed.WithLabelValues(fileType, status).Inc()
	m.processingSeconds.WithLabelValues(fileType).Observe(took.Seconds())
}

func (m *Metrics) EmbeddingRequest(took time.Duration) {
	if m == nil {
		return
	}
	m.embeddingSeconds.Observe(took.Seconds())
}

func (m *Metrics) ChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Generation(took time.Duration) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(took.Seconds())
}

// HTTPStarted marks a request in flight and returns the func that records it
// once served.
func (m *Metrics) HTTPStarted() func(method, route string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	m.httpInFlight.Inc()
	return func(method, route string, status int) {
		m.httpInFlight.Dec()
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.httpSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

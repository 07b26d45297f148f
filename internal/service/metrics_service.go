package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the webhook
// pipeline and the HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	mediaIngested   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	exportJobs      *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook messages by outcome",
	}, []string{"outcome"})

	messagesSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_messages_total",
		Help: "Outbound channel messages by kind and result",
	}, []string{"kind", "result"})

	mediaIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_ingested_total",
		Help: "Ingested media attachments by mime type",
	}, []string{"mime_type"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_transitions_total",
		Help: "Participant state transitions by flow",
	}, []string{"flow"})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Export jobs by terminal status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, webhookEvents, messagesSent, mediaIngested, transitions, exportJobs, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		webhookEvents:   webhookEvents,
		messagesSent:    messagesSent,
		mediaIngested:   mediaIngested,
		transitions:     transitions,
		exportJobs:      exportJobs,
	}
}

// Handler exposes the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// WebhookEvent counts one inbound message outcome.
func (s *MetricsService) WebhookEvent(outcome string) {
	s.webhookEvents.WithLabelValues(outcome).Inc()
}

// MessageSent counts one outbound send attempt.
func (s *MetricsService) MessageSent(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	s.messagesSent.WithLabelValues(kind, result).Inc()
}

// MediaIngested counts one stored attachment.
func (s *MetricsService) MediaIngested(mimeType string) {
	s.mediaIngested.WithLabelValues(mimeType).Inc()
}

// Transition counts one persisted state transition.
func (s *MetricsService) Transition(flow string) {
	s.transitions.WithLabelValues(flow).Inc()
}

// ExportJobFinished counts one export job reaching a terminal status.
func (s *MetricsService) ExportJobFinished(status string) {
	s.exportJobs.WithLabelValues(status).Inc()
}

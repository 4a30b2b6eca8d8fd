package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes reported to workflow metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the workflow.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	commandTotal       *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	promotionDecisions *prometheus.CounterVec
	certificatesIssued prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
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

	commandTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_commands_total",
		Help: "Workflow commands dispatched, by command and outcome",
	}, []string{"command", "outcome"})

	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_command_duration_seconds",
		Help:    "Duration of workflow command execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	promotionDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_decisions_total",
		Help: "Promotion rule engine decisions, by outcome rule",
	}, []string{"outcome"})

	certificatesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Graduation certificates committed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, commandTotal, commandDuration, promotionDecisions, certificatesIssued, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		commandTotal:       commandTotal,
		commandDuration:    commandDuration,
		promotionDecisions: promotionDecisions,
		certificatesIssued: certificatesIssued,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveCommand records a dispatched workflow command.
func (m *MetricsService) ObserveCommand(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.commandTotal.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordPromotionDecision counts rule engine outcomes; accepted decisions use "accepted".
func (m *MetricsService) RecordPromotionDecision(outcome string) {
	if m == nil {
		return
	}
	m.promotionDecisions.WithLabelValues(outcome).Inc()
}

// RecordCertificateIssued counts committed certificates.
func (m *MetricsService) RecordCertificateIssued() {
	if m == nil {
		return
	}
	m.certificatesIssued.Inc()
}

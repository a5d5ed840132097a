package service

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garasku/garasku-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// booking workflow.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	approvalDecisions *prometheus.CounterVec
	bookingsOnHold    prometheus.Gauge
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

	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_status_transitions_total",
		Help: "Total booking status transitions by target status",
	}, []string{"to"})

	approvalDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_decisions_total",
		Help: "Total approval request resolutions by type and decision",
	}, []string{"type", "decision"})

	bookingsOnHold := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bookings_on_hold",
		Help: "Number of bookings currently on hold",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, statusTransitions, approvalDecisions, bookingsOnHold, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		statusTransitions: statusTransitions,
		approvalDecisions: approvalDecisions,
		bookingsOnHold:    bookingsOnHold,
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

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveStatusTransition counts a workflow move and tracks the on-hold gauge.
func (m *MetricsService) ObserveStatusTransition(from, to models.BookingStatus) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(string(to)).Inc()
	if to == models.StatusOnHold {
		m.bookingsOnHold.Inc()
	}
	if from == models.StatusOnHold {
		m.bookingsOnHold.Dec()
	}
}

// ObserveApprovalDecision counts a resolved approval request.
func (m *MetricsService) ObserveApprovalDecision(approvalType models.ApprovalType, decision models.ApprovalStatus) {
	if m == nil {
		return
	}
	m.approvalDecisions.WithLabelValues(string(approvalType), string(decision)).Inc()
}

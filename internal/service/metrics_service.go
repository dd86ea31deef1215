package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the attendance
// engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	sessionsStarted   prometheus.Counter
	sessionsClosed    *prometheus.CounterVec
	attendanceMarked  *prometheus.CounterVec
	tokensIssued      prometheus.Counter
	tokenVerified     *prometheus.CounterVec
	notifyDelivered   *prometheus.CounterVec
	notifyDropped     prometheus.Counter
	schedulerPasses   prometheus.Counter
	schedulerFailures prometheus.Counter
}

// NewMetricsService registers the collectors.
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

	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_started_total",
		Help: "Total attendance sessions opened",
	})

	sessionsClosed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_closed_total",
		Help: "Total attendance sessions closed, by final status and trigger",
	}, []string{"status", "trigger"})

	attendanceMarked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Total attendance marking attempts, by method and outcome",
	}, []string{"method", "outcome"})

	tokensIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_tokens_issued_total",
		Help: "Total attendance tokens issued",
	})

	tokenVerified := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_token_verifications_total",
		Help: "Total token verification attempts by outcome",
	}, []string{"outcome"})

	notifyDelivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Total notifications delivered to connected clients",
	}, []string{"type"})

	notifyDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Total notifications dropped by the delivery queue",
	})

	schedulerPasses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auto_end_scheduler_passes_total",
		Help: "Total auto-end scheduler passes",
	})

	schedulerFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auto_end_scheduler_failures_total",
		Help: "Total per-session failures during auto-end passes",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sessionsStarted, sessionsClosed,
		attendanceMarked, tokensIssued, tokenVerified, notifyDelivered, notifyDropped,
		schedulerPasses, schedulerFailures, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		sessionsStarted:   sessionsStarted,
		sessionsClosed:    sessionsClosed,
		attendanceMarked:  attendanceMarked,
		tokensIssued:      tokensIssued,
		tokenVerified:     tokenVerified,
		notifyDelivered:   notifyDelivered,
		notifyDropped:     notifyDropped,
		schedulerPasses:   schedulerPasses,
		schedulerFailures: schedulerFailures,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// SessionStarted increments the opened-sessions counter.
func (m *MetricsService) SessionStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
	}
}

// SessionClosed records a close by final status and trigger (manual/auto).
func (m *MetricsService) SessionClosed(status, trigger string) {
	if m != nil {
		m.sessionsClosed.WithLabelValues(status, trigger).Inc()
	}
}

// AttendanceMarked records a marking attempt outcome.
func (m *MetricsService) AttendanceMarked(method, outcome string) {
	if m != nil {
		m.attendanceMarked.WithLabelValues(method, outcome).Inc()
	}
}

// TokenIssued increments the issued-tokens counter.
func (m *MetricsService) TokenIssued() {
	if m != nil {
		m.tokensIssued.Inc()
	}
}

// TokenVerified records a verification outcome.
func (m *MetricsService) TokenVerified(outcome string) {
	if m != nil {
		m.tokenVerified.WithLabelValues(outcome).Inc()
	}
}

// NotificationDelivered records a successful push.
func (m *MetricsService) NotificationDelivered(kind string) {
	if m != nil {
		m.notifyDelivered.WithLabelValues(kind).Inc()
	}
}

// NotificationDropped records a dropped push.
func (m *MetricsService) NotificationDropped() {
	if m != nil {
		m.notifyDropped.Inc()
	}
}

// SchedulerPass records one auto-end scan.
func (m *MetricsService) SchedulerPass() {
	if m != nil {
		m.schedulerPasses.Inc()
	}
}

// SchedulerFailure records one per-session failure during a scan.
func (m *MetricsService) SchedulerFailure() {
	if m != nil {
		m.schedulerFailures.Inc()
	}
}

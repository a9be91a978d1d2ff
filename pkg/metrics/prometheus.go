// Package metrics provides Prometheus metrics for the form relay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcome labels.
const (
	OutcomeFulfilled = "fulfilled"
	OutcomeRejected  = "rejected"
	OutcomeSkipped   = "skipped"
)

// Rejection reasons.
const (
	ReasonRateLimited = "rate_limited"
	ReasonInvalid     = "invalid"
	ReasonMalformed   = "malformed"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Submission funnel
	submissionsReceived *prometheus.CounterVec
	submissionsAccepted *prometheus.CounterVec
	submissionsRejected *prometheus.CounterVec

	// Rate limiter
	rateLimitDenials     *prometheus.CounterVec
	rateLimitStoreErrors prometheus.Counter
	rateLimitEntries     prometheus.Gauge

	// Background fan-out
	backgroundTasks        *prometheus.CounterVec
	backgroundTaskDuration *prometheus.HistogramVec
	fanoutsInFlight        prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "formrelay",
		subsystem:        "relay",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.submissionsReceived = m.counterVec("submissions_received_total",
		"Form submissions received, before any gate", "form_type")
	m.submissionsAccepted = m.counterVec("submissions_accepted_total",
		"Form submissions accepted for background delivery", "form_type")
	m.submissionsRejected = m.counterVec("submissions_rejected_total",
		"Form submissions rejected before acceptance", "form_type", "reason")

	m.rateLimitDenials = m.counterVec("rate_limit_denials_total",
		"Requests denied by the rate limiter", "form_type")
	m.rateLimitStoreErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rate_limit_store_errors_total",
		Help:        "Rate limit store failures; the limiter fails open on them",
		ConstLabels: m.constLabels,
	})
	m.rateLimitEntries = m.gauge("rate_limit_entries",
		"Keys currently tracked by the rate limit store")

	m.backgroundTasks = m.counterVec("background_tasks_total",
		"Background delivery tasks by outcome", "task", "outcome")
	m.backgroundTaskDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "background_task_duration_seconds",
		Help:        "Duration of background delivery tasks",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"task"})
	m.fanoutsInFlight = m.gauge("fanouts_in_flight",
		"Accepted submissions whose background delivery has not settled")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// RecordSubmissionReceived counts a submission before the gates run.
func RecordSubmissionReceived(formType string) {
	globalManager.submissionsReceived.WithLabelValues(formType).Inc()
}

// RecordSubmissionAccepted counts a submission handed to the background fan-out.
func RecordSubmissionAccepted(formType string) {
	globalManager.submissionsAccepted.WithLabelValues(formType).Inc()
}

// RecordSubmissionRejected counts a submission refused before acceptance.
func RecordSubmissionRejected(formType, reason string) {
	globalManager.submissionsRejected.WithLabelValues(formType, reason).Inc()
	if reason == ReasonRateLimited {
		globalManager.rateLimitDenials.WithLabelValues(formType).Inc()
	}
}

// RecordRateLimitStoreError counts a store failure the limiter failed open on.
func RecordRateLimitStoreError() {
	globalManager.rateLimitStoreErrors.Inc()
}

// UpdateRateLimitEntries sets the number of tracked rate limit keys.
func UpdateRateLimitEntries(n int) {
	globalManager.rateLimitEntries.Set(float64(n))
}

// RecordBackgroundTask records one settled background task.
func RecordBackgroundTask(task, outcome string, seconds float64) {
	globalManager.backgroundTasks.WithLabelValues(task, outcome).Inc()
	globalManager.backgroundTaskDuration.WithLabelValues(task).Observe(seconds)
}

// IncFanoutsInFlight marks a fan-out as started.
func IncFanoutsInFlight() {
	globalManager.fanoutsInFlight.Inc()
}

// DecFanoutsInFlight marks a fan-out as settled.
func DecFanoutsInFlight() {
	globalManager.fanoutsInFlight.Dec()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package metrics provides Prometheus metrics for the evaluation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every pipeline metric.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	judgeBuckets   []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Pipeline stages
	stageOutcomes *prometheus.CounterVec
	stageLatency  *prometheus.HistogramVec
	submissions   *prometheus.CounterVec

	// Rate limiter
	limiterDecisions *prometheus.CounterVec

	// Judge
	judgeLatency prometheus.Histogram
	judgeErrors  *prometheus.CounterVec

	// Queues and workers
	queueDepth      *prometheus.GaugeVec
	queueEnqueued   *prometheus.CounterVec
	queueDequeued   *prometheus.CounterVec
	queueErrors     *prometheus.CounterVec
	workersActive   *prometheus.GaugeVec
	workersBusy     *prometheus.GaugeVec
	rankCoalesced   prometheus.Counter
	leasesRecovered *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

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
		namespace:      "pitchjudge",
		subsystem:      "pipeline",
		latencyBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		judgeBuckets:   []float64{500, 1000, 5000, 15000, 30000, 60000, 120000, 180000, 300000},
		registry:       prometheus.DefaultRegisterer,
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

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.stageOutcomes = m.counterVec("stage_outcomes_total",
		"Stage executions by outcome (done, retry, reschedule, fail)", "stage", "outcome")
	m.stageLatency = m.histogramVec("stage_latency_milliseconds",
		"Stage handler latency in milliseconds", "stage")
	m.submissions = m.counterVec("submission_transitions_total",
		"Submission status transitions by target status", "status")

	m.limiterDecisions = m.counterVec("rate_limiter_decisions_total",
		"Rate limiter decisions (admitted, denied, fail_open)", "outcome")

	m.judgeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "judge_latency_milliseconds",
		Help:        "AI judge call latency in milliseconds",
		Buckets:     m.judgeBuckets,
		ConstLabels: m.constLabels,
	})
	m.judgeErrors = m.counterVec("judge_errors_total", "AI judge call failures by kind", "kind")

	m.queueDepth = m.gaugeVec("queue_depth", "Tasks waiting per stage queue", "stage")
	m.queueEnqueued = m.counterVec("queue_enqueued_total", "Tasks enqueued per stage", "stage")
	m.queueDequeued = m.counterVec("queue_dequeued_total", "Tasks dequeued per stage", "stage")
	m.queueErrors = m.counterVec("queue_errors_total", "Queue failures per stage and reason", "stage", "reason")
	m.workersActive = m.gaugeVec("workers_active", "Workers running per stage", "stage")
	m.workersBusy = m.gaugeVec("workers_busy", "Workers currently executing a task per stage", "stage")
	m.rankCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rank_requests_coalesced_total",
		Help:        "Rank requests dropped because one was already pending for the domain",
		ConstLabels: m.constLabels,
	})
	m.leasesRecovered = m.counterVec("queue_leases_recovered_total",
		"In-flight tasks returned to the queue after their lease expired", "stage")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// GetRegistry returns the registry holding the global metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RecordStageOutcome counts one stage execution result.
func RecordStageOutcome(stage, outcome string) {
	globalManager.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordStageLatency records stage handler latency in milliseconds.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordSubmissionTransition counts a submission entering status.
func RecordSubmissionTransition(status string) {
	globalManager.submissions.WithLabelValues(status).Inc()
}

// RecordLimiterDecision counts a rate limiter decision.
func RecordLimiterDecision(outcome string) {
	globalManager.limiterDecisions.WithLabelValues(outcome).Inc()
}

// RecordJudgeLatency records AI judge latency in milliseconds.
func RecordJudgeLatency(latencyMs float64) {
	globalManager.judgeLatency.Observe(latencyMs)
}

// RecordJudgeError counts an AI judge failure.
func RecordJudgeError(kind string) {
	globalManager.judgeErrors.WithLabelValues(kind).Inc()
}

// UpdateQueueDepth sets the number of tasks waiting in a stage queue.
func UpdateQueueDepth(stage string, depth int) {
	globalManager.queueDepth.WithLabelValues(stage).Set(float64(depth))
}

// RecordQueueEnqueue counts an enqueued task.
func RecordQueueEnqueue(stage string) {
	globalManager.queueEnqueued.WithLabelValues(stage).Inc()
}

// RecordQueueDequeue counts a dequeued task.
func RecordQueueDequeue(stage string) {
	globalManager.queueDequeued.WithLabelValues(stage).Inc()
}

// RecordQueueError counts a queue failure.
func RecordQueueError(stage, reason string) {
	globalManager.queueErrors.WithLabelValues(stage, reason).Inc()
}

// RecordLeaseRecovered counts tasks returned after an expired lease.
func RecordLeaseRecovered(stage string, n int) {
	globalManager.leasesRecovered.WithLabelValues(stage).Add(float64(n))
}

// UpdateWorkersActive sets the worker count of a stage pool.
func UpdateWorkersActive(stage string, count int) {
	globalManager.workersActive.WithLabelValues(stage).Set(float64(count))
}

// AddWorkersBusy adjusts the busy worker gauge of a stage pool.
func AddWorkersBusy(stage string, delta int) {
	globalManager.workersBusy.WithLabelValues(stage).Add(float64(delta))
}

// RecordRankCoalesced counts a dropped duplicate rank request.
func RecordRankCoalesced() {
	globalManager.rankCoalesced.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a failed operation.
func RecordErrorLatency(component, errorType string, latency float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latency)
}

// UpdateSystemMemoryUsage sets the system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseTime float64) {
	globalManager.systemGCPauseTime.Observe(pauseTime)
}

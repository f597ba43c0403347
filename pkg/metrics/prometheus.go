// Package metrics provides Prometheus metrics for the CLTV pipeline and its
// read API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Model fitting
	fitsTotal        *prometheus.CounterVec
	fitDuration      *prometheus.HistogramVec
	fitIterations    *prometheus.GaugeVec
	fitLogLikelihood *prometheus.GaugeVec

	// Per-customer prediction
	predictionsTotal  prometheus.Counter
	predictionErrors  *prometheus.CounterVec
	predictionLatency prometheus.Histogram

	// Ranking store
	customersRanked        prometheus.Gauge
	customersBySegment     *prometheus.GaugeVec
	repositoryQueryLatency prometheus.Histogram

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Pipeline
	pipelineRuns        *prometheus.CounterVec
	pipelineDuration    prometheus.Histogram
	stageDuration       *prometheus.HistogramVec
	transactionsDropped *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton behind package-level record functions

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // served by /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cltv",
		subsystem:        "",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.fitsTotal = auto.NewCounterVec(m.counter("fits_total", "Model fits by model and outcome"), []string{"model", "outcome"})
	m.fitDuration = auto.NewHistogramVec(m.histogram("fit_duration_milliseconds", "Wall time of a model fit",
		[]float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}), []string{"model"})
	m.fitIterations = auto.NewGaugeVec(m.gauge("fit_iterations", "Optimizer iterations of the last fit"), []string{"model"})
	m.fitLogLikelihood = auto.NewGaugeVec(m.gauge("fit_log_likelihood", "Mean per-customer log-likelihood of the last fit"), []string{"model"})

	m.predictionsTotal = auto.NewCounter(m.counter("predictions_total", "Customers valued successfully"))
	m.predictionErrors = auto.NewCounterVec(m.counter("prediction_errors_total", "Customers that could not be valued, by error kind"), []string{"kind"})
	m.predictionLatency = auto.NewHistogram(m.histogram("prediction_latency_milliseconds", "Time to value one customer",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50}))

	m.customersRanked = auto.NewGauge(m.gauge("customers_ranked", "Customers held by the ranking store"))
	m.customersBySegment = auto.NewGaugeVec(m.gauge("customers_by_segment", "Customers per value segment"), []string{"segment"})
	m.repositoryQueryLatency = auto.NewHistogram(m.histogram("repository_query_latency_milliseconds", "Ranking store read latency", nil))

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Jobs waiting in the prediction queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Capacity of the prediction queue"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total", "Jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeued_total", "Jobs dequeued"))
	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Prediction workers"))
	m.workerActive = auto.NewGauge(m.gauge("worker_active", "Prediction workers currently busy"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Job processing time including the store write", nil))

	m.pipelineRuns = auto.NewCounterVec(m.counter("pipeline_runs_total", "Pipeline runs by outcome"), []string{"outcome"})
	m.pipelineDuration = auto.NewHistogram(m.histogram("pipeline_duration_seconds", "Wall time of a pipeline run",
		[]float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}))
	m.stageDuration = auto.NewHistogramVec(m.histogram("pipeline_stage_duration_milliseconds", "Wall time of a pipeline stage", nil), []string{"stage"})
	m.transactionsDropped = auto.NewCounterVec(m.counter("transactions_dropped_total", "Invoice lines removed while cleaning, by rule"), []string{"reason"})
	m.cacheLookups = auto.NewCounterVec(m.counter("param_cache_lookups_total", "Fitted parameter cache lookups by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration", nil),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_usage_bytes", "Heap in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordFit records a fit outcome ("success", "not_converged", "unstable", "invalid", "cached").
func RecordFit(model, outcome string) {
	globalManager.fitsTotal.WithLabelValues(model, outcome).Inc()
}

// RecordFitResult records the duration, iterations and log-likelihood of a successful fit.
func RecordFitResult(model string, durationMs float64, iterations int, logLikelihood float64) {
	globalManager.fitDuration.WithLabelValues(model).Observe(durationMs)
	globalManager.fitIterations.WithLabelValues(model).Set(float64(iterations))
	globalManager.fitLogLikelihood.WithLabelValues(model).Set(logLikelihood)
}

// RecordPrediction records one valued customer.
func RecordPrediction(latencyMs float64) {
	globalManager.predictionsTotal.Inc()
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordPredictionError records a customer that could not be valued.
func RecordPredictionError(kind string) {
	globalManager.predictionErrors.WithLabelValues(kind).Inc()
}

// UpdateCustomersRanked sets the ranking store size.
func UpdateCustomersRanked(count int) {
	globalManager.customersRanked.Set(float64(count))
}

// UpdateSegmentCount sets the number of customers in a segment.
func UpdateSegmentCount(segment string, count int) {
	globalManager.customersBySegment.WithLabelValues(segment).Set(float64(count))
}

// RecordRepositoryQueryLatency records a ranking store read.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive moves the busy worker gauge by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActive.Add(float64(delta))
}

// RecordWorkerProcessingLatency records the time a worker spent on a job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordPipelineRun records a finished pipeline run.
func RecordPipelineRun(outcome string, seconds float64) {
	globalManager.pipelineRuns.WithLabelValues(outcome).Inc()
	globalManager.pipelineDuration.Observe(seconds)
}

// RecordStageDuration records the wall time of one pipeline stage.
func RecordStageDuration(stage string, durationMs float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(durationMs)
}

// RecordTransactionsDropped adds lines removed by a cleaning rule.
func RecordTransactionsDropped(reason string, count int) {
	if count > 0 {
		globalManager.transactionsDropped.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordCacheLookup records a parameter cache "hit", "miss" or "error".
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records the last GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry served at /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

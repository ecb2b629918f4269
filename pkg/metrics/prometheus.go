// Package metrics provides Prometheus metrics for the feed ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Core business metrics
	eventsProcessed   prometheus.Counter
	eventsDuplicate   prometheus.Counter
	scoringLatency    *prometheus.HistogramVec
	feedRequests      *prometheus.CounterVec
	feedIndexUpdates  prometheus.Counter
	feedIndexSize     prometheus.Gauge
	catalogSize       prometheus.Gauge
	scoringErrors     prometheus.Counter
	feedIndexErrors   prometheus.Counter
	counterClampTotal *prometheus.CounterVec

	// Rescore passes
	rescoreDuration prometheus.Histogram
	rescoreLastUnix prometheus.Gauge
	rescoreCount    prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryUpdateLatency *prometheus.HistogramVec
	repositoryQueryLatency  *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueTotal      prometheus.Counter
	queueDequeueTotal      prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// External scorer
	externalCalls        *prometheus.CounterVec
	externalBreakerState prometheus.Gauge

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "feedrank",
		subsystem:        "feed",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	auto := promauto.With(m.registry)

	m.eventsProcessed = auto.NewCounter(m.counterOpts("events_processed_total", "Engagement events applied to counters"))
	m.eventsDuplicate = auto.NewCounter(m.counterOpts("events_duplicate_total", "Engagement events rejected as duplicates"))
	m.scoringLatency = auto.NewHistogramVec(m.histogramOpts("scoring_latency_milliseconds", "Scoring latency in milliseconds by scorer", nil), []string{"scorer"})
	m.feedRequests = auto.NewCounterVec(m.counterOpts("feed_requests_total", "Feed pages served by mode"), []string{"mode"})
	m.feedIndexUpdates = auto.NewCounter(m.counterOpts("index_updates_total", "Feed index upserts"))
	m.feedIndexSize = auto.NewGauge(m.gaugeOpts("index_size", "Videos in the global feed index"))
	m.catalogSize = auto.NewGauge(m.gaugeOpts("catalog_size", "Eligible videos in the catalog"))
	m.scoringErrors = auto.NewCounter(m.counterOpts("scoring_errors_total", "Scoring failures"))
	m.feedIndexErrors = auto.NewCounter(m.counterOpts("index_errors_total", "Feed index update failures"))
	m.counterClampTotal = auto.NewCounterVec(m.counterOpts("counter_clamped_total", "Counter decrements floored at zero"), []string{"backend"})

	m.rescoreDuration = auto.NewHistogram(m.histogramOpts("rescore_duration_milliseconds", "Duration of full feed rescore passes", []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}))
	m.rescoreLastUnix = auto.NewGauge(m.gaugeOpts("rescore_last_unix", "Unix time of the last completed rescore pass"))
	m.rescoreCount = auto.NewCounter(m.counterOpts("rescore_total", "Completed rescore passes"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})

	m.repositoryUpdateLatency = auto.NewHistogramVec(m.histogramOpts("repository_update_latency_milliseconds", "Repository write latency", nil), []string{"store"})
	m.repositoryQueryLatency = auto.NewHistogramVec(m.histogramOpts("repository_query_latency_milliseconds", "Repository read latency", nil), []string{"store"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Events waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size over capacity"))
	m.queueEnqueueTotal = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Events enqueued"))
	m.queueDequeueTotal = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Events dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Enqueue latency", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Running workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Events processed per second across workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "End to end event processing latency", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Events that failed processing"))

	m.externalCalls = auto.NewCounterVec(m.counterOpts("external_scorer_calls_total", "External relevance scorer calls by outcome"), []string{"outcome"})
	m.externalBreakerState = auto.NewGauge(m.gaugeOpts("external_scorer_breaker_state", "Circuit breaker state: 0 closed, 1 half-open, 2 open"))

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of failed operations", nil), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap allocation in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordEventProcessed increments the events processed counter.
func RecordEventProcessed() { globalManager.eventsProcessed.Inc() }

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordScoringLatency records scoring latency in milliseconds for a scorer.
func RecordScoringLatency(scorer string, latencyMs float64) {
	globalManager.scoringLatency.WithLabelValues(scorer).Observe(latencyMs)
}

// RecordFeedRequest counts a served feed page.
func RecordFeedRequest(mode string) { globalManager.feedRequests.WithLabelValues(mode).Inc() }

// RecordFeedIndexUpdate increments the index upsert counter.
func RecordFeedIndexUpdate() { globalManager.feedIndexUpdates.Inc() }

// UpdateFeedIndexSize sets the number of indexed videos.
func UpdateFeedIndexSize(n int) { globalManager.feedIndexSize.Set(float64(n)) }

// UpdateCatalogSize sets the number of eligible catalog videos.
func UpdateCatalogSize(n int) { globalManager.catalogSize.Set(float64(n)) }

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() { globalManager.scoringErrors.Inc() }

// RecordFeedIndexError increments the index errors counter.
func RecordFeedIndexError() { globalManager.feedIndexErrors.Inc() }

// RecordCounterClamped counts a decrement that would have gone below zero.
func RecordCounterClamped(backend string) { globalManager.counterClampTotal.WithLabelValues(backend).Inc() }

// RecordRescore records a completed rescore pass.
func RecordRescore(durationMs float64, finishedUnix int64) {
	globalManager.rescoreDuration.Observe(durationMs)
	globalManager.rescoreLastUnix.Set(float64(finishedUnix))
	globalManager.rescoreCount.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRepositoryUpdateLatency records a write latency for the named store.
func RecordRepositoryUpdateLatency(store string, latencyMs float64) {
	globalManager.repositoryUpdateLatency.WithLabelValues(store).Observe(latencyMs)
}

// RecordRepositoryQueryLatency records a read latency for the named store.
func RecordRepositoryQueryLatency(store string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(store).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueTotal.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueTotal.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerMessagesPerSecond sets the processing rate.
func UpdateWorkerMessagesPerSecond(rate float64) { globalManager.workerMessagesPerSecond.Set(rate) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordExternalCall counts an external scorer call by outcome (ok, error, rejected).
func RecordExternalCall(outcome string) { globalManager.externalCalls.WithLabelValues(outcome).Inc() }

// UpdateExternalBreakerState sets the breaker state gauge.
func UpdateExternalBreakerState(state int) { globalManager.externalBreakerState.Set(float64(state)) }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry holding the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

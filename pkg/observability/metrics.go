package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Capture metrics
	CapturedLogsTotal            *prometheus.CounterVec
	CapturedPropertyChangesTotal prometheus.Counter

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Retention metrics
	CleanupDeletedTotal  prometheus.Counter
	CleanupArchivedTotal prometheus.Counter
	CleanupBatchFailures prometheus.Counter

	// Analytics metrics
	AnalyticsQueryDuration *prometheus.HistogramVec
	AnalyticsCacheHits     prometheus.Counter
	AnalyticsCacheMisses   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "changeledger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "changeledger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CapturedLogsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "changeledger_captured_logs_total",
				Help: "Total number of audit log records staged by capture",
			},
			[]string{"state"},
		),
		CapturedPropertyChangesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "changeledger_captured_property_changes_total",
				Help: "Total number of property change records staged by capture",
			},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "changeledger_store_operations_total",
				Help: "Total number of log store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "changeledger_store_operation_duration_seconds",
				Help:    "Log store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CleanupDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "changeledger_cleanup_deleted_total",
				Help: "Total number of audit log records deleted by retention cleanup",
			},
		),
		CleanupArchivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "changeledger_cleanup_archived_total",
				Help: "Total number of audit log records archived before deletion",
			},
		),
		CleanupBatchFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "changeledger_cleanup_batch_failures_total",
				Help: "Total number of retention cleanup batches that failed",
			},
		),
		AnalyticsQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "changeledger_analytics_query_duration_seconds",
				Help:    "Analytics report computation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		AnalyticsCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "changeledger_analytics_cache_hits_total",
				Help: "Total number of analytics report cache hits",
			},
		),
		AnalyticsCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "changeledger_analytics_cache_misses_total",
				Help: "Total number of analytics report cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CapturedLogsTotal,
		m.CapturedPropertyChangesTotal,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.CleanupDeletedTotal,
		m.CleanupArchivedTotal,
		m.CleanupBatchFailures,
		m.AnalyticsQueryDuration,
		m.AnalyticsCacheHits,
		m.AnalyticsCacheMisses,
	)

	return m
}

// Handler returns the Prometheus scrape handler for the registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveStoreOperation records the outcome and duration of one store call
func (m *Metrics) ObserveStoreOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveHTTPRequest records one handled HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

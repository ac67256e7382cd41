package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes used as the "outcome" label
const (
	OutcomeSuccess = "success"
	OutcomeUnsafe  = "unsafe"
	OutcomeError   = "error"
)

// registry holds every service metric; /metrics serves only this registry
var registry = prometheus.NewRegistry()

var factory = promauto.With(registry)

var (
	queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrbot_queries_total",
			Help: "Total number of questions processed, by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	queryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hrbot_query_duration_seconds",
			Help:    "End-to-end question processing duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"intent"},
	)

	cacheRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrbot_cache_requests_total",
			Help: "Response cache lookups, by result (hit or miss)",
		},
		[]string{"result"},
	)

	safetyViolations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrbot_safety_violations_total",
			Help: "Rendered queries rejected by the safety gate, by reason",
		},
		[]string{"reason"},
	)

	datasetLoads = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrbot_dataset_loads_total",
			Help: "CSV dataset loads, by outcome",
		},
		[]string{"outcome"},
	)

	datasetLoadDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name: "hrbot_dataset_load_duration_seconds",
			Help: "Time spent ingesting a CSV dataset",
		},
	)

	datasetRows = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hrbot_dataset_rows",
			Help: "Rows currently loaded per dataset handle",
		},
		[]string{"dataset"},
	)

	historyWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrbot_history_writes_total",
			Help: "Query history writes, by outcome",
		},
		[]string{"outcome"},
	)

	authAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrbot_auth_attempts_total",
			Help: "Login attempts, by outcome",
		},
		[]string{"outcome"},
	)

	httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		},
		[]string{"method", "path"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry returns the registry holding all service metrics
func Registry() *prometheus.Registry {
	return registry
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordQueryMetrics records metrics for a processed question
func RecordQueryMetrics(intent, outcome string, duration time.Duration, cached bool) {
	if intent == "" {
		intent = "unknown"
	}
	queriesTotal.WithLabelValues(intent, outcome).Inc()
	queryDuration.WithLabelValues(intent).Observe(duration.Seconds())

	if cached {
		cacheRequests.WithLabelValues("hit").Inc()
	} else {
		cacheRequests.WithLabelValues("miss").Inc()
	}
}

// RecordSafetyViolation counts a rejection by the safety gate
func RecordSafetyViolation(reason string) {
	safetyViolations.WithLabelValues(reason).Inc()
}

// RecordDatasetLoad records a dataset ingestion attempt
func RecordDatasetLoad(handle string, rows int, duration time.Duration, err error) {
	datasetLoadDuration.Observe(duration.Seconds())
	if err != nil {
		datasetLoads.WithLabelValues(OutcomeError).Inc()
		return
	}
	datasetLoads.WithLabelValues(OutcomeSuccess).Inc()
	datasetRows.WithLabelValues(handle).Set(float64(rows))
}

// RecordHistoryWrite records the result of persisting a query to history
func RecordHistoryWrite(err error) {
	if err != nil {
		historyWrites.WithLabelValues(OutcomeError).Inc()
		return
	}
	historyWrites.WithLabelValues(OutcomeSuccess).Inc()
}

// RecordAuthAttempt records a login attempt
func RecordAuthAttempt(success bool) {
	if success {
		authAttempts.WithLabelValues(OutcomeSuccess).Inc()
		return
	}
	authAttempts.WithLabelValues("failure").Inc()
}

// RecordHTTPMetrics records metrics for HTTP requests
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration, responseSize int) {
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if responseSize > 0 {
		httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

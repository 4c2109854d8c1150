package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the dashboard backend
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Cache
	cacheLookups     *prometheus.CounterVec
	cacheErrors      *prometheus.CounterVec
	cacheSharedLoads *prometheus.CounterVec
	cacheMode        prometheus.Gauge
	invalidations    *prometheus.CounterVec

	// Aggregation
	aggregationDuration *prometheus.HistogramVec
	upstreamFailures    *prometheus.CounterVec

	// HTTP
	httpRequests     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	rateLimitBackend prometheus.Gauge

	uptime prometheus.GaugeFunc
}

// Default histogram buckets for aggregation duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var promMetrics *PrometheusMetrics

var startTime = time.Now()

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by tier and result (hit, miss)",
			},
			[]string{"tier", "result"},
		),

		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Cache backend errors by backend and operation",
			},
			[]string{"backend", "operation"},
		),

		cacheSharedLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_shared_loads_total",
				Help:      "Cache misses served by an in-flight computation for the same key",
			},
			[]string{"tier"},
		),

		cacheMode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_backend_mode",
				Help:      "Cache backend mode (0=connecting, 1=shared, 2=fallback)",
			},
		),

		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Cache keys invalidated after writes, by result",
			},
			[]string{"result"},
		),

		aggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dashboard_aggregation_duration_milliseconds",
				Help:      "Duration of uncached dashboard aggregations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"result"},
		),

		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_failures_total",
				Help:      "Failed upstream reads by dependency",
			},
			[]string{"dependency"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),

		rateLimitBackend: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limit_degraded",
				Help:      "1 when rate limiting runs on local buckets instead of Redis",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)

	registry.MustRegister(
		pm.cacheLookups,
		pm.cacheErrors,
		pm.cacheSharedLoads,
		pm.cacheMode,
		pm.invalidations,
		pm.aggregationDuration,
		pm.upstreamFailures,
		pm.httpRequests,
		pm.rateLimited,
		pm.rateLimitBackend,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordCacheLookup records a hit or miss at the given tier (store, route, service).
func RecordCacheLookup(tier string, hit bool) {
	if promMetrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	promMetrics.cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordCacheError records a swallowed cache backend error.
func RecordCacheError(backend, operation string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheErrors.WithLabelValues(backend, operation).Inc()
}

// RecordSharedLoad records a miss that joined an in-flight computation.
func RecordSharedLoad(tier string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheSharedLoads.WithLabelValues(tier).Inc()
}

// SetCacheBackendMode publishes the current cache backend mode.
func SetCacheBackendMode(mode int) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheMode.Set(float64(mode))
}

// RecordInvalidation records one invalidated key.
func RecordInvalidation(ok bool) {
	if promMetrics == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	promMetrics.invalidations.WithLabelValues(result).Inc()
}

// RecordAggregation records the duration of one uncached aggregation.
// result: "ok", "not_found", "error"
func RecordAggregation(durationMs int64, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.aggregationDuration.WithLabelValues(result).Observe(float64(durationMs))
}

// RecordUpstreamFailure records a failed upstream read.
func RecordUpstreamFailure(dependency string) {
	if promMetrics == nil {
		return
	}
	promMetrics.upstreamFailures.WithLabelValues(dependency).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(route string, code int) {
	if promMetrics == nil {
		return
	}
	promMetrics.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordRateLimited records a rejected request.
func RecordRateLimited(route string) {
	if promMetrics == nil {
		return
	}
	promMetrics.rateLimited.WithLabelValues(route).Inc()
}

// SetRateLimitDegraded publishes whether rate limiting fell back to local buckets.
func SetRateLimitDegraded(degraded bool) {
	if promMetrics == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	promMetrics.rateLimitBackend.Set(v)
}

// PrometheusHandler returns the HTTP handler for /metrics/prometheus
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "prometheus metrics not initialized", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the registry, or nil before InitPrometheus.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}

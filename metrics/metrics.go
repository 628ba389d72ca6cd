// Package metrics provides Prometheus metrics for the cleaning validation API.
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//   - http_response_size_bytes: Histogram of bytes sent, after compression
//
// Requests rejected before routing (rate limit, body size) carry the path
// label "unmatched".
//
// Engine metrics track the size and health of the last computed snapshot.
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "path"},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	CatalogEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_entities",
			Help: "Entities in the current snapshot",
		},
		[]string{"kind"},
	)

	StudiesRequired = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "studies_required_total",
			Help: "Cleaning validation studies required across all groups",
		},
	)

	DegenerateMacoTrains = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "maco_degenerate_trains",
			Help: "Trains whose MACO fell back to the sentinel value",
		},
	)

	EngineWarnings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_warnings",
			Help: "Warnings produced by the last computation",
		},
	)

	ComputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_compute_duration_seconds",
			Help:    "Time to load and compute a snapshot",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_refresh_total",
			Help: "Snapshot refreshes by result",
		},
		[]string{"result"},
	)

	IntegrityFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_integrity_failures_total",
			Help: "Refreshes whose snapshot failed the integrity check",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(HTTPResponseSize)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(CatalogEntities)
	prometheus.MustRegister(StudiesRequired)
	prometheus.MustRegister(DegenerateMacoTrains)
	prometheus.MustRegister(EngineWarnings)
	prometheus.MustRegister(ComputeDuration)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(IntegrityFailuresTotal)
}

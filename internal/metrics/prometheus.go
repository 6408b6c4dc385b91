package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Upstream API
	APICallsTotal  *prometheus.CounterVec
	APICallErrors  *prometheus.CounterVec
	APICallLatency *prometheus.HistogramVec

	// Response cache
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge

	// Enrichment
	EnrichmentDuration prometheus.Histogram
	EnrichmentFallback prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prboard_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prboard_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		APICallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prboard_api_calls_total",
				Help: "Total number of upstream API calls",
			},
			[]string{"category", "from_cache"},
		),

		APICallErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prboard_api_call_errors_total",
				Help: "Total number of upstream API failures",
			},
			[]string{"kind"},
		),

		APICallLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prboard_api_call_duration_seconds",
				Help:    "Duration of upstream API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prboard_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"category"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prboard_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"category"},
		),

		CacheEvictions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "prboard_cache_evictions_total",
				Help: "Total number of entries evicted under quota pressure",
			},
		),

		CacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "prboard_cache_entries",
				Help: "Current number of cached responses",
			},
		),

		EnrichmentDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prboard_enrichment_duration_seconds",
				Help:    "Duration of batch enrichment passes",
				Buckets: prometheus.DefBuckets,
			},
		),

		EnrichmentFallback: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "prboard_enrichment_fallbacks_total",
				Help: "Total number of items degraded to fallback records",
			},
		),
	}
}

// RecordRequest records an HTTP request metric
func (m *Metrics) RecordRequest(route, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration)
}

// RecordAPICall records an upstream API call
func (m *Metrics) RecordAPICall(category string, fromCache bool, duration float64) {
	cached := "false"
	if fromCache {
		cached = "true"
	}
	m.APICallsTotal.WithLabelValues(category, cached).Inc()
	if !fromCache {
		m.APICallLatency.WithLabelValues(category).Observe(duration)
	}
}

// RecordAPIError records an upstream API failure
func (m *Metrics) RecordAPIError(kind string) {
	m.APICallErrors.WithLabelValues(kind).Inc()
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit(category string) {
	m.CacheHits.WithLabelValues(category).Inc()
}

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss(category string) {
	m.CacheMisses.WithLabelValues(category).Inc()
}

// RecordEviction records quota-pressure evictions
func (m *Metrics) RecordEviction(count int) {
	m.CacheEvictions.Add(float64(count))
}

// UpdateCacheEntries updates the cached-response gauge
func (m *Metrics) UpdateCacheEntries(count int) {
	m.CacheEntries.Set(float64(count))
}

// RecordEnrichment records one enrichment pass
func (m *Metrics) RecordEnrichment(duration float64, fallbacks int) {
	m.EnrichmentDuration.Observe(duration)
	m.EnrichmentFallback.Add(float64(fallbacks))
}

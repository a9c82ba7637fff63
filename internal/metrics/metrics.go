// Package metrics exposes Prometheus collectors for the paper-feeds service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchPagesTotal            prometheus.Counter
	fetchPapersTotal           *prometheus.CounterVec
	fetchRunsTotal             *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	upstreamRequestsTotal      *prometheus.CounterVec
	upstreamDurationSeconds    *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	searchCacheTotal           *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfeeds_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperfeeds_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		fetchPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "paperfeeds_fetch_pages_total",
				Help: "Total number of Crossref work pages fetched.",
			},
		)

		fetchPapersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfeeds_fetch_papers_total",
				Help: "Papers processed by the fetch pipeline, labeled by result (inserted, updated, skipped).",
			},
			[]string{"result"},
		)

		fetchRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfeeds_fetch_runs_total",
				Help: "Total number of fetch runs, labeled by final status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "paperfeeds_active_workers",
				Help: "Number of workers currently running a fetch.",
			},
		)

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfeeds_upstream_requests_total",
				Help: "Requests sent to Crossref and OpenAlex, labeled by api and status code (0 on transport error).",
			},
			[]string{"api", "code"},
		)

		upstreamDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperfeeds_upstream_request_duration_seconds",
				Help:    "Histogram of upstream API latencies, labeled by api.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"api"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperfeeds_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by host.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		searchCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperfeeds_search_cache_total",
				Help: "Journal search cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetchPage records one fetched page and what happened to its papers.
func ObserveFetchPage(inserted, updated, skipped int) {
	Init()
	fetchPagesTotal.Inc()
	fetchPapersTotal.WithLabelValues("inserted").Add(float64(inserted))
	fetchPapersTotal.WithLabelValues("updated").Add(float64(updated))
	fetchPapersTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveFetchRun increments the run counter for the given status.
func ObserveFetchRun(status string) {
	Init()
	fetchRunsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveUpstream records one Crossref or OpenAlex request.
func ObserveUpstream(api string, code int, duration time.Duration) {
	Init()
	upstreamRequestsTotal.WithLabelValues(api, strconv.Itoa(code)).Inc()
	upstreamDurationSeconds.WithLabelValues(api).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveSearchCache counts a cache lookup outcome.
func ObserveSearchCache(result string) {
	Init()
	searchCacheTotal.WithLabelValues(result).Inc()
}

// Package metrics exposes Prometheus collectors for the crawl service.
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
	frontierTransitionsTotal   *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	linksDiscoveredTotal       *prometheus.CounterVec
	linksDuplicateTotal        prometheus.Counter
	workerRunning              prometheus.Gauge
	workerPaused               prometheus.Gauge
	throttleWaitSeconds        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		frontierTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_frontier_transitions_total",
				Help: "Work item outcomes recorded by the crawl loop, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		)

		linksDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_links_discovered_total",
				Help: "New URLs added to the frontier, labeled by classification.",
			},
			[]string{"classification"},
		)

		linksDuplicateTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_links_duplicate_total",
				Help: "Discovered URLs that were already known to the frontier.",
			},
		)

		workerRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_worker_running",
				Help: "1 while a crawl worker is active.",
			},
		)

		workerPaused = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_worker_paused",
				Help: "1 while the crawl is paused.",
			},
		)

		throttleWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_throttle_wait_seconds",
				Help:    "Histogram of politeness delays before each fetch.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition counts a work item reaching outcome (crawled, failed or released).
func ObserveTransition(outcome string) {
	Init()
	frontierTransitionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records how long a fetch took and whether it succeeded.
func ObserveFetch(success bool, duration time.Duration) {
	Init()
	outcome := "success"
	if !success {
		outcome = "error"
	}
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveDiscovery counts a discovered link, split by whether the frontier accepted it.
func ObserveDiscovery(classification string, inserted bool) {
	Init()
	if !inserted {
		linksDuplicateTotal.Inc()
		return
	}
	linksDiscoveredTotal.WithLabelValues(classification).Inc()
}

// SetWorkerRunning flips the worker gauge.
func SetWorkerRunning(running bool) {
	Init()
	workerRunning.Set(boolGauge(running))
}

// SetPaused flips the paused gauge.
func SetPaused(paused bool) {
	Init()
	workerPaused.Set(boolGauge(paused))
}

// ObserveThrottleWait records a politeness delay.
func ObserveThrottleWait(duration time.Duration) {
	Init()
	throttleWaitSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

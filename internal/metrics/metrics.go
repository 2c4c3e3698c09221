// Package metrics exposes Prometheus collectors for the sync service.
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
	syncRunsTotal           *prometheus.CounterVec
	syncDurationSeconds     *prometheus.HistogramVec
	syncItemsTotal          *prometheus.CounterVec
	scrapePagesTotal        prometheus.Counter
	documentFetchesTotal    *prometheus.CounterVec
	captchaSolvesTotal      *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec
	syncRunning             prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colasync_runs_total",
				Help: "Total number of sync runs, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		syncDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "colasync_run_duration_seconds",
				Help:    "Histogram of sync run durations, labeled by strategy.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"strategy"},
		)

		syncItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colasync_items_total",
				Help: "Total items touched by sync runs, labeled by action.",
			},
			[]string{"action"},
		)

		scrapePagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "colasync_scrape_pages_total",
				Help: "Total list pages fetched from the source site.",
			},
		)

		documentFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colasync_document_fetches_total",
				Help: "Total document fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		captchaSolvesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colasync_captcha_solves_total",
				Help: "Total captcha solve attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		syncRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "colasync_run_in_progress",
				Help: "Whether a sync run is currently in progress.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveSyncRun records the outcome and duration of one sync run.
func ObserveSyncRun(strategy, outcome string, duration time.Duration) {
	Init()
	syncRunsTotal.WithLabelValues(strategy, outcome).Inc()
	syncDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveSyncItems adds item counts for one run by action.
func ObserveSyncItems(created, updated, skipped, deprecated, deleted int) {
	Init()
	syncItemsTotal.WithLabelValues("created").Add(float64(created))
	syncItemsTotal.WithLabelValues("updated").Add(float64(updated))
	syncItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
	syncItemsTotal.WithLabelValues("deprecated").Add(float64(deprecated))
	syncItemsTotal.WithLabelValues("deleted").Add(float64(deleted))
}

// ObserveScrapePage increments the list page counter.
func ObserveScrapePage() {
	Init()
	scrapePagesTotal.Inc()
}

// ObserveDocumentFetch increments the document fetch counter for the given
// outcome.
func ObserveDocumentFetch(outcome string) {
	Init()
	documentFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCaptchaSolve increments the captcha solve counter for the given
// outcome.
func ObserveCaptchaSolve(outcome string) {
	Init()
	captchaSolvesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetSyncRunning flips the in-progress gauge.
func SetSyncRunning(running bool) {
	Init()
	if running {
		syncRunning.Set(1)
		return
	}
	syncRunning.Set(0)
}

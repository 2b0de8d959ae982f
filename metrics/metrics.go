// Package metrics provides Prometheus metrics for scrape runs and the read
// API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "artscrape"

var (
	// EntriesTotal counts processed site entries by outcome.
	EntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Total number of site entries processed by scrape runs",
		},
		[]string{"source", "outcome"},
	)

	// FetchDuration measures page fetch duration.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of page fetches in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	// RunsTotal counts completed scrape runs.
	RunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of completed scrape runs",
		},
	)

	// LastRunTimestamp records when the last scrape run finished.
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last scrape run finished",
		},
	)

	// APIRequestsTotal counts read API requests.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of read API requests",
		},
		[]string{"route", "code"},
	)
)

// RecordEntry records the outcome of one site entry.
func RecordEntry(source, outcome string) {
	EntriesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordFetch records a page fetch.
func RecordFetch(mode string, d time.Duration) {
	FetchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordRun records a finished scrape run.
func RecordRun(finishedAt time.Time) {
	RunsTotal.Inc()
	LastRunTimestamp.Set(float64(finishedAt.Unix()))
}

// RecordRequest records a served API request.
func RecordRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

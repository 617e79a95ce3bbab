// Package metrics exposes Prometheus collectors for the scrape pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal         *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	recordsTotal         *prometheus.CounterVec
	retriesTotal         *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_fetches_total",
				Help: "Outbound fetches, labeled by source and success.",
			},
			[]string{"source", "ok"},
		)
		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_fetch_duration_seconds",
				Help:    "Outbound fetch latency, labeled by source.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		)
		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_records_total",
				Help: "Processed records, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)
		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_fetch_retries_total",
				Help: "Fetch retries, labeled by source.",
			},
			[]string{"source"},
		)
		initHTTP()
	})
}

// ObserveFetch records one outbound fetch.
func ObserveFetch(source string, ok bool, d time.Duration) {
	if fetchesTotal == nil {
		return
	}
	okLabel := "false"
	if ok {
		okLabel = "true"
	}
	fetchesTotal.WithLabelValues(source, okLabel).Inc()
	fetchDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// RecordResult tallies a record's terminal outcome.
func RecordResult(source, outcome string) {
	if recordsTotal == nil {
		return
	}
	recordsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordRetry counts one retry attempt.
func RecordRetry(source string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(source).Inc()
}

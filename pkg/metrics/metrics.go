// Package metrics exposes Prometheus instrumentation for the poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PollCycles counts completed poll cycles partitioned by result
	// ("ok", "partial", "error").
	PollCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "octowatch_poll_cycles_total",
		Help: "Total number of poll cycles, by result",
	}, []string{"result"})

	// DatasetErrors counts failed dataset queries by dataset name
	// ("bids", "utilization").
	DatasetErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "octowatch_dataset_errors_total",
		Help: "Total number of failed dataset queries, by dataset",
	}, []string{"dataset"})

	// QueryDuration observes the wall time of each datastore query.
	QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "octowatch_neso_query_duration_seconds",
		Help:    "Duration of NESO datastore queries, by dataset",
		Buckets: prometheus.DefBuckets,
	}, []string{"dataset"})

	// LastPoll records the unix time of the last completed poll cycle.
	LastPoll = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "octowatch_last_poll_timestamp_seconds",
		Help: "Unix timestamp of the last completed poll cycle",
	})
)

func init() {
	prometheus.MustRegister(PollCycles, DatasetErrors, QueryDuration, LastPoll)
}

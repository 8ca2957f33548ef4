package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DropReasonNoRange   = "no_range"
	DropReasonZeroStart = "zero_range_start"
)

var (
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blocksync_pages_fetched_total",
			Help: "Total block list pages fetched and decoded",
		},
	)

	RecordsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blocksync_records_accepted_total",
			Help: "Total block records that passed the range filters",
		},
	)

	RecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blocksync_records_inserted_total",
			Help: "Total block records written as new rows",
		},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blocksync_records_dropped_total",
			Help: "Total block records skipped by the range filters",
		},
		[]string{"reason"},
	)

	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blocksync_runs_total",
			Help: "Total sync runs by outcome",
		},
		[]string{"outcome"},
	)

	CheckpointTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blocksync_checkpoint_timestamp_seconds",
			Help: "Unix time of the checkpoint the last run started from",
		},
	)
)

func ObserveRun(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	Runs.WithLabelValues(outcome).Inc()
}

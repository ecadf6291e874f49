// Package metrics exports the executor's commit/abort/latency counters via
// prometheus/client_golang, grounded on tinykv's scheduler/server/kv/metrics.go
// (a CounterVec per outcome, a HistogramVec for latency) plus a Gauge for
// pending cross-coordinator responses (spec.md §9's "pending_responses").
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Outcome is one of "commit", "abort_lock", "abort_read_validation",
	// "abort_no_retry" -- the four counters executor.Counters tallies.
	Transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scar",
			Subsystem: "txn",
			Name:      "total",
			Help:      "Transactions processed by the executor, by outcome.",
		}, []string{"coordinator", "protocol", "outcome"})

	CommitLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scar",
			Subsystem: "txn",
			Name:      "commit_latency_seconds",
			Help:      "Time from transaction start to a successful commit.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"coordinator", "protocol"})

	PendingResponses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scar",
			Subsystem: "executor",
			Name:      "pending_responses",
			Help:      "In-flight remote responses a worker is still awaiting.",
		}, []string{"coordinator", "worker"})
)

func init() {
	prometheus.MustRegister(Transactions, CommitLatency, PendingResponses)
}

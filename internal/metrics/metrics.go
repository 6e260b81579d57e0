package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Monitor metrics
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchwatch_reconcile_total",
			Help: "Reconciliation passes by state kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "changed"/"unchanged"/"error"
	)

	callbackDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchwatch_callback_dispatch_total",
			Help: "Callback invocations by state kind",
		},
		[]string{"kind"},
	)

	watchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchwatch_watch_events_total",
			Help: "Filesystem notification events routed by state kind",
		},
		[]string{"kind"},
	)

	readRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "benchwatch_read_retries_total",
			Help: "State file reads that needed at least one retry",
		},
	)

	resultsLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "benchwatch_results_load_duration_seconds",
			Help:    "Duration of a full results directory rescan",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	// Writer metrics
	stateWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benchwatch_state_writes_total",
			Help: "Atomic state file writes by file",
		},
		[]string{"file"},
	)
)

// RecordReconcile records one reconciliation pass for a state kind
func RecordReconcile(kind, outcome string) {
	reconcileTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDispatch records callback invocations for a state kind
func RecordDispatch(kind string, count int) {
	callbackDispatchTotal.WithLabelValues(kind).Add(float64(count))
}

// RecordWatchEvent records a routed filesystem notification
func RecordWatchEvent(kind string) {
	watchEventsTotal.WithLabelValues(kind).Inc()
}

// RecordReadRetry records a state file read that did not succeed first try
func RecordReadRetry() {
	readRetriesTotal.Inc()
}

// RecordResultsLoad records the duration of a results directory rescan
func RecordResultsLoad(duration time.Duration) {
	resultsLoadDuration.Observe(duration.Seconds())
}

// RecordStateWrite records an atomic write of a state file
func RecordStateWrite(file string) {
	stateWritesTotal.WithLabelValues(file).Inc()
}

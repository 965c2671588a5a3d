package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WAL / durability metrics
	WALAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_wal_appends_total",
			Help: "Total number of records appended to the WAL",
		},
	)

	WALSyncCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_wal_sync_calls_total",
			Help: "Total number of fsync calls issued by the durability controller",
		},
	)

	WALBytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_wal_bytes_written_total",
			Help: "Total bytes written to the WAL",
		},
	)

	WALSyncSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_wal_sync_seconds",
			Help:    "fsync latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Commit metrics
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Total number of committed transactions by origin",
		},
		[]string{"origin"}, // explicit, auto_commit, import
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_commit_duration_seconds",
			Help:    "Time taken to commit a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Branch metrics
	BranchesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_branches_total",
			Help: "Current number of branches",
		},
	)

	// Recovery metrics
	RecoveryRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_recovery_records_total",
			Help: "Total number of WAL records replayed during recovery",
		},
	)
)

func init() {
	prometheus.MustRegister(WALAppendsTotal)
	prometheus.MustRegister(WALSyncCallsTotal)
	prometheus.MustRegister(WALBytesWrittenTotal)
	prometheus.MustRegister(WALSyncSeconds)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(BranchesTotal)
	prometheus.MustRegister(RecoveryRecordsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

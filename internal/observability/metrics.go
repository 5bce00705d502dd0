package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plansync_service",
		Subsystem: "reconcile",
		Name:      "sync_runs_total",
		Help:      "Number of reconciliation passes executed, labeled by tolerance policy.",
	}, []string{"policy"})

	candidatesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plansync_service",
		Subsystem: "reconcile",
		Name:      "candidates_total",
		Help:      "Number of (session, activity) candidate pairs generated.",
	})

	acceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plansync_service",
		Subsystem: "reconcile",
		Name:      "matches_accepted_total",
		Help:      "Number of matches applied to planned sessions.",
	})

	conflictSkipCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plansync_service",
		Subsystem: "reconcile",
		Name:      "ledger_conflicts_skipped_total",
		Help:      "Number of accepted pairs skipped because a concurrent sync won the ledger row.",
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plansync_service",
		Subsystem: "reconcile",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed reconciliation pass.",
	})

	snapshotPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plansync_service",
		Subsystem: "ingest",
		Name:      "last_activity_snapshot_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity snapshot persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(syncRunsCounter, candidatesCounter, acceptedCounter, conflictSkipCounter, lastSyncGauge, snapshotPersistGauge)
}

// RecordSyncRun updates reconciliation counters after a completed pass.
func RecordSyncRun(policy string, candidates, accepted, conflictSkips int) {
	syncRunsCounter.WithLabelValues(policy).Inc()
	candidatesCounter.Add(float64(candidates))
	acceptedCounter.Add(float64(accepted))
	conflictSkipCounter.Add(float64(conflictSkips))
	lastSyncGauge.Set(float64(time.Now().Unix()))
}

// RecordSnapshotPersisted updates the ingest watermark gauge.
func RecordSnapshotPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	snapshotPersistGauge.Set(float64(ts.Unix()))
}

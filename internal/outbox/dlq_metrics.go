package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func newDLQCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plansync_service",
		Subsystem: "dlq",
		Name:      name,
		Help:      help,
	}, []string{"topic", "event_type"})
}

var (
	dlqProcessedCounter   = newDLQCounter("messages_processed_total", "DLQ entries successfully handled.")
	dlqRequeuedCounter    = newDLQCounter("messages_requeued_total", "DLQ entries reinserted into the primary outbox.")
	dlqQuarantinedCounter = newDLQCounter("messages_quarantined_total", "DLQ entries parked after exhausting their retry budget.")
	dlqRetryCounter       = newDLQCounter("retry_scheduled_total", "DLQ entries scheduled for a future retry attempt.")

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plansync_service",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Entries currently waiting in the DLQ.",
	})
)

func init() {
	prometheus.MustRegister(
		dlqProcessedCounter,
		dlqRequeuedCounter,
		dlqQuarantinedCounter,
		dlqRetryCounter,
		dlqBacklogGauge,
	)
}

func recordDLQProcessed(entry dlqEntry) {
	dlqProcessedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var waiting int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&waiting)
	if err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(waiting))
}

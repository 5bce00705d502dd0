package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/plansync/internal/events"
	"example.com/plansync/internal/observability"
)

// SnapshotHandler persists activity.recorded events into the
// activity_snapshots table the reconciliation engine reads from. Snapshots
// are immutable: a replayed event for a known activity is a no-op.
type SnapshotHandler struct {
	pool *pgxpool.Pool
}

// NewSnapshotHandler constructs a handler backed by the provided pool.
func NewSnapshotHandler(pool *pgxpool.Pool) *SnapshotHandler {
	return &SnapshotHandler{pool: pool}
}

// Handle decodes and upserts one activity snapshot.
func (h *SnapshotHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "activity.recorded" {
		return fmt.Errorf("unexpected event type: %s", msg.EventType)
	}

	var event events.ActivityRecorded
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode activity.recorded payload: %w", err)
	}
	if event.ActivityID == "" || event.TenantID == "" || event.UserID == "" {
		return fmt.Errorf("activity.recorded missing identifiers")
	}

	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", event.TenantID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO activity_snapshots (tenant_id, user_id, activity_id, activity_type, started_at, moving_time_sec, elapsed_time_sec, distance_m, elevation_gain_m, avg_heart_rate, avg_power, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
         ON CONFLICT (tenant_id, activity_id) DO NOTHING`,
		event.TenantID,
		event.UserID,
		event.ActivityID,
		event.ActivityType,
		event.StartedAt,
		event.MovingTimeSec,
		event.ElapsedTimeSec,
		event.DistanceMeters,
		event.ElevationGainMeters,
		event.AverageHeartRate,
		event.AveragePower,
		now,
	); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordSnapshotPersisted(now)
	return nil
}

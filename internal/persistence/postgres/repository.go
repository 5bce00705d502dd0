package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/plansync/internal/domain"
	"example.com/plansync/internal/events"
	"example.com/plansync/internal/reconcile"
)

// Repository provides Postgres-backed persistence for planned sessions,
// the reconciliation ledger, activity snapshots, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `session_id, tenant_id, user_id, week, day_label, scheduled_date, kind, planned_duration_min,
        completed, completed_at, completion_source, linked_activity_id, match_score, created_at, updated_at`

// CreateSession persists a planned session.
func (r *Repository) CreateSession(ctx context.Context, session domain.PlannedSession) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", session.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO planned_sessions (` + sessionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err = tx.Exec(ctx, stmt,
		session.ID,
		session.TenantID,
		session.UserID,
		session.Week,
		session.Day,
		session.ScheduledDate,
		session.Kind,
		session.PlannedDurationMin,
		session.Completed,
		session.CompletedAt,
		session.CompletionSource,
		session.LinkedActivityID,
		session.MatchScore,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetSession retrieves a planned session by ID.
func (r *Repository) GetSession(ctx context.Context, tenantID, sessionID string) (*domain.PlannedSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM planned_sessions WHERE tenant_id=$1 AND session_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	session, err := scanSession(tx.QueryRow(ctx, query, tenantID, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns a user's planned sessions ordered by creation time.
func (r *Repository) ListSessions(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.PlannedSession, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + sessionColumns + ` FROM planned_sessions WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (created_at, session_id) < ($4, $5)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, session_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.PlannedSession, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListOpenSessions returns the sessions still available to the matcher:
// not completed and not linked to an activity.
func (r *Repository) ListOpenSessions(ctx context.Context, tenantID, userID string) ([]domain.PlannedSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM planned_sessions
        WHERE tenant_id=$1 AND user_id=$2 AND completed = FALSE AND linked_activity_id IS NULL
        ORDER BY created_at, session_id`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.PlannedSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// ListLinks returns every ledger row for a user, newest first.
func (r *Repository) ListLinks(ctx context.Context, tenantID, userID string) ([]domain.ReconciliationLink, error) {
	const query = `SELECT link_id, tenant_id, user_id, session_id, activity_id, day_delta, duration_delta, tier, created_at
        FROM reconciliation_links WHERE tenant_id=$1 AND user_id=$2 ORDER BY created_at DESC, link_id DESC`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]domain.ReconciliationLink, 0)
	for rows.Next() {
		var link domain.ReconciliationLink
		if err := rows.Scan(&link.ID, &link.TenantID, &link.UserID, &link.SessionID, &link.ActivityID, &link.DayDelta, &link.DurationDelta, &link.Tier, &link.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return links, nil
}

// ListActivitySnapshots returns consumer-ingested activity records started
// at or after the given time.
func (r *Repository) ListActivitySnapshots(ctx context.Context, tenantID, userID string, since time.Time) ([]domain.ActivityRecord, error) {
	const query = `SELECT activity_id, activity_type, started_at, moving_time_sec, elapsed_time_sec, distance_m, elevation_gain_m, avg_heart_rate, avg_power
        FROM activity_snapshots WHERE tenant_id=$1 AND user_id=$2 AND started_at >= $3
        ORDER BY started_at, activity_id`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		var rec domain.ActivityRecord
		if err := rows.Scan(&rec.ExternalID, &rec.Type, &rec.StartedAt, &rec.MovingTimeSec, &rec.ElapsedTimeSec, &rec.DistanceMeters, &rec.ElevationGainMeters, &rec.AverageHeartRate, &rec.AveragePower); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// ApplyMatches commits the accepted match set in a single transaction: per
// pair, a ledger insert gating the session completion update, plus outbox
// rows for the emitted events. The ledger's uniqueness constraints are the
// authoritative arbiter under concurrent syncs; a pair whose insert hits
// ON CONFLICT is skipped and the rest of the pass proceeds.
func (r *Repository) ApplyMatches(ctx context.Context, tenantID, userID, policy string, matches []reconcile.AcceptedMatch) ([]reconcile.AcceptedMatch, error) {
	applied := make([]reconcile.AcceptedMatch, 0, len(matches))
	if len(matches) == 0 {
		return applied, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	const insertLink = `INSERT INTO reconciliation_links (tenant_id, user_id, session_id, activity_id, day_delta, duration_delta, tier, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT DO NOTHING`

	const completeSession = `UPDATE planned_sessions
        SET completed = TRUE, completed_at = $1, completion_source = $2, linked_activity_id = $3, match_score = $4, updated_at = $5
        WHERE tenant_id = $6 AND session_id = $7`

	for _, match := range matches {
		tag, execErr := tx.Exec(ctx, insertLink,
			tenantID, userID, match.SessionID, match.ActivityID,
			match.DayDelta, match.DurationDelta, string(match.Tier), now,
		)
		if execErr != nil {
			err = execErr
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			// Lost the race to a concurrent sync; skip, not fatal.
			continue
		}

		if _, err = tx.Exec(ctx, completeSession,
			match.ActivityStartedAt.UTC(), domain.CompletionSourceSync, match.ActivityID, match.Score, now,
			tenantID, match.SessionID,
		); err != nil {
			return nil, err
		}

		if err = r.insertOutbox(ctx, tx, tenantID, userID, match.SessionID, "plan.session_completed", events.SessionCompleted{
			SessionID:     match.SessionID,
			TenantID:      tenantID,
			UserID:        userID,
			ActivityID:    match.ActivityID,
			CompletedAt:   match.ActivityStartedAt.UTC(),
			DayDelta:      match.DayDelta,
			DurationDelta: match.DurationDelta,
			Tier:          string(match.Tier),
			Score:         match.Score,
		}); err != nil {
			return nil, err
		}

		applied = append(applied, match)
	}

	syncID := uuid.NewString()
	if err = r.insertOutbox(ctx, tx, tenantID, userID, syncID, "plan.sync_completed", events.SyncCompleted{
		SyncID:        syncID,
		TenantID:      tenantID,
		UserID:        userID,
		Policy:        policy,
		AcceptedCount: len(applied),
		ConflictSkips: len(matches) - len(applied),
		OccurredAt:    now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return applied, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, userID, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := fmt.Sprintf("%s:%s", tenantID, userID)
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.PlannedSession, error) {
	var s domain.PlannedSession
	if err := row.Scan(
		&s.ID, &s.TenantID, &s.UserID, &s.Week, &s.Day, &s.ScheduledDate, &s.Kind, &s.PlannedDurationMin,
		&s.Completed, &s.CompletedAt, &s.CompletionSource, &s.LinkedActivityID, &s.MatchScore, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"plan.session_completed": {
		AggregateType: "planned_session",
		Topic:         "plan_events",
		SchemaSubject: "plan_events-value",
	},
	"plan.sync_completed": {
		AggregateType: "sync_pass",
		Topic:         "plan_sync_completed",
		SchemaSubject: "plan_sync_completed-value",
	},
}

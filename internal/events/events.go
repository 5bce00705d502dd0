// Package events defines the cross-service event payloads plansync emits
// and consumes.
package events

import "time"

// SessionCompleted is emitted when a reconciliation pass marks a planned
// session completed.
type SessionCompleted struct {
	SessionID     string    `json:"session_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	ActivityID    string    `json:"activity_id"`
	CompletedAt   time.Time `json:"completed_at"`
	DayDelta      int       `json:"day_delta"`
	DurationDelta float64   `json:"duration_delta"`
	Tier          string    `json:"tier"`
	Score         float64   `json:"score"`
}

// SyncCompleted summarises one finished reconciliation pass for downstream
// audit/UI consumers.
type SyncCompleted struct {
	SyncID        string    `json:"sync_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	Policy        string    `json:"policy"`
	AcceptedCount int       `json:"accepted_count"`
	ConflictSkips int       `json:"conflict_skips"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ActivityRecorded is consumed from the platform ingest topic; each message
// carries one externally recorded activity snapshot.
type ActivityRecorded struct {
	ActivityID          string    `json:"activity_id"`
	TenantID            string    `json:"tenant_id"`
	UserID              string    `json:"user_id"`
	ActivityType        string    `json:"activity_type"`
	StartedAt           time.Time `json:"started_at"`
	MovingTimeSec       int       `json:"moving_time_sec"`
	ElapsedTimeSec      int       `json:"elapsed_time_sec"`
	DistanceMeters      float64   `json:"distance_m"`
	ElevationGainMeters float64   `json:"elevation_gain_m"`
	AverageHeartRate    *float64  `json:"avg_heart_rate,omitempty"`
	AveragePower        *float64  `json:"avg_power,omitempty"`
}

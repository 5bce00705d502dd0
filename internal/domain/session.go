package domain

import "time"

// SessionKind classifies a planned training session.
type SessionKind string

const (
	SessionKindRide     SessionKind = "Ride"
	SessionKindLongRide SessionKind = "Long Ride"
	SessionKindRest     SessionKind = "Rest"
	SessionKindStrength SessionKind = "Strength"
)

// CompletionSourceSync marks sessions completed by the reconciliation engine
// rather than by hand.
const CompletionSourceSync = "external-sync"

// PlannedSession is a single scheduled unit of a user's training plan.
// ScheduledDate is a calendar date stored at UTC midnight; legacy sessions
// may have none and are never matched.
type PlannedSession struct {
	ID                 string
	TenantID           string
	UserID             string
	Week               int
	Day                string
	ScheduledDate      *time.Time
	Kind               SessionKind
	PlannedDurationMin int
	Completed          bool
	CompletedAt        *time.Time
	CompletionSource   *string
	LinkedActivityID   *string
	MatchScore         *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReconciliationLink is the durable ledger row written when a match is
// accepted. Once present, neither the session nor the activity may be
// proposed against a different partner for that user.
type ReconciliationLink struct {
	ID            int64
	TenantID      string
	UserID        string
	SessionID     string
	ActivityID    string
	DayDelta      int
	DurationDelta float64
	Tier          string
	CreatedAt     time.Time
}

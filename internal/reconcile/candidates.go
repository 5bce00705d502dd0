package reconcile

import (
	"time"

	"example.com/plansync/internal/domain"
)

// RideSessionKinds is the set of planned-session kinds eligible for
// matching. Anything else (rest days, strength work) never generates
// candidates.
var RideSessionKinds = map[domain.SessionKind]struct{}{
	domain.SessionKindRide:     {},
	domain.SessionKindLongRide: {},
}

// RideActivityTypes enumerates the platform activity types treated as
// rides. Extending the set does not touch matching logic.
var RideActivityTypes = map[string]struct{}{
	"Ride":             {},
	"VirtualRide":      {},
	"MountainBikeRide": {},
	"GravelRide":       {},
	"EBikeRide":        {},
}

// Candidate is an ephemeral (session, activity) pairing proposed during one
// reconciliation pass. It is consumed by the resolver and never persisted
// directly.
type Candidate struct {
	Session       domain.PlannedSession
	Activity      domain.ActivityRecord
	DayDelta      int
	DurationDelta float64
	Tier          Tier
}

// Score derives the persisted match-quality indicator from the duration
// delta. It does not gate acceptance; the policy windows already do.
func (c Candidate) Score() float64 {
	score := 1 - c.DurationDelta
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Exclusions carries the session and activity ids already consumed by
// ledger rows. Spent entries never re-enter candidate generation.
type Exclusions struct {
	Sessions   map[string]struct{}
	Activities map[string]struct{}
}

// NewExclusions builds the exclusion sets from persisted ledger rows.
func NewExclusions(links []domain.ReconciliationLink) Exclusions {
	ex := Exclusions{
		Sessions:   make(map[string]struct{}, len(links)),
		Activities: make(map[string]struct{}, len(links)),
	}
	for _, link := range links {
		ex.Sessions[link.SessionID] = struct{}{}
		ex.Activities[link.ActivityID] = struct{}{}
	}
	return ex
}

// SessionEligible reports whether a planned session may generate
// candidates: not completed, not linked, concretely scheduled, ride-like,
// with a positive planned duration. This filter is the primary defense
// against double-matching across syncs, independent of the ledger.
func SessionEligible(s domain.PlannedSession) bool {
	if s.Completed || s.LinkedActivityID != nil {
		return false
	}
	if s.ScheduledDate == nil {
		return false
	}
	if _, ok := RideSessionKinds[s.Kind]; !ok {
		return false
	}
	return s.PlannedDurationMin > 0
}

// ActivityEligible reports whether an activity record may generate
// candidates. Records with no id or no usable duration are excluded rather
// than failing the pass.
func ActivityEligible(a domain.ActivityRecord) bool {
	if a.ExternalID == "" || a.StartedAt.IsZero() {
		return false
	}
	if _, ok := RideActivityTypes[a.Type]; !ok {
		return false
	}
	return a.MatchDurationSec() > 0
}

// GenerateCandidates scans every eligible (session, activity) pair and
// proposes those inside the policy's day/duration windows.
func GenerateCandidates(sessions []domain.PlannedSession, activities []domain.ActivityRecord, ex Exclusions, policy TolerancePolicy) []Candidate {
	candidates := make([]Candidate, 0)
	for _, session := range sessions {
		if !SessionEligible(session) {
			continue
		}
		if _, spent := ex.Sessions[session.ID]; spent {
			continue
		}
		plannedSec := session.PlannedDurationMin * 60
		for _, activity := range activities {
			if !ActivityEligible(activity) {
				continue
			}
			if _, spent := ex.Activities[activity.ExternalID]; spent {
				continue
			}

			dayDelta := calendarDaysBetween(*session.ScheduledDate, activity.StartedAt)
			maxDelta, tier, ok := policy.Window(abs(dayDelta))
			if !ok {
				continue
			}

			durationDelta := float64(abs(activity.MatchDurationSec()-plannedSec)) / float64(plannedSec)
			if durationDelta > maxDelta {
				continue
			}

			candidates = append(candidates, Candidate{
				Session:       session,
				Activity:      activity,
				DayDelta:      dayDelta,
				DurationDelta: durationDelta,
				Tier:          tier,
			})
		}
	}
	return candidates
}

// calendarDaysBetween returns the signed whole-day distance from the
// session's scheduled date to the activity's start, truncating both to UTC
// midnight. Using calendar truncation rather than wall-clock distance
// avoids timezone artifacts at midnight boundaries; truncation is always in
// UTC, a known limitation preserved for compatibility with historical
// matches.
func calendarDaysBetween(sessionDate, activityStart time.Time) int {
	s := truncateToUTCDate(sessionDate)
	a := truncateToUTCDate(activityStart)
	return int(a.Sub(s).Hours() / 24)
}

func truncateToUTCDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package reconcile

import (
	"sort"
	"time"

	"example.com/plansync/internal/domain"
)

// AcceptedMatch is one (session, activity) pair selected by the resolver,
// carrying everything the applier and callers need.
type AcceptedMatch struct {
	SessionID         string
	ActivityID        string
	ActivityStartedAt time.Time
	DayDelta          int
	DurationDelta     float64
	Tier              Tier
	Score             float64
}

// Summary reports the outcome of one reconciliation pass.
type Summary struct {
	Policy              string
	CandidateCount      int
	AcceptedCount       int
	UnmatchedActivities int
	Accepted            []AcceptedMatch
}

// Resolve selects a one-to-one partial matching from the candidate set.
// Candidates are ordered by (|dayDelta|, durationDelta, sessionID,
// activityID) and accepted greedily; the id tie-breakers make the ordering
// total so repeated runs over the same snapshot pick the same pairs.
func Resolve(candidates []Candidate) []AcceptedMatch {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if abs(a.DayDelta) != abs(b.DayDelta) {
			return abs(a.DayDelta) < abs(b.DayDelta)
		}
		if a.DurationDelta != b.DurationDelta {
			return a.DurationDelta < b.DurationDelta
		}
		if a.Session.ID != b.Session.ID {
			return a.Session.ID < b.Session.ID
		}
		return a.Activity.ExternalID < b.Activity.ExternalID
	})

	usedSessions := make(map[string]struct{})
	usedActivities := make(map[string]struct{})
	accepted := make([]AcceptedMatch, 0, len(ordered))

	for _, c := range ordered {
		if _, taken := usedSessions[c.Session.ID]; taken {
			continue
		}
		if _, taken := usedActivities[c.Activity.ExternalID]; taken {
			continue
		}
		usedSessions[c.Session.ID] = struct{}{}
		usedActivities[c.Activity.ExternalID] = struct{}{}
		accepted = append(accepted, AcceptedMatch{
			SessionID:         c.Session.ID,
			ActivityID:        c.Activity.ExternalID,
			ActivityStartedAt: c.Activity.StartedAt,
			DayDelta:          c.DayDelta,
			DurationDelta:     c.DurationDelta,
			Tier:              c.Tier,
			Score:             c.Score(),
		})
	}
	return accepted
}

// Reconcile runs the full in-memory pipeline over one snapshot and returns
// the pass summary. UnmatchedActivities counts eligible, unspent activities
// that ended the pass without a match.
func Reconcile(sessions []domain.PlannedSession, activities []domain.ActivityRecord, ex Exclusions, policy TolerancePolicy) Summary {
	candidates := GenerateCandidates(sessions, activities, ex, policy)
	accepted := Resolve(candidates)

	eligible := 0
	for _, a := range activities {
		if !ActivityEligible(a) {
			continue
		}
		if _, spent := ex.Activities[a.ExternalID]; spent {
			continue
		}
		eligible++
	}

	return Summary{
		Policy:              policy.Name(),
		CandidateCount:      len(candidates),
		AcceptedCount:       len(accepted),
		UnmatchedActivities: eligible - len(accepted),
		Accepted:            accepted,
	}
}

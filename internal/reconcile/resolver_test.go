package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/plansync/internal/domain"
)

func TestResolveSameDayBeatsAdjacentDay(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	sessions := []domain.PlannedSession{plannedSession("sess-1", date, 60)}
	activities := []domain.ActivityRecord{
		// Same day, 55 minutes against a 60 minute plan.
		rideActivity("act-a", date.Add(9*time.Hour), 3300),
		// Next day, 75 minutes: also inside tolerance but lower priority.
		rideActivity("act-b", date.AddDate(0, 0, 1).Add(9*time.Hour), 4500),
	}

	summary := Reconcile(sessions, activities, noExclusions(), AdaptivePolicy{})
	require.Equal(t, 2, summary.CandidateCount)
	require.Equal(t, 1, summary.AcceptedCount)
	require.Equal(t, 1, summary.UnmatchedActivities)

	match := summary.Accepted[0]
	require.Equal(t, "sess-1", match.SessionID)
	require.Equal(t, "act-a", match.ActivityID)
	require.Equal(t, 0, match.DayDelta)
	require.Equal(t, TierHigh, match.Tier)
	require.InDelta(t, 1.0-300.0/3600.0, match.Score, 1e-9)
}

func TestResolveIndependentSessionsBothMatch(t *testing.T) {
	may4 := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	may5 := may4.AddDate(0, 0, 1)
	sessions := []domain.PlannedSession{
		plannedSession("sess-1", may4, 60),
		plannedSession("sess-2", may5, 60),
	}
	activities := []domain.ActivityRecord{
		rideActivity("act-a", may4.Add(9*time.Hour), 3300),
		rideActivity("act-b", may5.Add(9*time.Hour), 4500),
	}

	summary := Reconcile(sessions, activities, noExclusions(), AdaptivePolicy{})
	require.Equal(t, 2, summary.AcceptedCount)
	require.Equal(t, 0, summary.UnmatchedActivities)

	bySession := make(map[string]AcceptedMatch, len(summary.Accepted))
	for _, m := range summary.Accepted {
		bySession[m.SessionID] = m
	}
	require.Equal(t, "act-a", bySession["sess-1"].ActivityID)
	require.Equal(t, "act-b", bySession["sess-2"].ActivityID)
	require.Equal(t, TierHigh, bySession["sess-2"].Tier)
}

func TestResolveTwoSessionsOneActivity(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	// The id ordering deliberately opposes the delta ordering so the test
	// proves the duration delta decides, not the tie-breaker.
	sessions := []domain.PlannedSession{
		plannedSession("sess-a", date, 58),
		plannedSession("sess-b", date, 60),
	}
	activities := []domain.ActivityRecord{rideActivity("act-1", date.Add(9*time.Hour), 3540)}

	summary := Reconcile(sessions, activities, noExclusions(), AdaptivePolicy{})
	require.Equal(t, 2, summary.CandidateCount)
	require.Equal(t, 1, summary.AcceptedCount)
	require.Equal(t, 0, summary.UnmatchedActivities)

	// 60/3600 beats 60/3480: the larger plan carries the smaller fraction.
	require.Equal(t, "sess-b", summary.Accepted[0].SessionID)
}

func TestResolveTieBreaksBySessionThenActivityID(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	sessions := []domain.PlannedSession{
		plannedSession("sess-b", date, 60),
		plannedSession("sess-a", date, 60),
	}
	activities := []domain.ActivityRecord{
		rideActivity("act-z", date.Add(9*time.Hour), 3600),
		rideActivity("act-a", date.Add(15*time.Hour), 3600),
	}

	accepted := Resolve(GenerateCandidates(sessions, activities, noExclusions(), AdaptivePolicy{}))
	require.Len(t, accepted, 2)
	require.Equal(t, "sess-a", accepted[0].SessionID)
	require.Equal(t, "act-a", accepted[0].ActivityID)
	require.Equal(t, "sess-b", accepted[1].SessionID)
	require.Equal(t, "act-z", accepted[1].ActivityID)
}

func TestResolveNeverDoubleSpends(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	sessions := []domain.PlannedSession{
		plannedSession("sess-1", date, 60),
		plannedSession("sess-2", date, 60),
		plannedSession("sess-3", date, 60),
	}
	activities := []domain.ActivityRecord{
		rideActivity("act-1", date.Add(8*time.Hour), 3600),
		rideActivity("act-2", date.Add(12*time.Hour), 3600),
	}

	accepted := Resolve(GenerateCandidates(sessions, activities, noExclusions(), AdaptivePolicy{}))
	require.Len(t, accepted, 2)

	seenSessions := make(map[string]struct{})
	seenActivities := make(map[string]struct{})
	for _, m := range accepted {
		_, dupSession := seenSessions[m.SessionID]
		_, dupActivity := seenActivities[m.ActivityID]
		require.False(t, dupSession, "session %s accepted twice", m.SessionID)
		require.False(t, dupActivity, "activity %s accepted twice", m.ActivityID)
		seenSessions[m.SessionID] = struct{}{}
		seenActivities[m.ActivityID] = struct{}{}
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	sessions := []domain.PlannedSession{
		plannedSession("sess-3", date, 45),
		plannedSession("sess-1", date, 60),
		plannedSession("sess-2", date.AddDate(0, 0, 1), 90),
	}
	activities := []domain.ActivityRecord{
		rideActivity("act-2", date.Add(18*time.Hour), 2760),
		rideActivity("act-1", date.Add(7*time.Hour), 3480),
		rideActivity("act-3", date.AddDate(0, 0, 1).Add(10*time.Hour), 5280),
	}

	first := Reconcile(sessions, activities, noExclusions(), AdaptivePolicy{})
	second := Reconcile(sessions, activities, noExclusions(), AdaptivePolicy{})
	require.Equal(t, first, second)
}

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/plansync/internal/domain"
)

type mockRepo struct {
	sessions  []domain.PlannedSession
	links     []domain.ReconciliationLink
	snapshots []domain.ActivityRecord

	listErr  error
	applyErr error

	// applyResult overrides the echo behaviour when set.
	applyResult   []AcceptedMatch
	appliedInput  []AcceptedMatch
	appliedPolicy string
	snapshotSince time.Time
	snapshotCalls int
}

func (m *mockRepo) ListOpenSessions(_ context.Context, _, _ string) ([]domain.PlannedSession, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sessions, nil
}

func (m *mockRepo) ListLinks(_ context.Context, _, _ string) ([]domain.ReconciliationLink, error) {
	return m.links, nil
}

func (m *mockRepo) ListActivitySnapshots(_ context.Context, _, _ string, since time.Time) ([]domain.ActivityRecord, error) {
	m.snapshotCalls++
	m.snapshotSince = since
	return m.snapshots, nil
}

func (m *mockRepo) ApplyMatches(_ context.Context, _, _, policy string, matches []AcceptedMatch) ([]AcceptedMatch, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	m.appliedInput = matches
	m.appliedPolicy = policy
	if m.applyResult != nil {
		return m.applyResult, nil
	}
	return matches, nil
}

func TestRunSyncAppliesInlineActivities(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		sessions: []domain.PlannedSession{plannedSession("sess-1", date, 60)},
	}
	service := NewService(repo, "adaptive", 14*24*time.Hour)

	summary, err := service.RunSync(context.Background(), SyncInput{
		TenantID:   "tenant-1",
		UserID:     "user-1",
		Activities: []domain.ActivityRecord{rideActivity("act-1", date.Add(9*time.Hour), 3300)},
	})
	require.NoError(t, err)

	require.Equal(t, "adaptive", summary.Policy)
	require.Equal(t, 1, summary.AcceptedCount)
	require.Len(t, repo.appliedInput, 1)
	require.Equal(t, "adaptive", repo.appliedPolicy)
	require.Equal(t, "act-1", repo.appliedInput[0].ActivityID)
	require.Equal(t, 0, repo.snapshotCalls, "inline batch must not hit the snapshot store")
}

func TestRunSyncFallsBackToSnapshots(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	lookback := 7 * 24 * time.Hour
	repo := &mockRepo{
		sessions:  []domain.PlannedSession{plannedSession("sess-1", date, 60)},
		snapshots: []domain.ActivityRecord{rideActivity("act-1", date.Add(9*time.Hour), 3600)},
	}
	service := NewService(repo, "", lookback)

	before := time.Now().UTC().Add(-lookback)
	summary, err := service.RunSync(context.Background(), SyncInput{TenantID: "tenant-1", UserID: "user-1"})
	after := time.Now().UTC().Add(-lookback)
	require.NoError(t, err)

	require.Equal(t, 1, repo.snapshotCalls)
	require.False(t, repo.snapshotSince.Before(before))
	require.False(t, repo.snapshotSince.After(after))
	require.Equal(t, 1, summary.AcceptedCount)
}

func TestRunSyncIdempotentWithLedger(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		sessions: []domain.PlannedSession{plannedSession("sess-1", date, 60)},
		links: []domain.ReconciliationLink{
			{SessionID: "sess-1", ActivityID: "act-1"},
		},
	}
	service := NewService(repo, "adaptive", time.Hour)

	summary, err := service.RunSync(context.Background(), SyncInput{
		TenantID:   "tenant-1",
		UserID:     "user-1",
		Activities: []domain.ActivityRecord{rideActivity("act-1", date.Add(9*time.Hour), 3600)},
	})
	require.NoError(t, err)

	require.Equal(t, 0, summary.CandidateCount)
	require.Equal(t, 0, summary.AcceptedCount)
	require.Empty(t, repo.appliedInput)
}

func TestRunSyncReportsLedgerConflictSkips(t *testing.T) {
	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		sessions: []domain.PlannedSession{
			plannedSession("sess-1", date, 60),
			plannedSession("sess-2", date, 60),
		},
	}
	service := NewService(repo, "adaptive", time.Hour)

	activities := []domain.ActivityRecord{
		rideActivity("act-1", date.Add(8*time.Hour), 3600),
		rideActivity("act-2", date.Add(16*time.Hour), 3600),
	}

	// First establish the full accepted set, then re-run with the applier
	// reporting only one pair written, as if a concurrent sync claimed the
	// other at the ledger.
	summary, err := service.RunSync(context.Background(), SyncInput{
		TenantID: "tenant-1", UserID: "user-1", Activities: activities,
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.AcceptedCount)

	repo.applyResult = summary.Accepted[:1]
	summary, err = service.RunSync(context.Background(), SyncInput{
		TenantID: "tenant-1", UserID: "user-1", Activities: activities,
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.AcceptedCount)
	require.Len(t, summary.Accepted, 1)
	require.Equal(t, 1, summary.UnmatchedActivities)
}

func TestRunSyncRejectsUnknownPolicy(t *testing.T) {
	service := NewService(&mockRepo{}, "adaptive", time.Hour)
	_, err := service.RunSync(context.Background(), SyncInput{
		TenantID: "tenant-1", UserID: "user-1", Policy: "aggressive",
	})
	require.Error(t, err)
}

func TestRunSyncPropagatesRepositoryErrors(t *testing.T) {
	repoErr := errors.New("connection refused")
	service := NewService(&mockRepo{listErr: repoErr}, "adaptive", time.Hour)
	_, err := service.RunSync(context.Background(), SyncInput{TenantID: "tenant-1", UserID: "user-1"})
	require.ErrorIs(t, err, repoErr)

	date := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	applyErr := errors.New("transaction aborted")
	repo := &mockRepo{
		sessions: []domain.PlannedSession{plannedSession("sess-1", date, 60)},
		applyErr: applyErr,
	}
	service = NewService(repo, "adaptive", time.Hour)
	_, err = service.RunSync(context.Background(), SyncInput{
		TenantID:   "tenant-1",
		UserID:     "user-1",
		Activities: []domain.ActivityRecord{rideActivity("act-1", date.Add(9*time.Hour), 3600)},
	})
	require.ErrorIs(t, err, applyErr)
}

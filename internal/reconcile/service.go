package reconcile

import (
	"context"
	"time"

	"example.com/plansync/internal/domain"
	"example.com/plansync/internal/observability"
)

// Repository captures the persistence operations a sync pass needs: the
// session/ledger snapshot on the way in, the transactional applier on the
// way out.
type Repository interface {
	ListOpenSessions(ctx context.Context, tenantID, userID string) ([]domain.PlannedSession, error)
	ListLinks(ctx context.Context, tenantID, userID string) ([]domain.ReconciliationLink, error)
	ListActivitySnapshots(ctx context.Context, tenantID, userID string, since time.Time) ([]domain.ActivityRecord, error)
	// ApplyMatches commits the accepted set in one transaction and returns
	// the pairs actually applied; pairs losing a ledger uniqueness race are
	// skipped, not fatal.
	ApplyMatches(ctx context.Context, tenantID, userID, policy string, matches []AcceptedMatch) ([]AcceptedMatch, error)
}

// Service runs end-to-end reconciliation passes.
type Service struct {
	repo          Repository
	defaultPolicy string
	lookback      time.Duration
}

// NewService constructs a Service. defaultPolicy is used when a sync call
// names no policy; lookback bounds how far back consumer-ingested activity
// snapshots are considered when the caller supplies no inline batch.
func NewService(repo Repository, defaultPolicy string, lookback time.Duration) *Service {
	return &Service{repo: repo, defaultPolicy: defaultPolicy, lookback: lookback}
}

// SyncInput describes one sync invocation. Activities may be supplied
// inline by the caller; when empty the service falls back to recently
// ingested snapshots.
type SyncInput struct {
	TenantID   string
	UserID     string
	Policy     string
	Activities []domain.ActivityRecord
}

// RunSync executes the candidate/classify/resolve/apply pipeline for one
// user. Nothing is durably written until ApplyMatches runs, so an aborted
// call leaves no partial state.
func (s *Service) RunSync(ctx context.Context, input SyncInput) (*Summary, error) {
	name := input.Policy
	if name == "" {
		name = s.defaultPolicy
	}
	policy, err := PolicyByName(name)
	if err != nil {
		return nil, err
	}

	sessions, err := s.repo.ListOpenSessions(ctx, input.TenantID, input.UserID)
	if err != nil {
		return nil, err
	}

	links, err := s.repo.ListLinks(ctx, input.TenantID, input.UserID)
	if err != nil {
		return nil, err
	}

	activities := input.Activities
	if len(activities) == 0 {
		since := time.Now().UTC().Add(-s.lookback)
		activities, err = s.repo.ListActivitySnapshots(ctx, input.TenantID, input.UserID, since)
		if err != nil {
			return nil, err
		}
	}

	summary := Reconcile(sessions, activities, NewExclusions(links), policy)

	applied, err := s.repo.ApplyMatches(ctx, input.TenantID, input.UserID, policy.Name(), summary.Accepted)
	if err != nil {
		return nil, err
	}

	// A concurrent sync may have won some pairs at the ledger; report only
	// what this pass actually applied.
	skipped := len(summary.Accepted) - len(applied)
	summary.Accepted = applied
	summary.AcceptedCount = len(applied)
	summary.UnmatchedActivities += skipped

	observability.RecordSyncRun(summary.Policy, summary.CandidateCount, summary.AcceptedCount, skipped)
	return &summary, nil
}

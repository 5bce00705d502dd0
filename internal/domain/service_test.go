package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSessionRepo struct {
	created []PlannedSession
	get     *PlannedSession
	err     error
}

func (s *stubSessionRepo) CreateSession(_ context.Context, session PlannedSession) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, session)
	return nil
}

func (s *stubSessionRepo) GetSession(_ context.Context, _, _ string) (*PlannedSession, error) {
	return s.get, s.err
}

func (s *stubSessionRepo) ListSessions(_ context.Context, _, _ string, _ *Cursor, _ int) ([]PlannedSession, *Cursor, error) {
	return s.created, nil, s.err
}

func TestCreateSessionAssignsIDAndNormalizesDate(t *testing.T) {
	repo := &stubSessionRepo{}
	service := NewSessionService(repo)

	scheduled := time.Date(2024, time.May, 4, 18, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	session, err := service.CreateSession(context.Background(), CreateSessionInput{
		TenantID:           "tenant-1",
		UserID:             "user-1",
		Week:               3,
		Day:                "Saturday",
		ScheduledDate:      &scheduled,
		Kind:               SessionKindLongRide,
		PlannedDurationMin: 180,
	})
	require.NoError(t, err)

	require.NotEmpty(t, session.ID)
	require.False(t, session.Completed)
	require.Len(t, repo.created, 1)

	want := time.Date(2024, time.May, 4, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, session.ScheduledDate)
	require.True(t, session.ScheduledDate.Equal(want))
	require.Equal(t, session.CreatedAt, session.UpdatedAt)
}

func TestCreateSessionAllowsNilDate(t *testing.T) {
	repo := &stubSessionRepo{}
	service := NewSessionService(repo)

	session, err := service.CreateSession(context.Background(), CreateSessionInput{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Kind:     SessionKindRest,
	})
	require.NoError(t, err)
	require.Nil(t, session.ScheduledDate)
}

func TestGetSessionNotFound(t *testing.T) {
	service := NewSessionService(&stubSessionRepo{})
	_, err := service.GetSession(context.Background(), "tenant-1", "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateSessionPropagatesRepoError(t *testing.T) {
	repoErr := errors.New("insert failed")
	service := NewSessionService(&stubSessionRepo{err: repoErr})
	_, err := service.CreateSession(context.Background(), CreateSessionInput{
		TenantID: "tenant-1", UserID: "user-1", Kind: SessionKindRide,
	})
	require.ErrorIs(t, err, repoErr)
}

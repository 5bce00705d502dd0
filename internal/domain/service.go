// Package domain defines the planned-training aggregates and business
// logic for the plan sync service.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when a planned session cannot be located.
	ErrSessionNotFound = errors.New("planned session not found")
)

// Cursor models the keyset pagination token for session listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// SessionRepository captures persistence operations for the planner surface.
type SessionRepository interface {
	CreateSession(ctx context.Context, session PlannedSession) error
	GetSession(ctx context.Context, tenantID, sessionID string) (*PlannedSession, error)
	ListSessions(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]PlannedSession, *Cursor, error)
}

// SessionService orchestrates planner workflows.
type SessionService struct {
	repo SessionRepository
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo SessionRepository) *SessionService {
	return &SessionService{repo: repo}
}

// CreateSessionInput captures the payload from the API layer.
type CreateSessionInput struct {
	TenantID           string
	UserID             string
	Week               int
	Day                string
	ScheduledDate      *time.Time
	Kind               SessionKind
	PlannedDurationMin int
}

// CreateSession persists a new planned session.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*PlannedSession, error) {
	now := time.Now().UTC()
	session := PlannedSession{
		ID:                 uuid.NewString(),
		TenantID:           input.TenantID,
		UserID:             input.UserID,
		Week:               input.Week,
		Day:                input.Day,
		ScheduledDate:      normalizeDate(input.ScheduledDate),
		Kind:               input.Kind,
		PlannedDurationMin: input.PlannedDurationMin,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches by ID.
func (s *SessionService) GetSession(ctx context.Context, tenantID, sessionID string) (*PlannedSession, error) {
	session, err := s.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions fetches sessions with cursor pagination.
func (s *SessionService) ListSessions(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]PlannedSession, *Cursor, error) {
	return s.repo.ListSessions(ctx, tenantID, userID, cursor, limit)
}

// normalizeDate truncates a scheduled date to UTC midnight so day-delta
// math downstream sees calendar dates only.
func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

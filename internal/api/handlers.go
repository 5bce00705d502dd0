// Package api exposes HTTP handlers for the plan sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/plansync/internal/auth"
	"example.com/plansync/internal/domain"
	"example.com/plansync/internal/persistence"
	"example.com/plansync/internal/reconcile"
)

// LinkStore exposes ledger reads for the audit endpoint.
type LinkStore interface {
	ListLinks(ctx context.Context, tenantID, userID string) ([]domain.ReconciliationLink, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	sessions *domain.SessionService
	sync     *reconcile.Service
	links    LinkStore
}

// NewHandler builds a Handler.
func NewHandler(sessions *domain.SessionService, sync *reconcile.Service, links LinkStore) *Handler {
	return &Handler{sessions: sessions, sync: sync, links: links}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.runSync)
	mux.HandleFunc("/v1/sessions", h.sessionsRoot)
	mux.HandleFunc("/v1/sessions/", h.sessionByID)
	mux.HandleFunc("/v1/links", h.listLinks)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSyncExecute) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:execute required")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	summary, err := h.sync.RunSync(r.Context(), reconcile.SyncInput{
		TenantID:   claims.TenantID,
		UserID:     req.UserID,
		Policy:     req.Policy,
		Activities: toActivityRecords(req.Activities),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSyncView(*summary))
}

func (h *Handler) sessionsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSession(w, r)
	case http.MethodGet:
		h.listSessions(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlansRead) && !claims.HasScope(auth.ScopePlansWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope plans:read required")
		return
	}

	session, err := h.sessions.GetSession(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*session))
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlansWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope plans:write required")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), domain.CreateSessionInput{
		TenantID:           claims.TenantID,
		UserID:             req.UserID,
		Week:               req.Week,
		Day:                req.Day,
		ScheduledDate:      req.ScheduledDate,
		Kind:               domain.SessionKind(req.Kind),
		PlannedDurationMin: req.PlannedDurationMin,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(*session))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlansRead) && !claims.HasScope(auth.ScopePlansWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope plans:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	sessions, next, err := h.sessions.ListSessions(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, toSessionView(session))
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlansRead) && !claims.HasScope(auth.ScopePlansWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope plans:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	links, err := h.links.ListLinks(r.Context(), claims.TenantID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]LinkView, 0, len(links))
	for _, link := range links {
		items = append(items, LinkView{
			SessionID:     link.SessionID,
			ActivityID:    link.ActivityID,
			DayDelta:      link.DayDelta,
			DurationDelta: link.DurationDelta,
			Tier:          link.Tier,
			CreatedAt:     link.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListLinksResponse{Items: items})
}

// SyncRequest is the payload for POST /v1/sync.
type SyncRequest struct {
	UserID     string          `json:"user_id"`
	Policy     string          `json:"policy,omitempty"`
	Activities []ActivityInput `json:"activities,omitempty"`
}

// Validate ensures request correctness.
func (r SyncRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	switch r.Policy {
	case "", "adaptive", "legacy":
	default:
		return errors.New("policy must be adaptive or legacy")
	}
	return nil
}

// ActivityInput carries one externally recorded activity in a sync request.
type ActivityInput struct {
	ActivityID          string    `json:"activity_id"`
	Type                string    `json:"type"`
	StartedAt           time.Time `json:"started_at"`
	MovingTimeSec       int       `json:"moving_time_sec"`
	ElapsedTimeSec      int       `json:"elapsed_time_sec"`
	DistanceMeters      float64   `json:"distance_m"`
	ElevationGainMeters float64   `json:"elevation_gain_m"`
	AverageHeartRate    *float64  `json:"avg_heart_rate,omitempty"`
	AveragePower        *float64  `json:"avg_power,omitempty"`
}

// CreateSessionRequest is the payload for POST /v1/sessions.
type CreateSessionRequest struct {
	UserID             string     `json:"user_id"`
	Week               int        `json:"week"`
	Day                string     `json:"day"`
	ScheduledDate      *time.Time `json:"scheduled_date,omitempty"`
	Kind               string     `json:"kind"`
	PlannedDurationMin int        `json:"planned_duration_min"`
}

// Validate ensures request correctness.
func (r CreateSessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Kind) == "" {
		return errors.New("kind is required")
	}
	if r.PlannedDurationMin < 0 {
		return errors.New("planned_duration_min must be >= 0")
	}
	return nil
}

// SessionView exposes full details about a planned session.
type SessionView struct {
	SessionID          string     `json:"session_id"`
	TenantID           string     `json:"tenant_id"`
	UserID             string     `json:"user_id"`
	Week               int        `json:"week"`
	Day                string     `json:"day"`
	ScheduledDate      *time.Time `json:"scheduled_date,omitempty"`
	Kind               string     `json:"kind"`
	PlannedDurationMin int        `json:"planned_duration_min"`
	Completed          bool       `json:"completed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CompletionSource   *string    `json:"completion_source,omitempty"`
	LinkedActivityID   *string    `json:"linked_activity_id,omitempty"`
	MatchScore         *float64   `json:"match_score,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ListSessionsResponse packages list results.
type ListSessionsResponse struct {
	Items      []SessionView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// MatchView is one accepted (session, activity) tuple in a sync response.
type MatchView struct {
	SessionID     string  `json:"session_id"`
	ActivityID    string  `json:"activity_id"`
	DayDelta      int     `json:"day_delta"`
	DurationDelta float64 `json:"duration_delta"`
	Tier          string  `json:"tier"`
	Score         float64 `json:"score"`
}

// SyncResponse reports the outcome of a reconciliation pass.
type SyncResponse struct {
	Policy              string      `json:"policy"`
	CandidateCount      int         `json:"candidate_count"`
	AcceptedCount       int         `json:"accepted_count"`
	UnmatchedActivities int         `json:"unmatched_activities"`
	Accepted            []MatchView `json:"accepted"`
}

// LinkView exposes one ledger row.
type LinkView struct {
	SessionID     string    `json:"session_id"`
	ActivityID    string    `json:"activity_id"`
	DayDelta      int       `json:"day_delta"`
	DurationDelta float64   `json:"duration_delta"`
	Tier          string    `json:"tier"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListLinksResponse packages ledger results.
type ListLinksResponse struct {
	Items []LinkView `json:"items"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toSessionView(s domain.PlannedSession) SessionView {
	return SessionView{
		SessionID:          s.ID,
		TenantID:           s.TenantID,
		UserID:             s.UserID,
		Week:               s.Week,
		Day:                s.Day,
		ScheduledDate:      s.ScheduledDate,
		Kind:               string(s.Kind),
		PlannedDurationMin: s.PlannedDurationMin,
		Completed:          s.Completed,
		CompletedAt:        s.CompletedAt,
		CompletionSource:   s.CompletionSource,
		LinkedActivityID:   s.LinkedActivityID,
		MatchScore:         s.MatchScore,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func toSyncView(summary reconcile.Summary) SyncResponse {
	accepted := make([]MatchView, 0, len(summary.Accepted))
	for _, match := range summary.Accepted {
		accepted = append(accepted, MatchView{
			SessionID:     match.SessionID,
			ActivityID:    match.ActivityID,
			DayDelta:      match.DayDelta,
			DurationDelta: match.DurationDelta,
			Tier:          string(match.Tier),
			Score:         match.Score,
		})
	}
	return SyncResponse{
		Policy:              summary.Policy,
		CandidateCount:      summary.CandidateCount,
		AcceptedCount:       summary.AcceptedCount,
		UnmatchedActivities: summary.UnmatchedActivities,
		Accepted:            accepted,
	}
}

func toActivityRecords(inputs []ActivityInput) []domain.ActivityRecord {
	records := make([]domain.ActivityRecord, 0, len(inputs))
	for _, in := range inputs {
		records = append(records, domain.ActivityRecord{
			ExternalID:          in.ActivityID,
			Type:                in.Type,
			StartedAt:           in.StartedAt,
			MovingTimeSec:       in.MovingTimeSec,
			ElapsedTimeSec:      in.ElapsedTimeSec,
			DistanceMeters:      in.DistanceMeters,
			ElevationGainMeters: in.ElevationGainMeters,
			AverageHeartRate:    in.AverageHeartRate,
			AveragePower:        in.AveragePower,
		})
	}
	return records
}

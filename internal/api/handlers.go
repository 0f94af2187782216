// Package api exposes HTTP handlers for the progression service.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hireai24/repz-app-sub000/internal/auth"
	"github.com/hireai24/repz-app-sub000/internal/persistence"
	"github.com/hireai24/repz-app-sub000/internal/progression"
)

// Handler coordinates HTTP requests with the session manager.
type Handler struct {
	manager *progression.Manager
}

// NewHandler builds a Handler.
func NewHandler(manager *progression.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/progression/workouts", h.logWorkout)
	mux.HandleFunc("/v1/progression/wagers", h.settleWager)
	mux.HandleFunc("/v1/progression/level", h.level)
	mux.HandleFunc("/v1/progression/streak", h.streak)
	mux.HandleFunc("/v1/progression/streak/today", h.markToday)
	mux.HandleFunc("/v1/progression/access", h.access)
	mux.HandleFunc("/v1/progression/reset", h.reset)
	mux.HandleFunc("/v1/progression/history", h.history)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) logWorkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req LogWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	result := session.LogWorkout(r.Context(), req.Volume, req.PRCount, req.IsChallenge)

	writeJSON(w, http.StatusOK, WorkoutResponse{
		Awarded:         result.Score.Total,
		BaseXP:          result.Score.BaseXP,
		PRBonus:         result.Score.PRBonus,
		StreakBonus:     result.Score.StreakBonus,
		ChallengeBoost:  result.Score.ChallengeBoost,
		MilestoneLength: result.MilestoneLength,
		MilestoneBonus:  result.MilestoneBonus,
		Total:           result.Total,
		Level:           result.Level,
		Streak:          result.Streak,
		Degraded:        session.Degraded(),
	})
}

func (h *Handler) settleWager(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req WagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	total, err := session.ApplyWagerOutcome(req.Won, req.Amount)
	if err != nil {
		if errors.Is(err, progression.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, "validation_failed", "amount must be >= 0")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := WagerResponse{
		Total:    total,
		Level:    progression.ComputeLevel(total),
		Degraded: session.Degraded(),
	}

	// Challenge settlements report the user's running win streak so a
	// milestone crossing pays out with the wager result.
	if req.Won && req.WinStreak > 0 {
		if bonus, bonusErr := session.ApplyBattleStreakBonus(r.Context(), req.WinStreak); bonusErr == nil && bonus > 0 {
			resp.StreakBonus = bonus
			resp.Total = session.Total()
			resp.Level = session.Level()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) level(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	writeJSON(w, http.StatusOK, LevelResponse{
		Level:    session.Level(),
		Total:    session.Total(),
		Degraded: session.Degraded(),
	})
}

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	state, milestone, bonus := session.StreakStatus(r.Context())
	writeJSON(w, http.StatusOK, StreakResponse{
		Streak:          state,
		MilestoneLength: milestone,
		MilestoneBonus:  bonus,
		Total:           session.Total(),
		Degraded:        session.Degraded(),
	})
}

func (h *Handler) markToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	state := session.MarkTodayLogged(r.Context())
	writeJSON(w, http.StatusOK, StreakResponse{
		Streak:   state,
		Total:    session.Total(),
		Degraded: session.Degraded(),
	})
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	required, err := progression.ParseTier(r.URL.Query().Get("required"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "required must be one of free, pro, elite")
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	allowed, tier, stale := session.HasAccess(r.Context(), required)
	writeJSON(w, http.StatusOK, AccessResponse{
		Allowed:  allowed,
		Tier:     tier.String(),
		Required: required.String(),
		Stale:    stale,
	})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	session := h.manager.Session(r.Context(), claims.Subject)
	total := session.Reset()
	writeJSON(w, http.StatusOK, LevelResponse{
		Level:    progression.ComputeLevel(total),
		Total:    total,
		Degraded: session.Degraded(),
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.manager.History(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]LedgerEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toLedgerEntryView(entry))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

// requireReadScope accepts either scope; writers can read.
func requireReadScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeProgressionRead) && !claims.HasScope(auth.ScopeProgressionWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeProgressionRead+" required")
		return nil, false
	}
	return claims, true
}

// LogWorkoutRequest is the payload for POST /v1/progression/workouts.
type LogWorkoutRequest struct {
	Volume      float64 `json:"volume"`
	PRCount     int     `json:"pr_count"`
	IsChallenge bool    `json:"is_challenge"`
}

// Validate ensures request correctness.
func (r LogWorkoutRequest) Validate() error {
	if r.Volume < 0 || math.IsNaN(r.Volume) || math.IsInf(r.Volume, 0) {
		return errors.New("volume must be a finite value >= 0")
	}
	if r.PRCount < 0 {
		return errors.New("pr_count must be >= 0")
	}
	return nil
}

// WorkoutResponse describes the scoring outcome of a logged workout.
type WorkoutResponse struct {
	Awarded         int                     `json:"awarded"`
	BaseXP          int                     `json:"base_xp"`
	PRBonus         int                     `json:"pr_bonus"`
	StreakBonus     int                     `json:"streak_bonus"`
	ChallengeBoost  int                     `json:"challenge_boost"`
	MilestoneLength int                     `json:"milestone_length,omitempty"`
	MilestoneBonus  int                     `json:"milestone_bonus,omitempty"`
	Total           int                     `json:"total"`
	Level           progression.LevelState  `json:"level"`
	Streak          progression.StreakState `json:"streak"`
	Degraded        bool                    `json:"degraded"`
}

// WagerRequest is the payload for POST /v1/progression/wagers.
type WagerRequest struct {
	Won       bool `json:"won"`
	Amount    int  `json:"amount"`
	WinStreak int  `json:"win_streak,omitempty"`
}

// WagerResponse describes the settled wager outcome.
type WagerResponse struct {
	Total       int                    `json:"total"`
	Level       progression.LevelState `json:"level"`
	StreakBonus int                    `json:"streak_bonus,omitempty"`
	Degraded    bool                   `json:"degraded"`
}

// LevelResponse carries the derived level state.
type LevelResponse struct {
	Level    progression.LevelState `json:"level"`
	Total    int                    `json:"total"`
	Degraded bool                   `json:"degraded"`
}

// StreakResponse carries the current streak state and any milestone
// bonus granted during the refresh.
type StreakResponse struct {
	Streak          progression.StreakState `json:"streak"`
	MilestoneLength int                     `json:"milestone_length,omitempty"`
	MilestoneBonus  int                     `json:"milestone_bonus,omitempty"`
	Total           int                     `json:"total"`
	Degraded        bool                    `json:"degraded"`
}

// AccessResponse answers a tier gate check.
type AccessResponse struct {
	Allowed  bool   `json:"allowed"`
	Tier     string `json:"tier"`
	Required string `json:"required"`
	Stale    bool   `json:"stale"`
}

// LedgerEntryView exposes one XP ledger entry.
type LedgerEntryView struct {
	EntryID    string    `json:"entry_id"`
	Kind       string    `json:"kind"`
	Amount     int       `json:"amount"`
	Total      int       `json:"total"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryResponse packages paginated ledger entries.
type HistoryResponse struct {
	Items      []LedgerEntryView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
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

func toLedgerEntryView(entry progression.LedgerEntry) LedgerEntryView {
	return LedgerEntryView{
		EntryID:    entry.ID,
		Kind:       string(entry.Kind),
		Amount:     entry.Amount,
		Total:      entry.Total,
		Source:     entry.Source,
		RecordedAt: entry.RecordedAt,
	}
}

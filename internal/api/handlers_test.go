package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireai24/repz-app-sub000/internal/auth"
	"github.com/hireai24/repz-app-sub000/internal/progression"
)

func testClaims(scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &auth.Claims{
		Subject:   "user-1",
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newTestHandler(t *testing.T, store *stubStore) *Handler {
	t.Helper()
	manager := progression.NewManager(store, &mapCache{}, zerolog.Nop())
	t.Cleanup(manager.Close)
	return NewHandler(manager)
}

func TestLogWorkoutAwardsXP(t *testing.T) {
	store := newStubStore()
	handler := newTestHandler(t, store)

	body := `{"volume": 2000, "pr_count": 2, "is_challenge": true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/progression/workouts", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionWrite)))

	rr := httptest.NewRecorder()
	handler.logWorkout(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp WorkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Awarded != 57 {
		t.Fatalf("expected awarded 57 got %d", resp.Awarded)
	}
	if resp.BaseXP != 10 || resp.PRBonus != 20 || resp.StreakBonus != 2 || resp.ChallengeBoost != 25 {
		t.Fatalf("unexpected breakdown: %+v", resp)
	}
	if resp.Total != 57 {
		t.Fatalf("expected total 57 got %d", resp.Total)
	}
	if resp.Level.Level != 1 {
		t.Fatalf("expected level 1 got %d", resp.Level.Level)
	}
	if resp.Streak.CurrentStreak != 1 || !resp.Streak.IsTodayLogged {
		t.Fatalf("unexpected streak: %+v", resp.Streak)
	}
}

func TestLogWorkoutRequiresWriteScope(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/progression/workouts", strings.NewReader(`{}`))
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr := httptest.NewRecorder()
	handler.logWorkout(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestLogWorkoutRejectsMissingClaims(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/progression/workouts", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	handler.logWorkout(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestLogWorkoutRejectsNegativeVolume(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/progression/workouts", strings.NewReader(`{"volume": -10}`))
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionWrite)))

	rr := httptest.NewRecorder()
	handler.logWorkout(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSettleWagerLossClampsAtZero(t *testing.T) {
	store := newStubStore()
	store.total = 30
	store.totalFound = true
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodPost, "/v1/progression/wagers", strings.NewReader(`{"won": false, "amount": 100}`))
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionWrite)))

	rr := httptest.NewRecorder()
	handler.settleWager(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp WagerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("expected total 0 got %d", resp.Total)
	}
}

func TestSettleWagerRejectsNegativeAmount(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/progression/wagers", strings.NewReader(`{"won": true, "amount": -5}`))
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionWrite)))

	rr := httptest.NewRecorder()
	handler.settleWager(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestSettleWagerWinStreakBonus(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	body := `{"won": true, "amount": 20, "win_streak": 3}`
	req := httptest.NewRequest(http.MethodPost, "/v1/progression/wagers", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionWrite)))

	rr := httptest.NewRecorder()
	handler.settleWager(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp WagerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StreakBonus != 75 {
		t.Fatalf("expected battle streak bonus 75 got %d", resp.StreakBonus)
	}
	if resp.Total != 95 {
		t.Fatalf("expected total 95 got %d", resp.Total)
	}
}

func TestLevelEndpointAllowsReadScope(t *testing.T) {
	store := newStubStore()
	store.total = 220
	store.totalFound = true
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/progression/level", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr := httptest.NewRecorder()
	handler.level(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LevelResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Level.Level != 3 {
		t.Fatalf("expected level 3 got %d", resp.Level.Level)
	}
	if resp.Total != 220 {
		t.Fatalf("expected total 220 got %d", resp.Total)
	}
}

func TestAccessEndpointGatesByTier(t *testing.T) {
	store := newStubStore()
	store.ent = progression.Entitlement{Pro: true}
	store.entFound = true
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/progression/access?required=pro", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr := httptest.NewRecorder()
	handler.access(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp AccessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Allowed || resp.Tier != "pro" || resp.Stale {
		t.Fatalf("unexpected access response: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/progression/access?required=elite", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr = httptest.NewRecorder()
	handler.access(rr, req)

	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Allowed {
		t.Fatal("pro tier must not pass an elite gate")
	}
}

func TestAccessEndpointRejectsUnknownTier(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/progression/access?required=platinum", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr := httptest.NewRecorder()
	handler.access(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestHistoryRejectsInvalidCursor(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/progression/history?cursor=%21%21", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr := httptest.NewRecorder()
	handler.history(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestHistoryListsEntries(t *testing.T) {
	store := newStubStore()
	store.entries = []progression.LedgerEntry{
		{
			ID:         "entry-2",
			UserID:     "user-1",
			Kind:       progression.EntryAward,
			Amount:     57,
			Total:      107,
			Source:     "workout",
			RecordedAt: time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:         "entry-1",
			UserID:     "user-1",
			Kind:       progression.EntryStreakBonus,
			Amount:     50,
			Total:      50,
			Source:     "workout",
			RecordedAt: time.Date(2025, time.March, 9, 10, 0, 0, 0, time.UTC),
		},
	}
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/progression/history", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionRead)))

	rr := httptest.NewRecorder()
	handler.history(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp HistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 entries got %d", len(resp.Items))
	}
	if resp.Items[0].EntryID != "entry-2" || resp.Items[0].Kind != "award" {
		t.Fatalf("unexpected first item: %+v", resp.Items[0])
	}
	if resp.NextCursor != "" {
		t.Fatalf("expected empty next cursor got %q", resp.NextCursor)
	}
}

func TestResetZeroesTotal(t *testing.T) {
	store := newStubStore()
	store.total = 400
	store.totalFound = true
	handler := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodPost, "/v1/progression/reset", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims(auth.ScopeProgressionWrite)))

	rr := httptest.NewRecorder()
	handler.reset(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LevelResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 0 || resp.Level.Level != 1 {
		t.Fatalf("expected zeroed state got %+v", resp)
	}
}

func TestEndpointsRejectWrongMethod(t *testing.T) {
	handler := newTestHandler(t, newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/progression/workouts", nil)
	rr := httptest.NewRecorder()
	handler.logWorkout(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/progression/level", nil)
	rr = httptest.NewRecorder()
	handler.level(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

// stubStore implements progression.Store for handler tests.
type stubStore struct {
	total      int
	totalFound bool
	ent        progression.Entitlement
	entFound   bool
	entries    []progression.LedgerEntry
	milestones map[progression.StreakKind]int
	days       []progression.DayKey
}

func newStubStore() *stubStore {
	return &stubStore{milestones: make(map[progression.StreakKind]int)}
}

func (s *stubStore) LoadTotal(context.Context, string) (int, bool, error) {
	return s.total, s.totalFound, nil
}

func (s *stubStore) SaveTotal(_ context.Context, entry progression.LedgerEntry) error {
	s.total = entry.Total
	s.totalFound = true
	return nil
}

func (s *stubStore) ListEntries(context.Context, string, *progression.Cursor, int) ([]progression.LedgerEntry, *progression.Cursor, error) {
	return s.entries, nil, nil
}

func (s *stubStore) LoadMilestone(_ context.Context, _ string, kind progression.StreakKind) (int, error) {
	return s.milestones[kind], nil
}

func (s *stubStore) SaveMilestone(_ context.Context, _ string, kind progression.StreakKind, length, _ int) error {
	s.milestones[kind] = length
	return nil
}

func (s *stubStore) ActivityDays(context.Context, string, int) ([]progression.DayKey, error) {
	return s.days, nil
}

func (s *stubStore) LogActivityDay(_ context.Context, _ string, day progression.DayKey) error {
	s.days = append(s.days, day)
	return nil
}

func (s *stubStore) Entitlement(context.Context, string) (progression.Entitlement, bool, error) {
	return s.ent, s.entFound, nil
}

// mapCache implements progression.Cache without locking; handler tests
// run single-user request flows.
type mapCache struct {
	totals  map[string]int
	streaks map[string]progression.StreakSnapshot
	ents    map[string]progression.Entitlement
}

func (c *mapCache) PutTotal(userID string, total int) {
	if c.totals == nil {
		c.totals = make(map[string]int)
	}
	c.totals[userID] = total
}

func (c *mapCache) Total(userID string) (int, bool) {
	total, ok := c.totals[userID]
	return total, ok
}

func (c *mapCache) PutStreak(userID string, snap progression.StreakSnapshot) {
	if c.streaks == nil {
		c.streaks = make(map[string]progression.StreakSnapshot)
	}
	c.streaks[userID] = snap
}

func (c *mapCache) Streak(userID string) (progression.StreakSnapshot, bool) {
	snap, ok := c.streaks[userID]
	return snap, ok
}

func (c *mapCache) PutEntitlement(userID string, ent progression.Entitlement) {
	if c.ents == nil {
		c.ents = make(map[string]progression.Entitlement)
	}
	c.ents[userID] = ent
}

func (c *mapCache) Entitlement(userID string) (progression.Entitlement, bool) {
	ent, ok := c.ents[userID]
	return ent, ok
}

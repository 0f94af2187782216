package progression

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireai24/repz-app-sub000/internal/observability"
)

// DefaultStreakWindowDays bounds how far back the tracker reads
// activity days. 14 covers the largest workout milestone.
const DefaultStreakWindowDays = 14

// StreakTracker derives one user's workout streak from the store's
// recent activity-day window and detects milestone crossings against
// the persisted milestone record. Failed reads degrade to the cached
// streak pair and never propagate an error.
type StreakTracker struct {
	userID string
	store  Store
	cache  Cache
	logger zerolog.Logger
	window int
	now    func() time.Time

	mu              sync.Mutex
	lastMilestone   int
	milestoneLoaded bool
	optimisticDay   DayKey
}

// NewStreakTracker constructs a tracker with the default window.
func NewStreakTracker(userID string, store Store, cache Cache, logger zerolog.Logger) *StreakTracker {
	return &StreakTracker{
		userID: userID,
		store:  store,
		cache:  cache,
		logger: logger,
		window: DefaultStreakWindowDays,
		now:    time.Now,
	}
}

// Refresh recomputes the streak from the store. On a fresh milestone
// crossing it returns the milestone length; otherwise 0. Read failures
// fall back to the cached (streak, lastLoggedDay) pair: the cached
// streak survives only if it was logged today.
func (t *StreakTracker) Refresh(ctx context.Context) (StreakState, int) {
	today := t.now().UTC()
	todayKey := DayKeyOf(today)

	dayList, err := t.store.ActivityDays(ctx, t.userID, t.window)
	if err != nil {
		t.logger.Warn().Err(err).Str("user_id", t.userID).Msg("activity day read failed, serving cached streak")
		return t.fallback(todayKey), 0
	}

	days := make(map[DayKey]struct{}, len(dayList)+1)
	for _, d := range dayList {
		days[d] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.optimisticDay == todayKey {
		days[todayKey] = struct{}{}
	}

	state := ComputeStreak(today, days)
	t.snapshot(state, todayKey)

	milestone, crossed := CrossedMilestone(StreakWorkout, t.milestoneRecord(ctx), state.CurrentStreak)
	if !crossed {
		return state, 0
	}

	bonus, _ := StreakBonus(StreakWorkout, milestone)
	if err := t.store.SaveMilestone(ctx, t.userID, StreakWorkout, milestone, bonus); err != nil {
		// The in-memory record still advances so the session cannot
		// double-grant; the store catches up on the next save.
		t.logger.Warn().Err(err).Str("user_id", t.userID).Int("milestone", milestone).Msg("milestone record write failed")
	}
	t.lastMilestone = milestone
	observability.RecordMilestoneGranted(string(StreakWorkout))
	return state, milestone
}

// MarkTodayLogged applies an optimistic local "today counts" override
// and persists the activity day in the background, so the UI reflects
// the action before the next reconciliation.
func (t *StreakTracker) MarkTodayLogged(ctx context.Context) StreakState {
	today := t.now().UTC()
	todayKey := DayKeyOf(today)

	t.mu.Lock()
	t.optimisticDay = todayKey
	snap, ok := t.cache.Streak(t.userID)
	streak := 1
	if ok && snap.LastLoggedDay == todayKey && snap.Streak > 0 {
		streak = snap.Streak
	} else if ok && snap.LastLoggedDay == DayKeyOf(today.AddDate(0, 0, -1)) {
		streak = snap.Streak + 1
	}
	t.cache.PutStreak(t.userID, StreakSnapshot{Streak: streak, LastLoggedDay: todayKey})
	t.mu.Unlock()

	if err := t.store.LogActivityDay(ctx, t.userID, todayKey); err != nil {
		t.logger.Warn().Err(err).Str("user_id", t.userID).Msg("activity day write failed, keeping optimistic streak")
	}

	return StreakState{CurrentStreak: streak, IsTodayLogged: true}
}

// fallback serves the cached pair when the store read fails.
func (t *StreakTracker) fallback(todayKey DayKey) StreakState {
	snap, ok := t.cache.Streak(t.userID)
	if !ok || snap.LastLoggedDay != todayKey {
		return StreakState{}
	}
	return StreakState{CurrentStreak: snap.Streak, IsTodayLogged: true}
}

// snapshot caches the freshly computed pair. Callers hold t.mu.
func (t *StreakTracker) snapshot(state StreakState, todayKey DayKey) {
	if state.IsTodayLogged {
		t.cache.PutStreak(t.userID, StreakSnapshot{Streak: state.CurrentStreak, LastLoggedDay: todayKey})
	}
}

// milestoneRecord lazily loads the persisted milestone record. Callers
// hold t.mu.
func (t *StreakTracker) milestoneRecord(ctx context.Context) int {
	if t.milestoneLoaded {
		return t.lastMilestone
	}
	length, err := t.store.LoadMilestone(ctx, t.userID, StreakWorkout)
	if err != nil {
		// Treat an unreadable record as "nothing granted yet" for this
		// session only; a stale grant is caught by the store's own
		// record once it is reachable again.
		t.logger.Warn().Err(err).Str("user_id", t.userID).Msg("milestone record read failed")
		return t.lastMilestone
	}
	t.lastMilestone = length
	t.milestoneLoaded = true
	return length
}

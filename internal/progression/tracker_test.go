package progression

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T, value string) func() time.Time {
	t.Helper()
	stamp := day(t, value).Add(12 * time.Hour)
	return func() time.Time { return stamp }
}

func newTestTracker(t *testing.T, store *stubStore, today string) (*StreakTracker, *stubCache) {
	t.Helper()
	cache := newStubCache()
	tracker := NewStreakTracker("user-1", store, cache, zerolog.Nop())
	tracker.now = fixedNow(t, today)
	return tracker, cache
}

func TestTrackerRefreshComputesStreak(t *testing.T) {
	store := newStubStore()
	store.days = []DayKey{"2025-03-10", "2025-03-09", "2025-03-08", "2025-03-06"}

	tracker, cache := newTestTracker(t, store, "2025-03-10")

	state, milestone := tracker.Refresh(context.Background())
	require.Equal(t, 3, state.CurrentStreak)
	require.True(t, state.IsTodayLogged)
	require.Zero(t, milestone)

	snap, ok := cache.Streak("user-1")
	require.True(t, ok)
	require.Equal(t, StreakSnapshot{Streak: 3, LastLoggedDay: "2025-03-10"}, snap)
}

func TestTrackerRefreshGrantsMilestoneOnce(t *testing.T) {
	store := newStubStore()
	for i := 0; i < 7; i++ {
		store.days = append(store.days, DayKeyOf(day(t, "2025-03-10").AddDate(0, 0, -i)))
	}

	tracker, _ := newTestTracker(t, store, "2025-03-10")

	state, milestone := tracker.Refresh(context.Background())
	require.Equal(t, 7, state.CurrentStreak)
	require.Equal(t, 7, milestone)
	require.Equal(t, 7, store.milestones[StreakWorkout], "grant is recorded in the store")

	_, milestone = tracker.Refresh(context.Background())
	require.Zero(t, milestone, "the same crossing never grants twice")
}

func TestTrackerRefreshHonorsPersistedMilestoneRecord(t *testing.T) {
	store := newStubStore()
	store.milestones[StreakWorkout] = 7
	for i := 0; i < 7; i++ {
		store.days = append(store.days, DayKeyOf(day(t, "2025-03-10").AddDate(0, 0, -i)))
	}

	tracker, _ := newTestTracker(t, store, "2025-03-10")

	_, milestone := tracker.Refresh(context.Background())
	require.Zero(t, milestone, "a previous session already granted this crossing")
}

func TestTrackerRefreshMilestoneSurvivesRecordWriteFailure(t *testing.T) {
	store := newStubStore()
	store.saveMileErr = errors.New("write failed")
	for i := 0; i < 3; i++ {
		store.days = append(store.days, DayKeyOf(day(t, "2025-03-10").AddDate(0, 0, -i)))
	}

	tracker, _ := newTestTracker(t, store, "2025-03-10")

	_, milestone := tracker.Refresh(context.Background())
	require.Equal(t, 3, milestone, "the grant itself is not blocked by the record write")

	_, milestone = tracker.Refresh(context.Background())
	require.Zero(t, milestone, "the in-memory record still prevents a double grant")
}

func TestTrackerRefreshFallsBackToCache(t *testing.T) {
	store := newStubStore()
	store.daysErr = errors.New("connection refused")

	tracker, cache := newTestTracker(t, store, "2025-03-10")
	cache.PutStreak("user-1", StreakSnapshot{Streak: 5, LastLoggedDay: "2025-03-10"})

	state, milestone := tracker.Refresh(context.Background())
	require.Equal(t, 5, state.CurrentStreak)
	require.True(t, state.IsTodayLogged)
	require.Zero(t, milestone, "no milestone decisions on degraded reads")
}

func TestTrackerRefreshStaleCacheYieldsZero(t *testing.T) {
	store := newStubStore()
	store.daysErr = errors.New("connection refused")

	tracker, cache := newTestTracker(t, store, "2025-03-10")
	cache.PutStreak("user-1", StreakSnapshot{Streak: 5, LastLoggedDay: "2025-03-09"})

	state, _ := tracker.Refresh(context.Background())
	require.Zero(t, state.CurrentStreak, "yesterday's cached streak cannot claim today")
	require.False(t, state.IsTodayLogged)
}

func TestTrackerMarkTodayLoggedExtendsCachedStreak(t *testing.T) {
	store := newStubStore()
	tracker, cache := newTestTracker(t, store, "2025-03-10")
	cache.PutStreak("user-1", StreakSnapshot{Streak: 4, LastLoggedDay: "2025-03-09"})

	state := tracker.MarkTodayLogged(context.Background())
	require.Equal(t, 5, state.CurrentStreak)
	require.True(t, state.IsTodayLogged)
	require.Equal(t, []DayKey{"2025-03-10"}, store.loggedDays)

	// Marking twice in one day keeps the streak.
	state = tracker.MarkTodayLogged(context.Background())
	require.Equal(t, 5, state.CurrentStreak)
}

func TestTrackerMarkTodayLoggedSurvivesWriteFailure(t *testing.T) {
	store := newStubStore()
	store.logDayErr = errors.New("write failed")
	store.daysErr = errors.New("read failed")

	tracker, _ := newTestTracker(t, store, "2025-03-10")

	state := tracker.MarkTodayLogged(context.Background())
	require.Equal(t, 1, state.CurrentStreak)
	require.True(t, state.IsTodayLogged)

	// The optimistic day carries into the degraded refresh via the cache.
	state, _ = tracker.Refresh(context.Background())
	require.Equal(t, 1, state.CurrentStreak)
	require.True(t, state.IsTodayLogged)
}

func TestTrackerOptimisticDayMergesIntoRefresh(t *testing.T) {
	store := newStubStore()
	store.days = []DayKey{"2025-03-09", "2025-03-08"}

	tracker, _ := newTestTracker(t, store, "2025-03-10")
	store.logDayErr = errors.New("write failed")

	tracker.MarkTodayLogged(context.Background())

	state, milestone := tracker.Refresh(context.Background())
	require.Equal(t, 3, state.CurrentStreak, "the optimistic day joins the stored window")
	require.Equal(t, 3, milestone)
}

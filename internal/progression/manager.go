package progression

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the per-user progression sessions. Sessions are created
// lazily on first use, restored from the store with cache fallback, and
// torn down on logout or shutdown. There are no package-level
// singletons: everything hangs off an injected Manager.
type Manager struct {
	store        Store
	cache        Cache
	logger       zerolog.Logger
	now          func() time.Time
	streakWindow int

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager constructs a Manager over the given collaborators.
func NewManager(store Store, cache Cache, logger zerolog.Logger) *Manager {
	return &Manager{
		store:        store,
		cache:        cache,
		logger:       logger,
		now:          time.Now,
		streakWindow: DefaultStreakWindowDays,
		sessions:     make(map[string]*Session),
	}
}

// SetStreakWindowDays overrides the activity window used by sessions
// created after the call. Values below 1 are ignored.
func (m *Manager) SetStreakWindowDays(days int) {
	if days < 1 {
		return
	}
	m.mu.Lock()
	m.streakWindow = days
	m.mu.Unlock()
}

// Session returns the user's live session, creating one if needed. A
// failed total read degrades to the cached total, then to 0; session
// creation never fails.
func (m *Manager) Session(ctx context.Context, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}

	total := m.restoreTotal(ctx, userID)
	s := &Session{
		UserID: userID,
		ledger: NewLedger(userID, total, m.store, m.cache, m.logger),
		streak: NewStreakTracker(userID, m.store, m.cache, m.logger),
		store:  m.store,
		cache:  m.cache,
		logger: m.logger,
	}
	s.streak.now = m.now
	s.streak.window = m.streakWindow
	if !m.closed {
		m.sessions[userID] = s
	}
	return s
}

// EndSession tears down one user's session, stopping its background
// writes.
func (m *Manager) EndSession(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.ledger.Close()
	}
}

// Close tears down every session and drains pending write-throughs.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.ledger.Close()
	}
}

// History lists ledger entries for a user, newest first, with keyset
// pagination.
func (m *Manager) History(ctx context.Context, userID string, cursor *Cursor, limit int) ([]LedgerEntry, *Cursor, error) {
	return m.store.ListEntries(ctx, userID, cursor, limit)
}

func (m *Manager) restoreTotal(ctx context.Context, userID string) int {
	total, found, err := m.store.LoadTotal(ctx, userID)
	if err != nil {
		if cached, ok := m.cache.Total(userID); ok {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("total read failed, restoring session from cache")
			return cached
		}
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("total read failed with no cached value, starting at 0")
		return 0
	}
	if !found {
		return 0
	}
	m.cache.PutTotal(userID, total)
	return total
}

// Session bundles one user's ledger and streak tracker behind the
// operations the API and the event consumer need.
type Session struct {
	UserID string
	ledger *Ledger
	streak *StreakTracker
	store  Store
	cache  Cache
	logger zerolog.Logger
}

// WorkoutResult is the outcome of logging a completed workout.
type WorkoutResult struct {
	Score           WorkoutScore
	Total           int
	Level           LevelState
	Streak          StreakState
	MilestoneBonus  int
	MilestoneLength int
}

// LogWorkout runs the completion flow: refresh the streak, score the
// workout with the live streak value, award the XP, and hand out a
// milestone bonus on a fresh crossing.
func (s *Session) LogWorkout(ctx context.Context, volume float64, prCount int, isChallenge bool) WorkoutResult {
	streakState := s.streak.MarkTodayLogged(ctx)

	var milestoneLength, milestoneBonus int
	if refreshed, milestone := s.streak.Refresh(ctx); refreshed.IsTodayLogged {
		streakState = refreshed
		if milestone > 0 {
			// Refresh already advanced the milestone record, so this
			// grant happens at most once per crossing.
			if _, err := s.ledger.ApplyStreakBonus(StreakWorkout, milestone); err == nil {
				milestoneLength = milestone
				milestoneBonus, _ = StreakBonus(StreakWorkout, milestone)
			}
		}
	}

	score := ScoreWorkout(WorkoutScoreInput{
		Volume:      volume,
		PRCount:     prCount,
		Streak:      streakState.CurrentStreak,
		IsChallenge: isChallenge,
	})

	total := s.ledger.Total()
	if score.Total > 0 {
		total, _ = s.ledger.Award(score.Total, "workout")
	}

	return WorkoutResult{
		Score:           score,
		Total:           total,
		Level:           ComputeLevel(total),
		Streak:          streakState,
		MilestoneBonus:  milestoneBonus,
		MilestoneLength: milestoneLength,
	}
}

// StreakStatus refreshes the streak and applies the milestone bonus on
// a fresh crossing. It never fails; degraded reads serve cached state.
func (s *Session) StreakStatus(ctx context.Context) (StreakState, int, int) {
	state, milestone := s.streak.Refresh(ctx)
	if milestone == 0 {
		return state, 0, 0
	}
	bonus, _ := StreakBonus(StreakWorkout, milestone)
	if _, err := s.ledger.ApplyStreakBonus(StreakWorkout, milestone); err != nil {
		return state, 0, 0
	}
	return state, milestone, bonus
}

// MarkTodayLogged applies the optimistic "today counts" override.
func (s *Session) MarkTodayLogged(ctx context.Context) StreakState {
	return s.streak.MarkTodayLogged(ctx)
}

// ApplyWagerOutcome settles a wager against the ledger.
func (s *Session) ApplyWagerOutcome(won bool, amount int) (int, error) {
	return s.ledger.ApplyWagerOutcome(won, amount)
}

// ApplyBattleStreakBonus awards a battle win-streak milestone computed
// by the challenge service. Crossing dedupe uses the persisted record.
func (s *Session) ApplyBattleStreakBonus(ctx context.Context, length int) (int, error) {
	bonus, ok := StreakBonus(StreakBattle, length)
	if !ok {
		return 0, ErrUnknownMilestone
	}

	prev, err := s.store.LoadMilestone(ctx, s.UserID, StreakBattle)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("battle milestone record read failed")
		prev = 0
	}
	if _, crossed := CrossedMilestone(StreakBattle, prev, length); !crossed {
		return 0, nil
	}

	if err := s.store.SaveMilestone(ctx, s.UserID, StreakBattle, length, bonus); err != nil {
		s.logger.Warn().Err(err).Str("user_id", s.UserID).Int("milestone", length).Msg("battle milestone record write failed")
	}
	if _, err := s.ledger.ApplyStreakBonus(StreakBattle, length); err != nil {
		return 0, err
	}
	return bonus, nil
}

// Level returns the derived level state.
func (s *Session) Level() LevelState {
	return s.ledger.LevelState()
}

// Total returns the current XP total.
func (s *Session) Total() int {
	return s.ledger.Total()
}

// Reset zeroes the total.
func (s *Session) Reset() int {
	return s.ledger.Reset()
}

// Degraded reports whether background persistence is failing.
func (s *Session) Degraded() bool {
	return s.ledger.Degraded()
}

// Tier resolves the user's subscription tier from the entitlement
// snapshot. A failed fetch falls back to the cached snapshot when one
// exists and to Free otherwise; stale reports that fallback.
func (s *Session) Tier(ctx context.Context) (tier Tier, stale bool) {
	ent, found, err := s.store.Entitlement(ctx, s.UserID)
	if err != nil {
		if cached, ok := s.cache.Entitlement(s.UserID); ok {
			return DeriveTier(&cached), true
		}
		return TierFree, true
	}
	if !found {
		return TierFree, false
	}
	s.cache.PutEntitlement(s.UserID, ent)
	return DeriveTier(&ent), false
}

// HasAccess answers a gate check against the required tier.
func (s *Session) HasAccess(ctx context.Context, required Tier) (allowed bool, tier Tier, stale bool) {
	tier, stale = s.Tier(ctx)
	return HasAccess(tier, required), tier, stale
}

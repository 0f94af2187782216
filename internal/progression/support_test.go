package progression

import (
	"context"
	"sync"
)

// stubStore is an in-memory Store with injectable failures, shared by
// the ledger, tracker, and manager tests.
type stubStore struct {
	mu sync.Mutex

	total      int
	totalFound bool
	loadErr    error

	saveFailures int
	saveErr      error
	saved        []LedgerEntry

	milestones   map[StreakKind]int
	milestoneErr error
	saveMileErr  error

	days       []DayKey
	daysErr    error
	loggedDays []DayKey
	logDayErr  error

	ent      Entitlement
	entFound bool
	entErr   error

	entries []LedgerEntry
	listErr error
}

func newStubStore() *stubStore {
	return &stubStore{milestones: make(map[StreakKind]int)}
}

func (s *stubStore) LoadTotal(context.Context, string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return 0, false, s.loadErr
	}
	return s.total, s.totalFound, nil
}

func (s *stubStore) SaveTotal(_ context.Context, entry LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveFailures > 0 {
		s.saveFailures--
		return s.saveErr
	}
	s.saved = append(s.saved, entry)
	s.total = entry.Total
	s.totalFound = true
	return nil
}

func (s *stubStore) ListEntries(context.Context, string, *Cursor, int) ([]LedgerEntry, *Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, nil, s.listErr
	}
	return s.entries, nil, nil
}

func (s *stubStore) LoadMilestone(_ context.Context, _ string, kind StreakKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.milestoneErr != nil {
		return 0, s.milestoneErr
	}
	return s.milestones[kind], nil
}

func (s *stubStore) SaveMilestone(_ context.Context, _ string, kind StreakKind, length, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveMileErr != nil {
		return s.saveMileErr
	}
	s.milestones[kind] = length
	return nil
}

func (s *stubStore) ActivityDays(context.Context, string, int) ([]DayKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daysErr != nil {
		return nil, s.daysErr
	}
	out := make([]DayKey, len(s.days))
	copy(out, s.days)
	return out, nil
}

func (s *stubStore) LogActivityDay(_ context.Context, _ string, day DayKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logDayErr != nil {
		return s.logDayErr
	}
	for _, d := range s.days {
		if d == day {
			return nil
		}
	}
	s.days = append(s.days, day)
	s.loggedDays = append(s.loggedDays, day)
	return nil
}

func (s *stubStore) Entitlement(context.Context, string) (Entitlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entErr != nil {
		return Entitlement{}, false, s.entErr
	}
	return s.ent, s.entFound, nil
}

func (s *stubStore) savedEntries() []LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LedgerEntry, len(s.saved))
	copy(out, s.saved)
	return out
}

// stubCache is an in-memory Cache for tests.
type stubCache struct {
	mu      sync.Mutex
	totals  map[string]int
	streaks map[string]StreakSnapshot
	ents    map[string]Entitlement
}

func newStubCache() *stubCache {
	return &stubCache{
		totals:  make(map[string]int),
		streaks: make(map[string]StreakSnapshot),
		ents:    make(map[string]Entitlement),
	}
}

func (c *stubCache) PutTotal(userID string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[userID] = total
}

func (c *stubCache) Total(userID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, ok := c.totals[userID]
	return total, ok
}

func (c *stubCache) PutStreak(userID string, snap StreakSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaks[userID] = snap
}

func (c *stubCache) Streak(userID string) (StreakSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.streaks[userID]
	return snap, ok
}

func (c *stubCache) PutEntitlement(userID string, ent Entitlement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ents[userID] = ent
}

func (c *stubCache) Entitlement(userID string) (Entitlement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.ents[userID]
	return ent, ok
}

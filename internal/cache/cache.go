// Package cache provides the in-process key-value fallback store for
// last-known progression values. It backs reads when Postgres is
// unreachable and is always safe to consult.
package cache

import (
	"sync"

	"github.com/hireai24/repz-app-sub000/internal/progression"
)

// Store is a concurrency-safe snapshot store keyed by user id. It
// implements progression.Cache.
type Store struct {
	mu           sync.RWMutex
	totals       map[string]int
	streaks      map[string]progression.StreakSnapshot
	entitlements map[string]progression.Entitlement
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		totals:       make(map[string]int),
		streaks:      make(map[string]progression.StreakSnapshot),
		entitlements: make(map[string]progression.Entitlement),
	}
}

// PutTotal records the last-known XP total.
func (s *Store) PutTotal(userID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[userID] = total
}

// Total returns the last-known XP total.
func (s *Store) Total(userID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, ok := s.totals[userID]
	return total, ok
}

// PutStreak records the last-known streak pair.
func (s *Store) PutStreak(userID string, snap progression.StreakSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[userID] = snap
}

// Streak returns the last-known streak pair.
func (s *Store) Streak(userID string) (progression.StreakSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.streaks[userID]
	return snap, ok
}

// PutEntitlement records the last-known entitlement snapshot.
func (s *Store) PutEntitlement(userID string, ent progression.Entitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entitlements[userID] = ent
}

// Entitlement returns the last-known entitlement snapshot.
func (s *Store) Entitlement(userID string) (progression.Entitlement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entitlements[userID]
	return ent, ok
}

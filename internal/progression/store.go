package progression

import (
	"context"
	"time"
)

// EntryKind labels a ledger mutation in the audit trail.
type EntryKind string

const (
	EntryAward       EntryKind = "award"
	EntrySpend       EntryKind = "spend"
	EntryWagerWin    EntryKind = "wager_win"
	EntryWagerLoss   EntryKind = "wager_loss"
	EntryStreakBonus EntryKind = "streak_bonus"
	EntryReset       EntryKind = "reset"
)

// LedgerEntry is one applied mutation: the signed delta and the total
// it produced. Entries are append-only and feed the history API and the
// outbox.
type LedgerEntry struct {
	ID         string
	UserID     string
	Kind       EntryKind
	Amount     int
	Total      int
	Source     string
	RecordedAt time.Time
}

// Cursor models the keyset pagination token for ledger history.
type Cursor struct {
	RecordedAt time.Time
	ID         string
}

// Store captures the external persistence collaborator. Reads may fail
// and callers degrade to cached values; writes happen off the caller's
// path and may fail without rolling back session state.
type Store interface {
	LoadTotal(ctx context.Context, userID string) (total int, found bool, err error)
	SaveTotal(ctx context.Context, entry LedgerEntry) error
	ListEntries(ctx context.Context, userID string, cursor *Cursor, limit int) ([]LedgerEntry, *Cursor, error)
	LoadMilestone(ctx context.Context, userID string, kind StreakKind) (int, error)
	SaveMilestone(ctx context.Context, userID string, kind StreakKind, length, bonus int) error
	ActivityDays(ctx context.Context, userID string, window int) ([]DayKey, error)
	LogActivityDay(ctx context.Context, userID string, day DayKey) error
	Entitlement(ctx context.Context, userID string) (ent Entitlement, found bool, err error)
}

// StreakSnapshot is the last-known streak pair kept in the local cache
// for offline fallback.
type StreakSnapshot struct {
	Streak        int
	LastLoggedDay DayKey
}

// Cache is the local key-value collaborator holding last-known values
// for reads that must never block or fail.
type Cache interface {
	PutTotal(userID string, total int)
	Total(userID string) (int, bool)
	PutStreak(userID string, snap StreakSnapshot)
	Streak(userID string) (StreakSnapshot, bool)
	PutEntitlement(userID string, ent Entitlement)
	Entitlement(userID string) (Entitlement, bool)
}

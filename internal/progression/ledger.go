package progression

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hireai24/repz-app-sub000/internal/observability"
)

var (
	// ErrInvalidAmount rejects mutations with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrUnknownMilestone rejects streak-bonus requests for lengths
	// outside the fixed tables.
	ErrUnknownMilestone = errors.New("unknown streak milestone")
)

// defaultPersistTimeout bounds each background write to the store.
const defaultPersistTimeout = 5 * time.Second

// persistQueueDepth bounds how many unflushed mutations a session may
// hold before the ledger reports itself degraded.
const persistQueueDepth = 32

// Ledger owns one user's authoritative XP total for the lifetime of a
// session. Mutations apply in memory and to the local cache
// synchronously, then schedule a write-through to the store; a failed
// write marks the ledger degraded but is never surfaced as a mutation
// error and never rolls state back.
type Ledger struct {
	userID         string
	store          Store
	cache          Cache
	logger         zerolog.Logger
	persistTimeout time.Duration

	mu    sync.Mutex
	total int

	degraded  atomic.Bool
	persistCh chan LedgerEntry
	done      chan struct{}
	closeOnce sync.Once
}

// NewLedger constructs a Ledger seeded with the restored total and
// starts its background persistence pump. Callers must Close the ledger
// on session teardown.
func NewLedger(userID string, total int, store Store, cache Cache, logger zerolog.Logger) *Ledger {
	if total < 0 {
		total = 0
	}
	l := &Ledger{
		userID:         userID,
		store:          store,
		cache:          cache,
		logger:         logger,
		persistTimeout: defaultPersistTimeout,
		total:          total,
		persistCh:      make(chan LedgerEntry, persistQueueDepth),
		done:           make(chan struct{}),
	}
	go l.run()
	return l
}

// Award adds a positive amount to the total and returns the new total.
func (l *Ledger) Award(amount int, source string) (int, error) {
	if amount <= 0 {
		return l.Total(), ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.total + amount
	l.commit(LedgerEntry{Kind: EntryAward, Amount: amount, Total: total, Source: source})
	observability.RecordXPAwarded(source, amount)
	return total, nil
}

// SpendOrLose subtracts a positive amount, clamping the total at 0, and
// returns the resulting total. The recorded delta is what was actually
// applied after clamping.
func (l *Ledger) SpendOrLose(amount int) (int, error) {
	if amount <= 0 {
		return l.Total(), ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	applied := amount
	if applied > l.total {
		applied = l.total
	}
	total := l.total - applied
	l.commit(LedgerEntry{Kind: EntrySpend, Amount: -applied, Total: total, Source: "spend"})
	return total, nil
}

// ApplyWagerOutcome awards the amount on a win and deducts it on a
// loss. An amount of 0 is a no-op.
func (l *Ledger) ApplyWagerOutcome(won bool, amount int) (int, error) {
	if amount == 0 {
		return l.Total(), nil
	}
	if amount < 0 {
		return l.Total(), ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if won {
		total := l.total + amount
		l.commit(LedgerEntry{Kind: EntryWagerWin, Amount: amount, Total: total, Source: "wager"})
		observability.RecordXPAwarded("wager", amount)
		return total, nil
	}

	applied := amount
	if applied > l.total {
		applied = l.total
	}
	total := l.total - applied
	l.commit(LedgerEntry{Kind: EntryWagerLoss, Amount: -applied, Total: total, Source: "wager"})
	return total, nil
}

// ApplyStreakBonus awards the fixed bonus for a milestone length.
// Lengths outside the table for the kind are rejected with no state
// change. Deduplication per crossing is the caller's job: the tracker
// consults the milestone record before invoking this.
func (l *Ledger) ApplyStreakBonus(kind StreakKind, length int) (int, error) {
	bonus, ok := StreakBonus(kind, length)
	if !ok {
		return l.Total(), ErrUnknownMilestone
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.total + bonus
	l.commit(LedgerEntry{Kind: EntryStreakBonus, Amount: bonus, Total: total, Source: string(kind)})
	observability.RecordXPAwarded(string(kind), bonus)
	return total, nil
}

// Reset sets the total to 0 unconditionally and returns the new total.
func (l *Ledger) Reset() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta := -l.total
	l.commit(LedgerEntry{Kind: EntryReset, Amount: delta, Total: 0, Source: "reset"})
	return 0
}

// Total returns the session's current total.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// LevelState recomputes the derived level view from the current total.
func (l *Ledger) LevelState() LevelState {
	return ComputeLevel(l.Total())
}

// Degraded reports whether the most recent persistence attempt failed,
// meaning the in-memory total is ahead of the store.
func (l *Ledger) Degraded() bool {
	return l.degraded.Load()
}

// Close stops the persistence pump after draining queued writes. No
// state mutation happens after Close returns.
func (l *Ledger) Close() {
	l.closeOnce.Do(func() {
		close(l.persistCh)
	})
	<-l.done
}

// commit records the mutation in memory and in the local cache, then
// schedules the write-through. Callers hold l.mu.
func (l *Ledger) commit(entry LedgerEntry) {
	entry.ID = uuid.NewString()
	entry.UserID = l.userID
	entry.RecordedAt = time.Now().UTC()

	l.total = entry.Total
	l.cache.PutTotal(l.userID, entry.Total)

	select {
	case l.persistCh <- entry:
	default:
		// Queue overflow: the store is far behind. Keep serving from
		// memory and flag the session.
		l.degraded.Store(true)
		observability.RecordPersistFailure()
		l.logger.Warn().Str("user_id", l.userID).Msg("xp persist queue full, dropping write-through")
	}
}

func (l *Ledger) run() {
	defer close(l.done)

	for entry := range l.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), l.persistTimeout)
		err := l.store.SaveTotal(ctx, entry)
		cancel()
		if err != nil {
			l.degraded.Store(true)
			observability.RecordPersistFailure()
			l.logger.Warn().
				Err(err).
				Str("user_id", l.userID).
				Str("kind", string(entry.Kind)).
				Int("total", entry.Total).
				Msg("xp write-through failed, in-memory total stays authoritative")
			continue
		}
		l.degraded.Store(false)
		observability.RecordTotalPersisted(entry.RecordedAt)
	}
}

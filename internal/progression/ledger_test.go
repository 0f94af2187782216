package progression

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, store *stubStore, total int) (*Ledger, *stubCache) {
	t.Helper()
	cache := newStubCache()
	ledger := NewLedger("user-1", total, store, cache, zerolog.Nop())
	t.Cleanup(ledger.Close)
	return ledger, cache
}

func TestLedgerAwardAccumulates(t *testing.T) {
	store := newStubStore()
	ledger, cache := newTestLedger(t, store, 0)

	total, err := ledger.Award(57, "workout")
	require.NoError(t, err)
	require.Equal(t, 57, total)

	total, err = ledger.Award(100, "workout")
	require.NoError(t, err)
	require.Equal(t, 157, total)
	require.Equal(t, 157, ledger.Total())

	cached, ok := cache.Total("user-1")
	require.True(t, ok)
	require.Equal(t, 157, cached)

	ledger.Close()

	saved := store.savedEntries()
	require.Len(t, saved, 2)
	require.Equal(t, EntryAward, saved[0].Kind)
	require.Equal(t, 57, saved[0].Amount)
	require.Equal(t, 157, saved[1].Total)
	require.Equal(t, "workout", saved[1].Source)
	require.NotEmpty(t, saved[0].ID)
	require.Equal(t, "user-1", saved[0].UserID)
}

func TestLedgerAwardRejectsNonPositive(t *testing.T) {
	ledger, _ := newTestLedger(t, newStubStore(), 40)

	total, err := ledger.Award(0, "workout")
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Equal(t, 40, total)

	_, err = ledger.Award(-10, "workout")
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Equal(t, 40, ledger.Total())
}

func TestLedgerSpendClampsAtZero(t *testing.T) {
	store := newStubStore()
	ledger, _ := newTestLedger(t, store, 10)

	total, err := ledger.SpendOrLose(50)
	require.NoError(t, err)
	require.Equal(t, 0, total)

	ledger.Close()

	saved := store.savedEntries()
	require.Len(t, saved, 1)
	require.Equal(t, EntrySpend, saved[0].Kind)
	require.Equal(t, -10, saved[0].Amount, "recorded delta is the applied amount after clamping")
	require.Equal(t, 0, saved[0].Total)
}

func TestLedgerWagerOutcomes(t *testing.T) {
	ledger, _ := newTestLedger(t, newStubStore(), 100)

	total, err := ledger.ApplyWagerOutcome(true, 30)
	require.NoError(t, err)
	require.Equal(t, 130, total)

	total, err = ledger.ApplyWagerOutcome(false, 200)
	require.NoError(t, err)
	require.Equal(t, 0, total, "losses clamp at zero")

	total, err = ledger.ApplyWagerOutcome(true, 0)
	require.NoError(t, err)
	require.Equal(t, 0, total, "zero amount is a no-op")

	_, err = ledger.ApplyWagerOutcome(true, -5)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerStreakBonus(t *testing.T) {
	ledger, _ := newTestLedger(t, newStubStore(), 0)

	total, err := ledger.ApplyStreakBonus(StreakWorkout, 7)
	require.NoError(t, err)
	require.Equal(t, 100, total)

	total, err = ledger.ApplyStreakBonus(StreakBattle, 5)
	require.NoError(t, err)
	require.Equal(t, 250, total)

	_, err = ledger.ApplyStreakBonus(StreakWorkout, 5)
	require.ErrorIs(t, err, ErrUnknownMilestone)
	require.Equal(t, 250, ledger.Total())
}

func TestLedgerReset(t *testing.T) {
	store := newStubStore()
	ledger, _ := newTestLedger(t, store, 500)

	require.Equal(t, 0, ledger.Reset())
	require.Equal(t, 0, ledger.Total())

	ledger.Close()

	saved := store.savedEntries()
	require.Len(t, saved, 1)
	require.Equal(t, EntryReset, saved[0].Kind)
	require.Equal(t, -500, saved[0].Amount)
}

func TestLedgerNegativeSeedClampsToZero(t *testing.T) {
	ledger, _ := newTestLedger(t, newStubStore(), -20)
	require.Equal(t, 0, ledger.Total())
}

func TestLedgerDegradedOnPersistFailure(t *testing.T) {
	store := newStubStore()
	store.saveErr = errors.New("connection refused")
	store.saveFailures = 1

	ledger, _ := newTestLedger(t, store, 0)

	total, err := ledger.Award(25, "workout")
	require.NoError(t, err, "persist failures never surface as mutation errors")
	require.Equal(t, 25, total)

	// A successful write-through clears the flag again.
	_, err = ledger.Award(25, "workout")
	require.NoError(t, err)

	ledger.Close()

	require.False(t, ledger.Degraded())
	require.Len(t, store.savedEntries(), 1, "only the second write reaches the store")
	require.Equal(t, 50, ledger.Total(), "in-memory total stays authoritative")
}

func TestLedgerStaysDegradedWhileStoreIsDown(t *testing.T) {
	store := newStubStore()
	store.saveErr = errors.New("connection refused")
	store.saveFailures = 1 << 30

	ledger, cache := newTestLedger(t, store, 0)

	_, err := ledger.Award(10, "workout")
	require.NoError(t, err)

	ledger.Close()

	require.True(t, ledger.Degraded())
	require.Empty(t, store.savedEntries())

	cached, ok := cache.Total("user-1")
	require.True(t, ok)
	require.Equal(t, 10, cached, "cache still reflects the optimistic total")
}

func TestLedgerCloseIsIdempotent(t *testing.T) {
	ledger, _ := newTestLedger(t, newStubStore(), 0)
	ledger.Close()
	ledger.Close()
}

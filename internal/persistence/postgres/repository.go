// Package postgres provides the Postgres-backed store for progression
// state and the transactional outbox rows that feed the dispatcher.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hireai24/repz-app-sub000/internal/events"
	"github.com/hireai24/repz-app-sub000/internal/progression"
)

// Repository implements progression.Store on top of a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadTotal reads the persisted XP total for a user.
func (r *Repository) LoadTotal(ctx context.Context, userID string) (int, bool, error) {
	const query = `SELECT total FROM xp_totals WHERE user_id = $1`

	var total int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return total, true, nil
}

// SaveTotal persists a ledger mutation: the new total, the audit entry,
// and the outbox event, all in one transaction.
func (r *Repository) SaveTotal(ctx context.Context, entry progression.LedgerEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const upsertTotal = `INSERT INTO xp_totals (user_id, total, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET total = EXCLUDED.total, updated_at = EXCLUDED.updated_at`

	if _, err = tx.Exec(ctx, upsertTotal, entry.UserID, entry.Total, entry.RecordedAt); err != nil {
		return err
	}

	const insertEntry = `INSERT INTO xp_ledger_entries (entry_id, user_id, kind, amount, total, source, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	if _, err = tx.Exec(ctx, insertEntry,
		entry.ID,
		entry.UserID,
		string(entry.Kind),
		entry.Amount,
		entry.Total,
		entry.Source,
		entry.RecordedAt,
	); err != nil {
		return err
	}

	eventType, payload := entryEvent(entry)
	if err = insertOutbox(ctx, tx, entry.UserID, entry.ID, eventType, payload); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// ListEntries returns ledger entries for a user, newest first, with
// keyset pagination on (recorded_at, entry_id).
func (r *Repository) ListEntries(ctx context.Context, userID string, cursor *progression.Cursor, limit int) ([]progression.LedgerEntry, *progression.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT entry_id, user_id, kind, amount, total, source, recorded_at
        FROM xp_ledger_entries WHERE user_id = $1`

	if cursor != nil {
		query += ` AND (recorded_at, entry_id) < ($3, $4)`
		args = append(args, cursor.RecordedAt, cursor.ID)
	}

	query += ` ORDER BY recorded_at DESC, entry_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]progression.LedgerEntry, 0, limit)
	for rows.Next() {
		var entry progression.LedgerEntry
		var kind string
		if err := rows.Scan(&entry.ID, &entry.UserID, &kind, &entry.Amount, &entry.Total, &entry.Source, &entry.RecordedAt); err != nil {
			return nil, nil, err
		}
		entry.Kind = progression.EntryKind(kind)
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *progression.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &progression.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}

	return results, next, nil
}

// LoadMilestone reads the last granted milestone length for a streak
// kind; 0 when nothing was granted yet.
func (r *Repository) LoadMilestone(ctx context.Context, userID string, kind progression.StreakKind) (int, error) {
	const query = `SELECT last_length FROM milestone_records WHERE user_id = $1 AND kind = $2`

	var length int
	if err := r.pool.QueryRow(ctx, query, userID, string(kind)).Scan(&length); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return length, nil
}

// SaveMilestone records a milestone grant and emits the streak event.
func (r *Repository) SaveMilestone(ctx context.Context, userID string, kind progression.StreakKind, length, bonus int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()

	const upsert = `INSERT INTO milestone_records (user_id, kind, last_length, updated_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, kind) DO UPDATE SET last_length = EXCLUDED.last_length, updated_at = EXCLUDED.updated_at`

	if _, err = tx.Exec(ctx, upsert, userID, string(kind), length, now); err != nil {
		return err
	}

	payload := events.StreakMilestone{
		UserID:     userID,
		Kind:       string(kind),
		Length:     length,
		Bonus:      bonus,
		OccurredAt: now,
	}
	aggregateID := fmt.Sprintf("%s:%s:%d", userID, kind, length)
	if err = insertOutbox(ctx, tx, userID, aggregateID, "streak.milestone", payload); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// ActivityDays reads the day keys logged within the trailing window.
func (r *Repository) ActivityDays(ctx context.Context, userID string, window int) ([]progression.DayKey, error) {
	const query = `SELECT to_char(day, 'YYYY-MM-DD') FROM activity_days
        WHERE user_id = $1 AND day >= CURRENT_DATE - $2::int
        ORDER BY day DESC`

	rows, err := r.pool.Query(ctx, query, userID, window)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]progression.DayKey, 0, window)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, progression.DayKey(day))
	}
	return days, rows.Err()
}

// LogActivityDay appends one activity day; replays are no-ops.
func (r *Repository) LogActivityDay(ctx context.Context, userID string, day progression.DayKey) error {
	const stmt = `INSERT INTO activity_days (user_id, day)
        VALUES ($1, $2::date)
        ON CONFLICT (user_id, day) DO NOTHING`

	_, err := r.pool.Exec(ctx, stmt, userID, string(day))
	return err
}

// Entitlement reads the user's paid-feature flags.
func (r *Repository) Entitlement(ctx context.Context, userID string) (progression.Entitlement, bool, error) {
	const query = `SELECT pro, elite FROM entitlements WHERE user_id = $1`

	var ent progression.Entitlement
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&ent.Pro, &ent.Elite); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progression.Entitlement{}, false, nil
		}
		return progression.Entitlement{}, false, err
	}
	return ent, true, nil
}

// entryEvent maps a ledger entry to its outbound event type and payload.
func entryEvent(entry progression.LedgerEntry) (string, interface{}) {
	switch entry.Kind {
	case progression.EntryAward, progression.EntryWagerWin, progression.EntryStreakBonus:
		return "xp.awarded", events.XPAwarded{
			EntryID:    entry.ID,
			UserID:     entry.UserID,
			Amount:     entry.Amount,
			Total:      entry.Total,
			Source:     entry.Source,
			RecordedAt: entry.RecordedAt,
		}
	default:
		return "xp.adjusted", events.XPAdjusted{
			EntryID:    entry.ID,
			UserID:     entry.UserID,
			Amount:     entry.Amount,
			Total:      entry.Total,
			Reason:     entry.Source,
			RecordedAt: entry.RecordedAt,
		}
	}
}

func insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		"progression",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"xp.awarded": {
		Topic:         "progression_xp_events",
		SchemaSubject: "progression_xp_events-value",
	},
	"xp.adjusted": {
		Topic:         "progression_xp_events",
		SchemaSubject: "progression_xp_events-value",
	},
	"streak.milestone": {
		Topic:         "progression_streak_events",
		SchemaSubject: "progression_streak_events-value",
	},
}

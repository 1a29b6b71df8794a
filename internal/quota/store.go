package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsmith-platform/docsmith/internal/identity"
)

// Store persists per-identity usage counters. Get never creates rows; a row
// comes into existence on the first Increment for its period. All mutating
// operations are single atomic statements so concurrent callers cannot race
// a read-modify-write cycle.
type Store interface {
	// Get returns the row for the given identity and period, or nil if none.
	Get(ctx context.Context, id identity.Identity, periodStart time.Time) (*Record, error)

	// ResetDailyIfStale zeroes the daily counter and advances last_reset_date
	// when the stored day has passed, preserving the monthly counter. Returns
	// true when a reset was performed. Safe to call redundantly.
	ResetDailyIfStale(ctx context.Context, id identity.Identity, periodStart, today time.Time) (bool, error)

	// Increment atomically adds n to both counters for the given period,
	// creating the row if absent. A daily counter left over from a previous
	// day is replaced by n instead of added to.
	Increment(ctx context.Context, id identity.Identity, periodStart, today time.Time, n int) error

	// MigrateAnonymous merges the anonymous identity's current-period row
	// into the user's row and deletes the anonymous row. Idempotent no-op
	// when no anonymous row exists.
	MigrateAnonymous(ctx context.Context, anon, user identity.Identity, periodStart, today time.Time) error
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func tableFor(id identity.Identity) (table, keyCol string, key any, err error) {
	if id.IsAnonymous() {
		if id.IP == "" {
			return "", "", nil, errors.New("anonymous identity has no address")
		}
		return "anonymous_usage", "ip_address", id.IP, nil
	}
	return "user_usage", "user_id", *id.UserID, nil
}

func (s *postgresStore) Get(ctx context.Context, id identity.Identity, periodStart time.Time) (*Record, error) {
	table, keyCol, key, err := tableFor(id)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT daily_count, monthly_count, last_reset_date, period_start, updated_at
		FROM %s
		WHERE %s = $1 AND period_start = $2`, table, keyCol)

	rec := &Record{}
	err = s.pool.QueryRow(ctx, query, key, Day(periodStart)).Scan(
		&rec.DailyCount, &rec.MonthlyCount, &rec.LastResetDate, &rec.PeriodStart, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	return rec, nil
}

func (s *postgresStore) ResetDailyIfStale(ctx context.Context, id identity.Identity, periodStart, today time.Time) (bool, error) {
	table, keyCol, key, err := tableFor(id)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET daily_count = 0,
		    last_reset_date = $3,
		    updated_at = NOW()
		WHERE %s = $1 AND period_start = $2 AND last_reset_date < $3`, table, keyCol)

	tag, err := s.pool.Exec(ctx, query, key, Day(periodStart), Day(today))
	if err != nil {
		return false, fmt.Errorf("resetting daily counter in %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) Increment(ctx context.Context, id identity.Identity, periodStart, today time.Time, n int) error {
	table, keyCol, key, err := tableFor(id)
	if err != nil {
		return err
	}
	return upsertCounts(ctx, s.pool, table, keyCol, key, periodStart, today, n, n)
}

// upsertCounts is the single-statement increment shared by Increment and
// MigrateAnonymous. The CASE folds a daily counter left over from a previous
// day instead of adding to it, so increments stay correct across a day
// boundary without a prior reset.
func upsertCounts(ctx context.Context, db dbtx, table, keyCol string, key any, periodStart, today time.Time, daily, monthly int) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, period_start, daily_count, monthly_count, last_reset_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (%[2]s, period_start) DO UPDATE SET
			daily_count = CASE
				WHEN %[1]s.last_reset_date < EXCLUDED.last_reset_date THEN EXCLUDED.daily_count
				ELSE %[1]s.daily_count + EXCLUDED.daily_count
			END,
			monthly_count = %[1]s.monthly_count + EXCLUDED.monthly_count,
			last_reset_date = EXCLUDED.last_reset_date,
			updated_at = NOW()`, table, keyCol)

	_, err := db.Exec(ctx, query, key, Day(periodStart), daily, monthly, Day(today))
	if err != nil {
		return fmt.Errorf("upserting counters in %s: %w", table, err)
	}
	return nil
}

func (s *postgresStore) MigrateAnonymous(ctx context.Context, anon, user identity.Identity, periodStart, today time.Time) error {
	if !anon.IsAnonymous() || user.IsAnonymous() {
		return errors.New("migration requires an anonymous source and a user target")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning migration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var daily, monthly int
	var lastReset time.Time
	err = tx.QueryRow(ctx, `
		SELECT daily_count, monthly_count, last_reset_date
		FROM anonymous_usage
		WHERE ip_address = $1 AND period_start = $2
		FOR UPDATE`, anon.IP, Day(periodStart)).Scan(&daily, &monthly, &lastReset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // nothing to migrate
		}
		return fmt.Errorf("reading anonymous usage: %w", err)
	}

	// A daily count from a previous day is already logically zero.
	if lastReset.Before(Day(today)) {
		daily = 0
	}

	if err := upsertCounts(ctx, tx, "user_usage", "user_id", *user.UserID, periodStart, today, daily, monthly); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM anonymous_usage
		WHERE ip_address = $1 AND period_start = $2`, anon.IP, Day(periodStart))
	if err != nil {
		return fmt.Errorf("deleting anonymous usage: %w", err)
	}

	return tx.Commit(ctx)
}

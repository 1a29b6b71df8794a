package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docsmith-platform/docsmith/internal/config"
	"github.com/docsmith-platform/docsmith/internal/identity"
)

// WriteError marks a failed ledger mutation. A lost increment risks
// under-counting usage, so callers must log these loudly instead of
// swallowing them; they must not crash the user-facing flow.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write failed (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Ledger resolves and mutates per-identity usage counters. Rollover is lazy:
// every read compares the stored period markers against the current date, so
// counters appear correct to any reader without a background reset job.
type Ledger struct {
	store Store
	tiers config.TiersConfig
	now   func() time.Time
}

func NewLedger(store Store, tiers config.TiersConfig) *Ledger {
	return &Ledger{
		store: store,
		tiers: tiers,
		now:   time.Now,
	}
}

// WithClock overrides the ledger's clock. Test hook.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// GetUsage returns the identity's counters for the current period, resolving
// staleness at read time. A row from a previous month is simply not consulted
// for the monthly counter; it remains in storage for historical reporting.
func (l *Ledger) GetUsage(ctx context.Context, id identity.Identity) (Usage, error) {
	now := l.now()
	periodStart := PeriodStart(now)
	today := Day(now)

	// Redundant resets are harmless: the store's reset is conditional on the
	// stored day being older than today.
	if _, err := l.store.ResetDailyIfStale(ctx, id, periodStart, today); err != nil {
		slog.Warn("quota: daily reset check failed", "identity", id.Key(), "error", err)
	}

	rec, err := l.store.Get(ctx, id, periodStart)
	if err != nil {
		return Usage{}, fmt.Errorf("getting usage: %w", err)
	}
	if rec == nil {
		return Usage{PeriodStart: periodStart, ResetDate: today}, nil
	}

	usage := Usage{
		DailyCount:   rec.DailyCount,
		MonthlyCount: rec.MonthlyCount,
		ResetDate:    rec.LastResetDate,
		PeriodStart:  rec.PeriodStart,
	}
	// Belt and braces: if the conditional reset raced or failed, the stored
	// daily count from a previous day is still logically zero.
	if rec.LastResetDate.Before(today) {
		usage.DailyCount = 0
		usage.ResetDate = today
	}
	return usage, nil
}

// Increment records n completed generations against the identity's
// current-period row, creating it if needed.
func (l *Ledger) Increment(ctx context.Context, id identity.Identity, n int) error {
	now := l.now()
	if err := l.store.Increment(ctx, id, PeriodStart(now), Day(now), n); err != nil {
		werr := &WriteError{Op: "increment", Err: err}
		slog.Error("quota: ledger increment failed, usage is under-counted",
			"identity", id.Key(), "count", n, "error", err)
		return werr
	}
	return nil
}

// MigrateAnonymous folds an anonymous identity's current-period usage into
// the given user's row. Called once when an anonymous visitor authenticates;
// calling it again is a no-op because the anonymous row no longer exists.
func (l *Ledger) MigrateAnonymous(ctx context.Context, anon, user identity.Identity) error {
	now := l.now()
	if err := l.store.MigrateAnonymous(ctx, anon, user, PeriodStart(now), Day(now)); err != nil {
		werr := &WriteError{Op: "migrate", Err: err}
		slog.Error("quota: anonymous usage migration failed",
			"from", anon.Key(), "to", user.Key(), "error", err)
		return werr
	}
	return nil
}

// LimitsFor resolves a tier name to its configured ceilings. Unknown tiers
// fall back to the free tier rather than failing open.
func (l *Ledger) LimitsFor(tier string) Limits {
	return LimitsFor(l.tiers, tier)
}

func LimitsFor(tiers config.TiersConfig, tier string) Limits {
	var tc config.TierConfig
	switch tier {
	case "anonymous":
		tc = tiers.Anonymous
	case "free":
		tc = tiers.Free
	case "pro":
		tc = tiers.Pro
	case "enterprise":
		tc = tiers.Enterprise
	default:
		slog.Warn("quota: unknown tier, using free limits", "tier", tier)
		tier = "free"
		tc = tiers.Free
	}
	return Limits{Name: tier, Daily: tc.Daily, Monthly: tc.Monthly, Batch: tc.Batch}
}

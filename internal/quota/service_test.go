package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmith-platform/docsmith/internal/config"
	"github.com/docsmith-platform/docsmith/internal/identity"
)

func testTiers() config.TiersConfig {
	return config.TiersConfig{
		Anonymous:   config.TierConfig{Daily: 3, Monthly: 10},
		Free:        config.TierConfig{Daily: 5, Monthly: 50},
		Pro:         config.TierConfig{Daily: 100, Monthly: 1000, Batch: true},
		Enterprise:  config.TierConfig{Daily: -1, Monthly: -1, Batch: true},
		DefaultUser: "free",
	}
}

// fixedClock is a mutable clock for driving day and month boundaries.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestLedger(start time.Time) (*Ledger, *fixedClock) {
	clock := &fixedClock{t: start}
	ledger := NewLedger(NewMemoryStore(), testTiers()).WithClock(clock.Now)
	return ledger, clock
}

func TestLedger_EmptyIdentityIsZero(t *testing.T) {
	ledger, _ := newTestLedger(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	usage, err := ledger.GetUsage(ctx, identity.Anonymous("203.0.113.7", "anonymous"))
	require.NoError(t, err)
	assert.Equal(t, 0, usage.DailyCount)
	assert.Equal(t, 0, usage.MonthlyCount)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), usage.PeriodStart)
}

func TestLedger_IncrementCountsBoth(t *testing.T) {
	ledger, _ := newTestLedger(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	id := identity.User(uuid.New(), "free")

	for i := 0; i < 4; i++ {
		require.NoError(t, ledger.Increment(ctx, id, 1))
	}

	usage, err := ledger.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, usage.DailyCount)
	assert.Equal(t, 4, usage.MonthlyCount)
}

func TestLedger_DailyRollsOverMonthlyPreserved(t *testing.T) {
	ledger, clock := newTestLedger(time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()
	id := identity.User(uuid.New(), "free")

	require.NoError(t, ledger.Increment(ctx, id, 3))

	// Cross the day boundary
	clock.Set(time.Date(2026, 3, 16, 0, 5, 0, 0, time.UTC))

	usage, err := ledger.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.DailyCount, "daily counter resets at the day boundary")
	assert.Equal(t, 3, usage.MonthlyCount, "monthly counter survives the day boundary")
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), usage.ResetDate)
}

func TestLedger_MonthRolloverStartsFreshRow(t *testing.T) {
	ledger, clock := newTestLedger(time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	id := identity.User(uuid.New(), "free")

	require.NoError(t, ledger.Increment(ctx, id, 7))

	// Cross the month boundary
	clock.Set(time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC))

	usage, err := ledger.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.DailyCount)
	assert.Equal(t, 0, usage.MonthlyCount, "new period starts with a fresh logical row")
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), usage.PeriodStart)

	// Increment in the new period, then confirm the old row was not mutated
	require.NoError(t, ledger.Increment(ctx, id, 1))

	store := ledger.store.(*MemoryStore)
	old, err := store.Get(ctx, id, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, old, "prior-period row is kept for historical reporting")
	assert.Equal(t, 7, old.MonthlyCount)
}

func TestLedger_IncrementAfterDayBoundaryWithoutRead(t *testing.T) {
	// Increment must fold a stale daily counter even when no read performed
	// the reset first.
	ledger, clock := newTestLedger(time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()
	id := identity.User(uuid.New(), "free")

	require.NoError(t, ledger.Increment(ctx, id, 2))

	clock.Set(time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC))
	require.NoError(t, ledger.Increment(ctx, id, 1))

	usage, err := ledger.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCount)
	assert.Equal(t, 3, usage.MonthlyCount)
}

func TestLedger_ConcurrentIncrements(t *testing.T) {
	ledger, _ := newTestLedger(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	id := identity.User(uuid.New(), "pro")

	const k = 50
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.Increment(ctx, id, 1)
		}()
	}
	wg.Wait()

	usage, err := ledger.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, k, usage.DailyCount)
	assert.Equal(t, k, usage.MonthlyCount)
}

func TestLedger_MigrateAnonymousMergesAndDeletes(t *testing.T) {
	ledger, clock := newTestLedger(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	anon := identity.Anonymous("203.0.113.7", "anonymous")
	user := identity.User(uuid.New(), "free")

	// Anonymous visitor generated 3 docs yesterday and 2 today: {daily:2, monthly:5}
	require.NoError(t, ledger.Increment(ctx, anon, 3))
	clock.Set(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, ledger.Increment(ctx, anon, 2))

	// User already has {daily:1, monthly:1} in the current period
	require.NoError(t, ledger.Increment(ctx, user, 1))

	require.NoError(t, ledger.MigrateAnonymous(ctx, anon, user))

	merged, err := ledger.GetUsage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.DailyCount)
	assert.Equal(t, 6, merged.MonthlyCount)

	// Anonymous row is gone
	afterAnon, err := ledger.GetUsage(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, 0, afterAnon.DailyCount)
	assert.Equal(t, 0, afterAnon.MonthlyCount)
}

func TestLedger_MigrateAnonymousIdempotent(t *testing.T) {
	ledger, _ := newTestLedger(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	anon := identity.Anonymous("198.51.100.4", "anonymous")
	user := identity.User(uuid.New(), "free")

	require.NoError(t, ledger.Increment(ctx, anon, 2))
	require.NoError(t, ledger.MigrateAnonymous(ctx, anon, user))

	before, err := ledger.GetUsage(ctx, user)
	require.NoError(t, err)

	// Second migration finds no anonymous row and changes nothing
	require.NoError(t, ledger.MigrateAnonymous(ctx, anon, user))

	after, err := ledger.GetUsage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLedger_MigrateDropsStaleAnonymousDaily(t *testing.T) {
	ledger, clock := newTestLedger(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	anon := identity.Anonymous("198.51.100.9", "anonymous")
	user := identity.User(uuid.New(), "free")

	require.NoError(t, ledger.Increment(ctx, anon, 4))

	// Sign-in happens the next day: the anon daily count is logically zero
	clock.Set(time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC))
	require.NoError(t, ledger.MigrateAnonymous(ctx, anon, user))

	merged, err := ledger.GetUsage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 0, merged.DailyCount)
	assert.Equal(t, 4, merged.MonthlyCount)
}

func TestLimitsFor_KnownAndUnknownTiers(t *testing.T) {
	tiers := testTiers()

	pro := LimitsFor(tiers, "pro")
	assert.Equal(t, 100, pro.Daily)
	assert.True(t, pro.Batch)

	ent := LimitsFor(tiers, "enterprise")
	assert.True(t, ent.IsUnlimited())

	// Unknown tiers fall back to free, not to unlimited
	unknown := LimitsFor(tiers, "platinum")
	assert.Equal(t, "free", unknown.Name)
	assert.Equal(t, 5, unknown.Daily)
}

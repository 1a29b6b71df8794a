package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckUsageLimits_Allows(t *testing.T) {
	limits := Limits{Name: "free", Daily: 5, Monthly: 50}
	dec := CheckUsageLimits(Usage{DailyCount: 4, MonthlyCount: 49}, limits)
	assert.True(t, dec.Allowed)
	assert.Empty(t, dec.Scope)
}

func TestCheckUsageLimits_DailyTakesPrecedence(t *testing.T) {
	// Daily exhausted, plenty of monthly headroom
	limits := Limits{Name: "free", Daily: 3, Monthly: 10}
	dec := CheckUsageLimits(Usage{DailyCount: 3, MonthlyCount: 0}, limits)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ScopeDaily, dec.Scope)

	// Both exhausted: still reported as daily
	dec = CheckUsageLimits(Usage{DailyCount: 3, MonthlyCount: 10}, limits)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ScopeDaily, dec.Scope)
}

func TestCheckUsageLimits_MonthlyDenial(t *testing.T) {
	limits := Limits{Name: "free", Daily: 5, Monthly: 10}
	dec := CheckUsageLimits(Usage{DailyCount: 1, MonthlyCount: 10}, limits)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ScopeMonthly, dec.Scope)
	assert.NotEmpty(t, dec.Reason)
}

func TestCheckUsageLimits_UnlimitedTier(t *testing.T) {
	limits := Limits{Name: "enterprise", Daily: Unlimited, Monthly: Unlimited}
	dec := CheckUsageLimits(Usage{DailyCount: 1_000_000, MonthlyCount: 1_000_000}, limits)
	assert.True(t, dec.Allowed)
}

func TestCheckUsageLimits_UnlimitedDailyOnly(t *testing.T) {
	limits := Limits{Name: "custom", Daily: Unlimited, Monthly: 10}
	dec := CheckUsageLimits(Usage{DailyCount: 500, MonthlyCount: 9}, limits)
	assert.True(t, dec.Allowed)

	dec = CheckUsageLimits(Usage{DailyCount: 500, MonthlyCount: 10}, limits)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ScopeMonthly, dec.Scope)
}

func TestCheckUsageLimits_ExactBoundary(t *testing.T) {
	limits := Limits{Name: "free", Daily: 5, Monthly: 50}

	dec := CheckUsageLimits(Usage{DailyCount: 4, MonthlyCount: 0}, limits)
	assert.True(t, dec.Allowed, "one below the ceiling is admitted")

	dec = CheckUsageLimits(Usage{DailyCount: 5, MonthlyCount: 0}, limits)
	assert.False(t, dec.Allowed, "at the ceiling is denied")
}

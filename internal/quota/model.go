package quota

import (
	"time"
)

// Record matches one row of the user_usage / anonymous_usage tables. A row
// covers a single identity for a single billing period (keyed by the first
// calendar day of the month). Rows from past periods are never deleted; they
// are simply superseded by a row for the new period.
type Record struct {
	DailyCount    int       `json:"daily_count"`
	MonthlyCount  int       `json:"monthly_count"`
	LastResetDate time.Time `json:"last_reset_date"`
	PeriodStart   time.Time `json:"period_start"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Usage is the lazily resolved view of an identity's current-period counters.
// It is always derived by comparing stored period markers to the current
// date, never trusted straight from storage.
type Usage struct {
	DailyCount   int       `json:"daily_count"`
	MonthlyCount int       `json:"monthly_count"`
	ResetDate    time.Time `json:"reset_date"`
	PeriodStart  time.Time `json:"period_start"`
}

// Limits is a tier's quota ceiling. Daily or Monthly set to Unlimited means
// no ceiling in that scope.
type Limits struct {
	Name    string `json:"name"`
	Daily   int    `json:"daily"`
	Monthly int    `json:"monthly"`
	Batch   bool   `json:"batch"`
}

// Unlimited is the sentinel ceiling for the top tier.
const Unlimited = -1

// IsUnlimited reports whether the tier has no ceilings at all.
func (l Limits) IsUnlimited() bool {
	return l.Daily == Unlimited && l.Monthly == Unlimited
}

// PeriodStart returns the first calendar day of the month containing t, in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

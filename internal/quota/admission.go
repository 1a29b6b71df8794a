package quota

// Scope names the limit that caused a denial.
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Scope   Scope  `json:"scope,omitempty"`
}

// CheckUsageLimits decides whether one more generation is admitted under the
// given tier ceilings. Pure function, no side effects. The daily check takes
// precedence over the monthly one. Callers must invoke it immediately before
// every job admission and never cache the result across jobs: a prior job in
// the same batch may have just advanced the counters.
func CheckUsageLimits(usage Usage, limits Limits) Decision {
	if limits.IsUnlimited() {
		return Decision{Allowed: true}
	}

	if limits.Daily != Unlimited && usage.DailyCount >= limits.Daily {
		return Decision{
			Allowed: false,
			Reason:  "daily generation limit reached",
			Scope:   ScopeDaily,
		}
	}

	if limits.Monthly != Unlimited && usage.MonthlyCount >= limits.Monthly {
		return Decision{
			Allowed: false,
			Reason:  "monthly generation limit reached",
			Scope:   ScopeMonthly,
		}
	}

	return Decision{Allowed: true}
}

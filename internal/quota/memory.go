package quota

import (
	"context"
	"sync"
	"time"

	"github.com/docsmith-platform/docsmith/internal/identity"
)

// MemoryStore is an in-memory Store with the same lazy-rollover semantics as
// the PostgreSQL store. Used by unit tests and local development without a
// database.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[memKey]*Record
}

type memKey struct {
	identity    string
	periodStart time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[memKey]*Record)}
}

func (s *MemoryStore) key(id identity.Identity, periodStart time.Time) memKey {
	return memKey{identity: id.Key(), periodStart: Day(periodStart)}
}

func (s *MemoryStore) Get(_ context.Context, id identity.Identity, periodStart time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[s.key(id, periodStart)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ResetDailyIfStale(_ context.Context, id identity.Identity, periodStart, today time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rows[s.key(id, periodStart)]
	if !ok || !rec.LastResetDate.Before(Day(today)) {
		return false, nil
	}
	rec.DailyCount = 0
	rec.LastResetDate = Day(today)
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) Increment(_ context.Context, id identity.Identity, periodStart, today time.Time, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.increment(id, periodStart, today, n, n)
	return nil
}

// increment mirrors the SQL upsert: a daily counter from a previous day is
// replaced, not added to. Caller holds the lock.
func (s *MemoryStore) increment(id identity.Identity, periodStart, today time.Time, daily, monthly int) {
	k := s.key(id, periodStart)
	rec, ok := s.rows[k]
	if !ok {
		s.rows[k] = &Record{
			DailyCount:    daily,
			MonthlyCount:  monthly,
			LastResetDate: Day(today),
			PeriodStart:   Day(periodStart),
			UpdatedAt:     time.Now().UTC(),
		}
		return
	}
	if rec.LastResetDate.Before(Day(today)) {
		rec.DailyCount = daily
	} else {
		rec.DailyCount += daily
	}
	rec.MonthlyCount += monthly
	rec.LastResetDate = Day(today)
	rec.UpdatedAt = time.Now().UTC()
}

func (s *MemoryStore) MigrateAnonymous(_ context.Context, anon, user identity.Identity, periodStart, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(anon, periodStart)
	rec, ok := s.rows[k]
	if !ok {
		return nil // nothing to migrate
	}

	daily := rec.DailyCount
	if rec.LastResetDate.Before(Day(today)) {
		daily = 0
	}

	s.increment(user, periodStart, today, daily, rec.MonthlyCount)
	delete(s.rows, k)
	return nil
}

package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docsmith-platform/docsmith/internal/identity"
)

const (
	summaryKeyPrefix = "batch:summary:"
	reportKeyPrefix  = "batch:report:"
)

// SessionStore mirrors the most recent BatchRun summary and report into Redis
// under session-scoped keys, so a just-completed view survives a page reload.
// It is a side-channel mirror only — during an active run the orchestrator's
// in-memory state is the source of truth.
type SessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewSessionStore(client redis.Cmdable, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Save caches the run summary and report for the identity.
func (s *SessionStore) Save(ctx context.Context, id identity.Identity, run *BatchRun, report string) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling batch summary: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, summaryKeyPrefix+id.Key(), data, s.ttl)
	pipe.Set(ctx, reportKeyPrefix+id.Key(), report, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("caching batch session: %w", err)
	}
	return nil
}

// Load returns the cached summary and report, or (nil, "") when absent.
func (s *SessionStore) Load(ctx context.Context, id identity.Identity) (*BatchRun, string, error) {
	data, err := s.client.Get(ctx, summaryKeyPrefix+id.Key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("loading batch session: %w", err)
	}

	var run BatchRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, "", fmt.Errorf("unmarshaling batch summary: %w", err)
	}

	report, err := s.client.Get(ctx, reportKeyPrefix+id.Key()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", fmt.Errorf("loading batch report: %w", err)
	}
	return &run, report, nil
}

// Clear removes the cached session. Called on explicit reset and when the
// identity loses batch-capable tier access.
func (s *SessionStore) Clear(ctx context.Context, id identity.Identity) error {
	return s.client.Del(ctx, summaryKeyPrefix+id.Key(), reportKeyPrefix+id.Key()).Err()
}

package batch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmith-platform/docsmith/internal/identity"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, time.Hour), mr
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	store, _ := newTestSessionStore(t)
	id := identity.Anonymous("203.0.113.9", "pro")

	run := &BatchRun{
		TotalFiles:   2,
		SuccessCount: 2,
		AvgQuality:   88.5,
		AvgGrade:     "B",
		GeneratedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Save(context.Background(), id, run, "report text"))

	loaded, report, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, run.TotalFiles, loaded.TotalFiles)
	assert.Equal(t, run.AvgQuality, loaded.AvgQuality)
	assert.Equal(t, "report text", report)
}

func TestSessionStore_LoadMissingReturnsNil(t *testing.T) {
	store, _ := newTestSessionStore(t)

	loaded, report, err := store.Load(context.Background(), identity.Anonymous("198.51.100.1", "free"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Empty(t, report)
}

func TestSessionStore_Clear(t *testing.T) {
	store, _ := newTestSessionStore(t)
	id := identity.Anonymous("203.0.113.9", "pro")

	require.NoError(t, store.Save(context.Background(), id, &BatchRun{TotalFiles: 1}, "r"))
	require.NoError(t, store.Clear(context.Background(), id))

	loaded, _, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionStore_EntriesExpire(t *testing.T) {
	store, mr := newTestSessionStore(t)
	id := identity.Anonymous("203.0.113.9", "pro")

	require.NoError(t, store.Save(context.Background(), id, &BatchRun{TotalFiles: 1}, "r"))
	mr.FastForward(2 * time.Hour)

	loaded, _, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionStore_KeysAreIdentityScoped(t *testing.T) {
	store, _ := newTestSessionStore(t)
	a := identity.Anonymous("203.0.113.1", "pro")
	b := identity.Anonymous("203.0.113.2", "pro")

	require.NoError(t, store.Save(context.Background(), a, &BatchRun{TotalFiles: 1}, "a"))

	loaded, _, err := store.Load(context.Background(), b)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

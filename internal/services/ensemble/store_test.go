package ensemble

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "ensemble_weights.json"))

	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "ensemble_weights.json"))
	ctx := context.Background()
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, State{Weights: DefaultWeights(), LastUpdated: updated, OptimizationCount: 3}))

	state, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultWeights(), state.Weights)
	assert.True(t, state.LastUpdated.Equal(updated))
	assert.Equal(t, 3, state.OptimizationCount)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileStore_ReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensemble_weights.json")
	legacy := `{
  "weights": {"sentiment": 0.25, "technical": 0.25, "macro": 0.25, "deepseek": 0.25},
  "last_updated": "2026-02-01T10:00:00Z",
  "optimization_count": 7
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	state, ok, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.25, state.Weights[SourceAdvisory])
	assert.Equal(t, 7, state.OptimizationCount)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensemble_weights.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, State{Weights: DefaultWeights(), LastUpdated: time.Now().UTC(), OptimizationCount: 1}))

	state, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultWeights(), state.Weights)

	ttl, err := client.TTL(ctx, "ensemble:weights").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

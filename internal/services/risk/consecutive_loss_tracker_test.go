package risk

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeloop/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skip("miniredis cannot bind in this environment; skipping Redis-backed tests")
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestConsecutiveLossConfig_Defaults(t *testing.T) {
	config := DefaultConsecutiveLossConfig()

	assert.Equal(t, 3, config.MaxConsecutiveLosses)
	assert.Equal(t, 15*time.Minute, config.PauseDuration)
}

func TestNewConsecutiveLossTracker_FillsZeroConfig(t *testing.T) {
	tracker := NewConsecutiveLossTracker(nil, ConsecutiveLossConfig{})

	assert.Equal(t, DefaultConsecutiveLossConfig(), tracker.Config())
}

func TestConsecutiveLossTracker_RecordLoss(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewConsecutiveLossTracker(client, DefaultConsecutiveLossConfig())
	ctx := context.Background()

	count, err := tracker.RecordLoss(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = tracker.RecordLoss(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	losses, err := tracker.ConsecutiveLosses(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	assert.Equal(t, 2, losses)

	other, err := tracker.ConsecutiveLosses(ctx, models.StrategyScalping)
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestConsecutiveLossTracker_RecordWinResetsStreak(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewConsecutiveLossTracker(client, DefaultConsecutiveLossConfig())
	ctx := context.Background()

	_, err := tracker.RecordLoss(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	require.NoError(t, tracker.RecordWin(ctx, models.StrategyMomentum))

	losses, err := tracker.ConsecutiveLosses(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	assert.Zero(t, losses)
}

func TestConsecutiveLossTracker_PausesAtMaximum(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewConsecutiveLossTracker(client, DefaultConsecutiveLossConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := tracker.RecordLoss(ctx, models.StrategyScalping)
		require.NoError(t, err)
	}
	ok, reason, err := tracker.CanTrade(ctx, models.StrategyScalping)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, reason, "1 more will pause it")

	_, err = tracker.RecordLoss(ctx, models.StrategyScalping)
	require.NoError(t, err)

	paused, pausedAt, err := tracker.IsPaused(ctx, models.StrategyScalping)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, now, pausedAt)

	ok, reason, err = tracker.CanTrade(ctx, models.StrategyScalping)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "paused after 3 consecutive losses")

	now = now.Add(16 * time.Minute)
	paused, _, err = tracker.IsPaused(ctx, models.StrategyScalping)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestConsecutiveLossTracker_Reset(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewConsecutiveLossTracker(client, ConsecutiveLossConfig{MaxConsecutiveLosses: 1, PauseDuration: time.Hour})
	ctx := context.Background()

	_, err := tracker.RecordLoss(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	require.NoError(t, tracker.Reset(ctx, models.StrategyMomentum))

	ok, reason, err := tracker.CanTrade(ctx, models.StrategyMomentum)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/tradeloop/internal/models"
)

const (
	consecutiveLossKey = "risk:consecutive_loss:%s"
	consecutiveLossTTL = 24 * time.Hour
	pauseDuration      = 15 * time.Minute
	pauseKey           = "risk:paused:%s"
)

// ConsecutiveLossConfig holds configuration for the consecutive loss tracker.
type ConsecutiveLossConfig struct {
	MaxConsecutiveLosses int
	PauseDuration        time.Duration
}

// DefaultConsecutiveLossConfig returns the default configuration for tracking consecutive losses.
func DefaultConsecutiveLossConfig() ConsecutiveLossConfig {
	return ConsecutiveLossConfig{
		MaxConsecutiveLosses: 3,
		PauseDuration:        pauseDuration,
	}
}

// ConsecutiveLossTracker counts losing trades per strategy and pauses a
// strategy once the streak reaches the configured maximum.
type ConsecutiveLossTracker struct {
	redis  *redis.Client
	config ConsecutiveLossConfig
	now    func() time.Time
}

func NewConsecutiveLossTracker(redisClient *redis.Client, config ConsecutiveLossConfig) *ConsecutiveLossTracker {
	if config.MaxConsecutiveLosses <= 0 {
		config.MaxConsecutiveLosses = DefaultConsecutiveLossConfig().MaxConsecutiveLosses
	}
	if config.PauseDuration <= 0 {
		config.PauseDuration = pauseDuration
	}
	return &ConsecutiveLossTracker{
		redis:  redisClient,
		config: config,
		now:    time.Now,
	}
}

func (c *ConsecutiveLossTracker) Config() ConsecutiveLossConfig {
	return c.config
}

// RecordWin ends the losing streak for a strategy.
func (c *ConsecutiveLossTracker) RecordWin(ctx context.Context, id models.StrategyID) error {
	return c.redis.Del(ctx, fmt.Sprintf(consecutiveLossKey, id)).Err()
}

// RecordLoss extends the streak and returns its new length.
func (c *ConsecutiveLossTracker) RecordLoss(ctx context.Context, id models.StrategyID) (int, error) {
	key := fmt.Sprintf(consecutiveLossKey, id)

	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment loss streak: %w", err)
	}
	if err := c.redis.Expire(ctx, key, consecutiveLossTTL).Err(); err != nil {
		return int(count), err
	}

	if int(count) >= c.config.MaxConsecutiveLosses {
		if err := c.SetPaused(ctx, id, true); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}

func (c *ConsecutiveLossTracker) ConsecutiveLosses(ctx context.Context, id models.StrategyID) (int, error) {
	count, err := c.redis.Get(ctx, fmt.Sprintf(consecutiveLossKey, id)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IsPaused reports whether the strategy is inside a pause window and when it started.
func (c *ConsecutiveLossTracker) IsPaused(ctx context.Context, id models.StrategyID) (bool, time.Time, error) {
	pausedAtStr, err := c.redis.Get(ctx, fmt.Sprintf(pauseKey, id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}

	pausedAt, err := time.Parse(time.RFC3339, pausedAtStr)
	if err != nil {
		return false, time.Time{}, err
	}
	if c.now().Sub(pausedAt) >= c.config.PauseDuration {
		return false, time.Time{}, nil
	}
	return true, pausedAt, nil
}

func (c *ConsecutiveLossTracker) SetPaused(ctx context.Context, id models.StrategyID, paused bool) error {
	key := fmt.Sprintf(pauseKey, id)
	if !paused {
		return c.redis.Del(ctx, key).Err()
	}
	return c.redis.Set(ctx, key, c.now().UTC().Format(time.RFC3339), c.config.PauseDuration).Err()
}

// CanTrade reports whether the strategy may open new positions, with a
// human readable reason when it may not or is close to being paused.
func (c *ConsecutiveLossTracker) CanTrade(ctx context.Context, id models.StrategyID) (bool, string, error) {
	losses, err := c.ConsecutiveLosses(ctx, id)
	if err != nil {
		return false, "", err
	}
	paused, pausedAt, err := c.IsPaused(ctx, id)
	if err != nil {
		return false, "", err
	}

	if paused {
		remaining := c.config.PauseDuration - c.now().Sub(pausedAt)
		return false, fmt.Sprintf("%s paused after %d consecutive losses, resumes in %v", id, losses, remaining.Round(time.Second)), nil
	}
	if losses > 0 {
		left := c.config.MaxConsecutiveLosses - losses
		return true, fmt.Sprintf("%s has %d consecutive losses, %d more will pause it", id, losses, left), nil
	}
	return true, "", nil
}

func (c *ConsecutiveLossTracker) Reset(ctx context.Context, id models.StrategyID) error {
	return c.redis.Del(ctx, fmt.Sprintf(consecutiveLossKey, id), fmt.Sprintf(pauseKey, id)).Err()
}

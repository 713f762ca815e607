package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/irfndi/tradeloop/internal/models"
)

const (
	throttleKeyPrefix = "risk:position_throttle:"
	throttleTTL       = 24 * time.Hour
)

type PositionSizeThrottleConfig struct {
	Enabled               bool            `json:"enabled"`
	ReductionFactor       decimal.Decimal `json:"reduction_factor"`
	MinPositionMultiplier decimal.Decimal `json:"min_position_multiplier"`
	LossThreshold         int             `json:"loss_threshold"`
	RecoveryFactor        decimal.Decimal `json:"recovery_factor"`
}

func DefaultPositionSizeThrottleConfig() PositionSizeThrottleConfig {
	return PositionSizeThrottleConfig{
		Enabled:               true,
		ReductionFactor:       decimal.NewFromFloat(0.7),
		MinPositionMultiplier: decimal.NewFromFloat(0.1),
		LossThreshold:         1,
		RecoveryFactor:        decimal.NewFromFloat(1.5),
	}
}

// PositionSizeThrottle shrinks a strategy's position size while it is on a
// losing streak and lets it recover on wins.
type PositionSizeThrottle struct {
	redis  *redis.Client
	config PositionSizeThrottleConfig
}

func NewPositionSizeThrottle(redisClient *redis.Client, config PositionSizeThrottleConfig) *PositionSizeThrottle {
	return &PositionSizeThrottle{
		redis:  redisClient,
		config: config,
	}
}

func (t *PositionSizeThrottle) Config() PositionSizeThrottleConfig {
	return t.config
}

func throttleKey(id models.StrategyID) string {
	return throttleKeyPrefix + string(id)
}

// Multiplier returns the current size multiplier in (0, 1].
func (t *PositionSizeThrottle) Multiplier(ctx context.Context, id models.StrategyID) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if !t.config.Enabled {
		return one, nil
	}

	raw, err := t.redis.Get(ctx, throttleKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return one, nil
	}
	if err != nil {
		return one, fmt.Errorf("failed to get throttle multiplier: %w", err)
	}

	multiplier, err := decimal.NewFromString(raw)
	if err != nil {
		return one, nil
	}
	return multiplier, nil
}

// Apply scales requested by the strategy's multiplier.
func (t *PositionSizeThrottle) Apply(ctx context.Context, id models.StrategyID, requested decimal.Decimal) (decimal.Decimal, error) {
	multiplier, err := t.Multiplier(ctx, id)
	if err != nil {
		return requested, err
	}
	return requested.Mul(multiplier), nil
}

// RecordLoss sets the multiplier to ReductionFactor^(losses-threshold+1),
// floored at MinPositionMultiplier.
func (t *PositionSizeThrottle) RecordLoss(ctx context.Context, id models.StrategyID, consecutiveLosses int) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if !t.config.Enabled || consecutiveLosses < t.config.LossThreshold {
		return one, nil
	}

	effectiveLosses := consecutiveLosses - t.config.LossThreshold + 1
	reduction, _ := t.config.ReductionFactor.Float64()
	multiplier := decimal.NewFromFloat(math.Pow(reduction, float64(effectiveLosses)))
	if multiplier.LessThan(t.config.MinPositionMultiplier) {
		multiplier = t.config.MinPositionMultiplier
	}

	if err := t.redis.Set(ctx, throttleKey(id), multiplier.String(), throttleTTL).Err(); err != nil {
		return one, fmt.Errorf("failed to update throttle multiplier: %w", err)
	}
	return multiplier, nil
}

// RecordWin grows the multiplier by RecoveryFactor, clearing it at 1.
func (t *PositionSizeThrottle) RecordWin(ctx context.Context, id models.StrategyID) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if !t.config.Enabled {
		return one, nil
	}

	current, err := t.Multiplier(ctx, id)
	if err != nil {
		return one, err
	}
	if current.GreaterThanOrEqual(one) {
		return one, nil
	}

	next := current.Mul(t.config.RecoveryFactor)
	if next.GreaterThanOrEqual(one) {
		if err := t.redis.Del(ctx, throttleKey(id)).Err(); err != nil {
			return current, fmt.Errorf("failed to clear throttle multiplier: %w", err)
		}
		return one, nil
	}

	if err := t.redis.Set(ctx, throttleKey(id), next.String(), throttleTTL).Err(); err != nil {
		return current, fmt.Errorf("failed to update throttle multiplier: %w", err)
	}
	return next, nil
}

func (t *PositionSizeThrottle) IsThrottled(ctx context.Context, id models.StrategyID) (bool, error) {
	multiplier, err := t.Multiplier(ctx, id)
	if err != nil {
		return false, err
	}
	return multiplier.LessThan(decimal.NewFromInt(1)), nil
}

func (t *PositionSizeThrottle) Reset(ctx context.Context, id models.StrategyID) error {
	return t.redis.Del(ctx, throttleKey(id)).Err()
}

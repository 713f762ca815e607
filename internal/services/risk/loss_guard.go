package risk

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/config"
	"github.com/irfndi/tradeloop/internal/models"
)

// LossGuard combines the loss streak tracker and the size throttle. A nil
// guard allows every strategy at full size.
type LossGuard struct {
	tracker  *ConsecutiveLossTracker
	throttle *PositionSizeThrottle
	logger   *zap.Logger
}

func NewLossGuard(tracker *ConsecutiveLossTracker, throttle *PositionSizeThrottle, logger *zap.Logger) *LossGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LossGuard{tracker: tracker, throttle: throttle, logger: logger}
}

// NewLossGuardFromConfig returns nil when the guard is disabled.
func NewLossGuardFromConfig(redisClient *redis.Client, cfg config.RiskConfig, logger *zap.Logger) *LossGuard {
	if !cfg.Enabled || redisClient == nil {
		return nil
	}
	tracker := NewConsecutiveLossTracker(redisClient, ConsecutiveLossConfig{
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		PauseDuration:        cfg.PauseDuration,
	})
	throttleCfg := DefaultPositionSizeThrottleConfig()
	if cfg.ReductionFactor > 0 {
		throttleCfg.ReductionFactor = decimal.NewFromFloat(cfg.ReductionFactor)
	}
	if cfg.MinPositionMultiplier > 0 {
		throttleCfg.MinPositionMultiplier = decimal.NewFromFloat(cfg.MinPositionMultiplier)
	}
	if cfg.RecoveryFactor > 0 {
		throttleCfg.RecoveryFactor = decimal.NewFromFloat(cfg.RecoveryFactor)
	}
	if cfg.LossThreshold > 0 {
		throttleCfg.LossThreshold = cfg.LossThreshold
	}
	return NewLossGuard(tracker, NewPositionSizeThrottle(redisClient, throttleCfg), logger)
}

// RecordOutcome updates the streak and throttle for a closed trade.
func (g *LossGuard) RecordOutcome(ctx context.Context, id models.StrategyID, outcome models.Outcome) error {
	if g == nil {
		return nil
	}
	if outcome == models.OutcomeWin {
		if err := g.tracker.RecordWin(ctx, id); err != nil {
			return err
		}
		_, err := g.throttle.RecordWin(ctx, id)
		return err
	}

	losses, err := g.tracker.RecordLoss(ctx, id)
	if err != nil {
		return err
	}
	multiplier, err := g.throttle.RecordLoss(ctx, id, losses)
	if err != nil {
		return err
	}
	g.logger.Info("Recorded losing trade",
		zap.String("strategy", string(id)),
		zap.Int("consecutive_losses", losses),
		zap.String("size_multiplier", multiplier.String()))
	return nil
}

// Allowed drops paused strategies. Lookup errors keep the strategy.
func (g *LossGuard) Allowed(ctx context.Context, ids []models.StrategyID) []models.StrategyID {
	if g == nil {
		return ids
	}
	out := make([]models.StrategyID, 0, len(ids))
	for _, id := range ids {
		ok, reason, err := g.tracker.CanTrade(ctx, id)
		if err != nil {
			g.logger.Warn("Failed to check loss streak", zap.String("strategy", string(id)), zap.Error(err))
			out = append(out, id)
			continue
		}
		if !ok {
			g.logger.Info("Strategy paused", zap.String("strategy", string(id)), zap.String("reason", reason))
			continue
		}
		out = append(out, id)
	}
	return out
}

// Multiplier is the size multiplier for a strategy, 1 on error.
func (g *LossGuard) Multiplier(ctx context.Context, id models.StrategyID) decimal.Decimal {
	if g == nil {
		return decimal.NewFromInt(1)
	}
	m, err := g.throttle.Multiplier(ctx, id)
	if err != nil {
		g.logger.Warn("Failed to read size throttle", zap.String("strategy", string(id)), zap.Error(err))
		return decimal.NewFromInt(1)
	}
	return m
}

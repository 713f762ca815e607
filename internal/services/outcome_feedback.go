package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/services/ensemble"
	"github.com/irfndi/tradeloop/internal/services/pubsub"
	"github.com/irfndi/tradeloop/internal/services/risk"
)

const (
	defaultPendingTTL = 7 * 24 * time.Hour
	defaultMaxPending = 10000
)

type OutcomeFeedbackConfig struct {
	MinTrades        int
	OptimizeInterval int
	// PendingTTL drops predictions of trades that never close.
	PendingTTL time.Duration
	MaxPending int
}

type pendingTrade struct {
	preds     map[ensemble.ModelSource]ensemble.Prediction
	trackedAt time.Time
}

// OutcomeFeedback turns closed trades into ensemble accuracy samples and
// loss streak updates.
type OutcomeFeedback struct {
	optimizer *ensemble.Optimizer
	guard     *risk.LossGuard
	publisher *pubsub.Publisher
	config    OutcomeFeedbackConfig
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[int64]pendingTrade
	now     func() time.Time
}

func NewOutcomeFeedback(optimizer *ensemble.Optimizer, guard *risk.LossGuard, config OutcomeFeedbackConfig, logger *zap.Logger) *OutcomeFeedback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PendingTTL <= 0 {
		config.PendingTTL = defaultPendingTTL
	}
	if config.MaxPending <= 0 {
		config.MaxPending = defaultMaxPending
	}
	return &OutcomeFeedback{
		optimizer: optimizer,
		guard:     guard,
		config:    config,
		logger:    logger.With(zap.String("component", "outcome_feedback")),
		pending:   make(map[int64]pendingTrade),
		now:       time.Now,
	}
}

// WithPublisher announces closed trades and new weights on Redis.
func (f *OutcomeFeedback) WithPublisher(publisher *pubsub.Publisher) *OutcomeFeedback {
	f.publisher = publisher
	return f
}

// Track remembers the model calls made when a trade was opened. Entries
// older than PendingTTL are dropped, and the oldest entry is evicted once
// MaxPending trades are tracked.
func (f *OutcomeFeedback) Track(tradeID int64, preds map[ensemble.ModelSource]ensemble.Prediction) {
	if len(preds) == 0 {
		return
	}
	cp := make(map[ensemble.ModelSource]ensemble.Prediction, len(preds))
	for k, v := range preds {
		cp[k] = v
	}
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked(now)
	if _, exists := f.pending[tradeID]; !exists && len(f.pending) >= f.config.MaxPending {
		f.evictOldestLocked()
	}
	f.pending[tradeID] = pendingTrade{preds: cp, trackedAt: now}
}

func (f *OutcomeFeedback) pruneLocked(now time.Time) {
	for id, p := range f.pending {
		if now.Sub(p.trackedAt) > f.config.PendingTTL {
			delete(f.pending, id)
		}
	}
}

func (f *OutcomeFeedback) evictOldestLocked() {
	var (
		oldestID int64
		oldestAt time.Time
		found    bool
	)
	for id, p := range f.pending {
		if !found || p.trackedAt.Before(oldestAt) || (p.trackedAt.Equal(oldestAt) && id < oldestID) {
			oldestID, oldestAt, found = id, p.trackedAt, true
		}
	}
	if found {
		f.logger.Warn("Pending predictions full, dropping oldest", zap.Int64("trade_id", oldestID))
		delete(f.pending, oldestID)
	}
}

// Pending is the number of open trades with tracked predictions.
func (f *OutcomeFeedback) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// OnTradeClosed is registered as a trade history listener.
func (f *OutcomeFeedback) OnTradeClosed(ctx context.Context, trade models.Trade) {
	if trade.Outcome == nil {
		return
	}
	outcome := *trade.Outcome
	logger := f.logger.With(zap.Int64("trade_id", trade.ID), zap.String("strategy", string(trade.Strategy)))

	if err := f.guard.RecordOutcome(ctx, trade.Strategy, outcome); err != nil {
		logger.Warn("Failed to update loss streak", zap.Error(err))
	}
	if f.publisher != nil {
		if err := f.publisher.PublishTradeClosed(ctx, trade); err != nil {
			logger.Warn("Failed to publish closed trade", zap.Error(err))
		}
	}

	f.mu.Lock()
	tracked, ok := f.pending[trade.ID]
	delete(f.pending, trade.ID)
	f.mu.Unlock()
	if !ok || f.optimizer == nil {
		return
	}
	if f.now().Sub(tracked.trackedAt) > f.config.PendingTTL {
		logger.Debug("Predictions expired before close")
		return
	}

	f.optimizer.RecordPrediction(tracked.preds, outcome)
	if !f.optimizer.ShouldOptimize(f.config.OptimizeInterval) {
		return
	}

	weights := f.optimizer.Optimize(ctx, f.config.MinTrades)
	if f.publisher != nil {
		payload := pubsub.WeightsPayload{Weights: weights.StringMap(), OptimizationCount: f.optimizer.OptimizationCount()}
		if err := f.publisher.PublishWeights(ctx, payload); err != nil {
			logger.Warn("Failed to publish ensemble weights", zap.Error(err))
		}
	}
}

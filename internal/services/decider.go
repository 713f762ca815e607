package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/services/pubsub"
	"github.com/irfndi/tradeloop/internal/services/signals"
)

// LogDecider logs the primary signal and the weights it would be judged with.
type LogDecider struct {
	logger *zap.Logger
}

func NewLogDecider(logger *zap.Logger) *LogDecider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDecider{logger: logger}
}

func (d *LogDecider) Decide(_ context.Context, decision Decision) error {
	primary, ok := decision.Primary()
	if !ok {
		return nil
	}
	d.logger.Info("Primary signal selected",
		zap.String("cycle_id", decision.CycleID),
		zap.String("symbol", decision.Symbol),
		zap.String("strategy", string(primary.Strategy)),
		zap.String("action", string(primary.Action)),
		zap.Float64("price", primary.Price),
		zap.Float64("priority", primary.Priority),
		zap.String("regime", string(decision.Market.Regime)),
		zap.String("weights", decision.Weights.String()))
	d.logger.Debug(signals.Summary(decision.Signals), zap.String("symbol", decision.Symbol))
	return nil
}

// PublishingDecider forwards decisions to Redis subscribers.
type PublishingDecider struct {
	publisher *pubsub.Publisher
}

func NewPublishingDecider(publisher *pubsub.Publisher) *PublishingDecider {
	return &PublishingDecider{publisher: publisher}
}

func (d *PublishingDecider) Decide(ctx context.Context, decision Decision) error {
	return d.publisher.PublishDecision(ctx, pubsub.DecisionPayload{
		CycleID: decision.CycleID,
		Symbol:  decision.Symbol,
		Regime:  string(decision.Market.Regime),
		Signals: decision.Signals,
		Weights: decision.Weights.StringMap(),
	})
}

// MultiDecider hands each decision to every decider in order.
type MultiDecider []Decider

func (m MultiDecider) Decide(ctx context.Context, decision Decision) error {
	var errs []error
	for _, d := range m {
		if err := d.Decide(ctx, decision); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

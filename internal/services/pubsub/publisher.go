package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/models"
)

type Publisher struct {
	client    *redis.Client
	logger    *zap.Logger
	published atomic.Int64
	errors    atomic.Int64
}

func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		logger: logger,
	}
}

func (p *Publisher) Publish(ctx context.Context, channel string, envelope Envelope) error {
	if channel == "" {
		return fmt.Errorf("pubsub: channel cannot be empty")
	}

	envelope.Channel = channel
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("pubsub: marshal envelope: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.errors.Add(1)
		p.logger.Error("pubsub: publish failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return fmt.Errorf("pubsub: publish to %s: %w", channel, err)
	}

	p.published.Add(1)
	return nil
}

func (p *Publisher) PublishDecision(ctx context.Context, payload DecisionPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pubsub: marshal decision payload: %w", err)
	}
	return p.Publish(ctx, DecisionChannel(payload.Symbol), Envelope{
		Type:    MessageTypeDecision,
		Symbol:  payload.Symbol,
		CycleID: payload.CycleID,
		Data:    data,
	})
}

func (p *Publisher) PublishTradeClosed(ctx context.Context, trade models.Trade) error {
	data, err := json.Marshal(TradeClosedPayload{Trade: trade})
	if err != nil {
		return fmt.Errorf("pubsub: marshal trade payload: %w", err)
	}
	return p.Publish(ctx, ChannelTradeClosed, Envelope{
		Type:   MessageTypeTradeClosed,
		Symbol: trade.Symbol,
		Data:   data,
	})
}

func (p *Publisher) PublishWeights(ctx context.Context, payload WeightsPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pubsub: marshal weights payload: %w", err)
	}
	return p.Publish(ctx, ChannelEnsembleWeights, Envelope{
		Type: MessageTypeWeights,
		Data: data,
	})
}

type PublisherStats struct {
	Published int64 `json:"published"`
	Errors    int64 `json:"errors"`
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
	}
}

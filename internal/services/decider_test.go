package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/services/ensemble"
	"github.com/irfndi/tradeloop/internal/services/pubsub"
	"github.com/irfndi/tradeloop/internal/testutil"
)

func sampleDecision() Decision {
	return Decision{
		CycleID: "cycle-1",
		Symbol:  "BTC/USDT",
		Signals: []models.Signal{
			{Symbol: "BTC/USDT", Strategy: models.StrategyMACDSupertrend, StrategyName: "MACD Supertrend", Action: models.ActionBuy, Price: 65000, Priority: 41},
			{Symbol: "BTC/USDT", Strategy: models.StrategyMomentum, StrategyName: "Momentum", Action: models.ActionBuy, Price: 65000, Priority: 31},
		},
		Weights: ensemble.DefaultWeights(),
		Market:  models.MarketContext{Symbol: "BTC/USDT", Regime: models.RegimeBullish},
	}
}

func TestDecision_Primary(t *testing.T) {
	primary, ok := sampleDecision().Primary()
	require.True(t, ok)
	assert.Equal(t, models.StrategyMACDSupertrend, primary.Strategy)

	_, ok = Decision{}.Primary()
	assert.False(t, ok)
}

func TestLogDecider(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	decider := NewLogDecider(zap.New(core))

	require.NoError(t, decider.Decide(context.Background(), sampleDecision()))
	require.NoError(t, decider.Decide(context.Background(), Decision{Symbol: "ETH/USDT"}))

	entries := logs.FilterMessage("Primary signal selected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "macd_supertrend", fields["strategy"])
	assert.Equal(t, "BULLISH", fields["regime"])
}

func TestPublishingDecider(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	ctx := context.Background()
	sub := client.Subscribe(ctx, pubsub.DecisionChannel("BTC/USDT"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	decider := NewPublishingDecider(pubsub.NewPublisher(client, nil))
	require.NoError(t, decider.Decide(ctx, sampleDecision()))

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	require.NoError(t, err)

	var env pubsub.Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, pubsub.MessageTypeDecision, env.Type)
	assert.Equal(t, "cycle-1", env.CycleID)

	var payload pubsub.DecisionPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Len(t, payload.Signals, 2)
	assert.InDelta(t, 0.30, payload.Weights["advisory"], 1e-12)
}

func TestMultiDecider(t *testing.T) {
	first := &recordingDecider{err: errors.New("first failed")}
	second := &recordingDecider{}
	third := &recordingDecider{err: errors.New("third failed")}

	err := MultiDecider{first, second, third}.Decide(context.Background(), sampleDecision())

	require.Error(t, err)
	assert.ErrorContains(t, err, "first failed")
	assert.ErrorContains(t, err, "third failed")
	assert.Len(t, second.decisions, 1)
	assert.NoError(t, MultiDecider{second}.Decide(context.Background(), sampleDecision()))
}

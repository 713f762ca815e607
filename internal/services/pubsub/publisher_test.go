package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return client, s
}

func subscribe(t *testing.T, client *redis.Client, channel string) *redis.PubSub {
	t.Helper()
	sub := client.Subscribe(context.Background(), channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)
	return sub
}

func receive(t *testing.T, sub *redis.PubSub) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	return env
}

func TestPublisher_Publish(t *testing.T) {
	client, _ := setupTestRedis(t)
	defer client.Close()
	pub := NewPublisher(client, zap.NewNop())
	sub := subscribe(t, client, "tradeloop:decision:BTC/USDT")

	err := pub.Publish(context.Background(), "tradeloop:decision:BTC/USDT", Envelope{
		Type:   MessageTypeDecision,
		Symbol: "BTC/USDT",
		Data:   json.RawMessage(`{"symbol":"BTC/USDT"}`),
	})
	require.NoError(t, err)

	env := receive(t, sub)
	assert.Equal(t, MessageTypeDecision, env.Type)
	assert.Equal(t, "tradeloop:decision:BTC/USDT", env.Channel)
	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, int64(1), pub.Stats().Published)
}

func TestPublisher_PublishEmptyChannel(t *testing.T) {
	client, _ := setupTestRedis(t)
	defer client.Close()
	pub := NewPublisher(client, nil)

	err := pub.Publish(context.Background(), "", Envelope{})
	assert.ErrorContains(t, err, "channel cannot be empty")
}

func TestPublisher_PublishDecision(t *testing.T) {
	client, _ := setupTestRedis(t)
	defer client.Close()
	pub := NewPublisher(client, nil)
	sub := subscribe(t, client, DecisionChannel("ETH/USDT"))

	payload := DecisionPayload{
		CycleID: "cycle-1",
		Symbol:  "ETH/USDT",
		Regime:  "BULLISH",
		Signals: []models.Signal{{Symbol: "ETH/USDT", Strategy: models.StrategyMomentum, Action: models.ActionBuy, Price: 3000}},
		Weights: map[string]float64{"advisory": 0.3},
	}
	require.NoError(t, pub.PublishDecision(context.Background(), payload))

	env := receive(t, sub)
	assert.Equal(t, MessageTypeDecision, env.Type)
	assert.Equal(t, "cycle-1", env.CycleID)

	var got DecisionPayload
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Signals, 1)
	assert.Equal(t, models.StrategyMomentum, got.Signals[0].Strategy)
	assert.Equal(t, 0.3, got.Weights["advisory"])
}

func TestPublisher_PublishTradeClosedAndWeights(t *testing.T) {
	client, _ := setupTestRedis(t)
	defer client.Close()
	pub := NewPublisher(client, nil)
	trades := subscribe(t, client, ChannelTradeClosed)
	weights := subscribe(t, client, ChannelEnsembleWeights)

	outcome := models.OutcomeWin
	require.NoError(t, pub.PublishTradeClosed(context.Background(), models.Trade{ID: 4, Symbol: "SOL/USDT", Outcome: &outcome}))
	require.NoError(t, pub.PublishWeights(context.Background(), WeightsPayload{Weights: map[string]float64{"macro": 0.15}, OptimizationCount: 2}))

	env := receive(t, trades)
	assert.Equal(t, MessageTypeTradeClosed, env.Type)
	assert.Equal(t, "SOL/USDT", env.Symbol)
	var closed TradeClosedPayload
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.Equal(t, int64(4), closed.Trade.ID)

	env = receive(t, weights)
	var w WeightsPayload
	require.NoError(t, json.Unmarshal(env.Data, &w))
	assert.Equal(t, 2, w.OptimizationCount)
}

func TestPublisher_ErrorsCounted(t *testing.T) {
	client, s := setupTestRedis(t)
	defer client.Close()
	pub := NewPublisher(client, nil)
	s.Close()

	err := pub.PublishWeights(context.Background(), WeightsPayload{})
	assert.Error(t, err)
	assert.Equal(t, int64(1), pub.Stats().Errors)
}

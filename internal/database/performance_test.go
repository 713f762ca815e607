package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeloop/internal/models"
)

func closedTrade(id int64, strategy models.StrategyID, pnl, pct float64, confidence *float64) models.Trade {
	exit := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	outcome := models.OutcomeLoss
	if pnl > 0 {
		outcome = models.OutcomeWin
	}
	return models.Trade{
		ID:                 id,
		Symbol:             "BTC/USDT",
		Strategy:           strategy,
		EntryPrice:         100,
		Quantity:           1,
		ExitTime:           &exit,
		PnLUSD:             &pnl,
		PnLPercent:         &pct,
		Outcome:            &outcome,
		AdvisoryConfidence: confidence,
	}
}

func conf(v float64) *float64 { return &v }

func TestComputePerformance(t *testing.T) {
	trades := []models.Trade{
		closedTrade(1, models.StrategyMomentum, 20, 10, conf(0.60)),
		closedTrade(2, models.StrategyMomentum, -10, -5, conf(0.70)),
		closedTrade(3, models.StrategyScalping, 5, 2, conf(0.80)),
		closedTrade(4, models.StrategyScalping, -5, -1, conf(0.40)),
		closedTrade(5, models.StrategyMeanReversion, 0, 0, nil),
		{ID: 6, Symbol: "ETH/USDT", Strategy: models.StrategyMomentum, EntryPrice: 10, Quantity: 1},
	}

	snap, err := ComputePerformance(trades)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.TotalTrades)
	assert.Equal(t, 2, snap.Wins)
	assert.Equal(t, 3, snap.Losses)
	assert.InDelta(t, 40.0, snap.WinRate, 1e-9)
	assert.InDelta(t, 6.0, snap.AvgWinPercent, 1e-9)
	assert.InDelta(t, -2.0, snap.AvgLossPercent, 1e-9)
	assert.InDelta(t, 25.0/15.0, snap.ProfitFactor, 1e-9)
	assert.InDelta(t, 10.0, snap.TotalPnLUSD, 1e-9)

	momentum := snap.ByStrategy[models.StrategyMomentum]
	assert.Equal(t, 2, momentum.Trades)
	assert.Equal(t, 1, momentum.Wins)
	assert.InDelta(t, 50.0, momentum.WinRate, 1e-9)
	assert.InDelta(t, 10.0, momentum.PnLUSD, 1e-9)
	assert.Len(t, snap.ByStrategy, 3)

	assert.Equal(t, models.ConfidenceBucket{Total: 1, Wins: 1, WinRate: 100}, snap.Confidence[BucketLow])
	assert.Equal(t, models.ConfidenceBucket{Total: 1, Wins: 0, WinRate: 0}, snap.Confidence[BucketMedium])
	assert.Equal(t, models.ConfidenceBucket{Total: 1, Wins: 1, WinRate: 100}, snap.Confidence[BucketHigh])

	require.NotNil(t, snap.BestTrade)
	require.NotNil(t, snap.WorstTrade)
	assert.Equal(t, int64(1), snap.BestTrade.ID)
	assert.Equal(t, int64(2), snap.WorstTrade.ID)
	assert.InDelta(t, -5.0, snap.WorstTrade.PnLPercent, 1e-9)
}

func TestComputePerformance_NoLossesHasZeroProfitFactor(t *testing.T) {
	snap, err := ComputePerformance([]models.Trade{closedTrade(1, models.StrategyMomentum, 3, 1.5, nil)})
	require.NoError(t, err)

	assert.Zero(t, snap.ProfitFactor)
	assert.Zero(t, snap.AvgLossPercent)
	assert.InDelta(t, 100.0, snap.WinRate, 1e-9)
	assert.Len(t, snap.Confidence, 3)
}

func TestComputePerformance_NoClosedTrades(t *testing.T) {
	_, err := ComputePerformance(nil)
	assert.True(t, errors.Is(err, ErrNoClosedTrades))

	_, err = ComputePerformance([]models.Trade{{ID: 1, Strategy: models.StrategyMomentum}})
	assert.True(t, errors.Is(err, models.ErrNoPerformanceData))
}

func TestConfidenceBucket(t *testing.T) {
	tests := []struct {
		confidence float64
		bucket     string
		ok         bool
	}{
		{0.60, BucketLow, true},
		{0.55, BucketLow, true},
		{0.65, BucketLow, true},
		{0.66, BucketMedium, true},
		{0.75, BucketMedium, true},
		{0.76, BucketHigh, true},
		{1.0, BucketHigh, true},
		{0.54, "", false},
		{0, "", false},
	}
	for _, tt := range tests {
		bucket, ok := confidenceBucket(tt.confidence)
		assert.Equal(t, tt.ok, ok, "confidence %v", tt.confidence)
		assert.Equal(t, tt.bucket, bucket, "confidence %v", tt.confidence)
	}
}

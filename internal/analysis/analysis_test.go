package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeloop/internal/models"
)

func candlesFromCloses(closes ...float64) []models.Candle {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestComputeTechnicalContext(t *testing.T) {
	// closes 1..60
	candles := candlesFromCloses(linear(60, 1, 1)...)
	candles[59].High = 66
	candles[45].Low = 40

	ctx := ComputeTechnicalContext(candles)

	assert.InDelta(t, 50.5, ctx.SMA20, 1e-9) // mean of 41..60
	assert.InDelta(t, 35.5, ctx.SMA50, 1e-9) // mean of 11..60
	assert.InDelta(t, (60-50.5)/50.5*100, ctx.PriceVsSMA20, 1e-9)
	assert.InDelta(t, (60-35.5)/35.5*100, ctx.PriceVsSMA50, 1e-9)
	assert.InDelta(t, (60.0-56.0)/56.0*100, ctx.Change5, 1e-9)
	assert.InDelta(t, (60.0-41.0)/41.0*100, ctx.Change20, 1e-9)
	assert.InDelta(t, (66.0-40.0)/40.0*100, ctx.VolatilityPercent, 1e-9)
}

func TestComputeTechnicalContext_ShortHistoryFallsBack(t *testing.T) {
	candles := candlesFromCloses(linear(25, 100, 1)...)

	ctx := ComputeTechnicalContext(candles)

	assert.Equal(t, ctx.SMA20, ctx.SMA50)
	assert.InDelta(t, ctx.PriceVsSMA20, ctx.PriceVsSMA50, 1e-12)
	assert.Equal(t, models.TechnicalContext{}, ComputeTechnicalContext(nil))
}

func TestClassifyTrend(t *testing.T) {
	assert.Equal(t, models.TrendStrongUp, ClassifyTrend(103, 100))
	assert.Equal(t, models.TrendUp, ClassifyTrend(101, 100))
	assert.Equal(t, models.TrendSideways, ClassifyTrend(100, 100))
	assert.Equal(t, models.TrendDown, ClassifyTrend(99, 100))
	assert.Equal(t, models.TrendStrongDown, ClassifyTrend(97, 100))
}

func TestAnalyzeTimeframe(t *testing.T) {
	_, ok := AnalyzeTimeframe("1h", candlesFromCloses(100))
	assert.False(t, ok)

	analysis, ok := AnalyzeTimeframe("1h", candlesFromCloses(100, 102))
	require.True(t, ok)
	assert.InDelta(t, 2.0, analysis.PriceChangePct, 1e-9)
	assert.InDelta(t, 101.0, analysis.SMA20, 1e-9)
	assert.Equal(t, models.TrendSideways, analysis.Trend)
	assert.Equal(t, 2, analysis.Candles)
}

func TestDetermineRegime(t *testing.T) {
	tf := func(trend models.Trend) models.TimeframeAnalysis { return models.TimeframeAnalysis{Trend: trend} }

	tests := []struct {
		name       string
		timeframes map[string]models.TimeframeAnalysis
		want       models.MarketRegime
	}{
		{"empty", nil, models.RegimeUnknown},
		{"daily and 4h up", map[string]models.TimeframeAnalysis{"1d": tf(models.TrendUp), "4h": tf(models.TrendStrongUp)}, models.RegimeStrongBullish},
		{"daily up only", map[string]models.TimeframeAnalysis{"1d": tf(models.TrendUp), "4h": tf(models.TrendDown)}, models.RegimeBullish},
		{"daily and 4h down", map[string]models.TimeframeAnalysis{"1d": tf(models.TrendStrongDown), "4h": tf(models.TrendDown)}, models.RegimeStrongBearish},
		{"daily down only", map[string]models.TimeframeAnalysis{"1d": tf(models.TrendDown)}, models.RegimeBearish},
		{"daily sideways ignores 4h", map[string]models.TimeframeAnalysis{"1d": tf(models.TrendSideways), "4h": tf(models.TrendUp)}, models.RegimeNeutral},
		{"4h up", map[string]models.TimeframeAnalysis{"4h": tf(models.TrendUp), "1h": tf(models.TrendDown)}, models.RegimeBullishIntraday},
		{"4h down", map[string]models.TimeframeAnalysis{"4h": tf(models.TrendStrongDown)}, models.RegimeBearishIntraday},
		{"1h up", map[string]models.TimeframeAnalysis{"1h": tf(models.TrendUp)}, models.RegimeBullishShortTerm},
		{"1h down", map[string]models.TimeframeAnalysis{"1h": tf(models.TrendDown)}, models.RegimeBearishShortTerm},
		{"5m only", map[string]models.TimeframeAnalysis{"5m": tf(models.TrendUp)}, models.RegimeNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineRegime(tt.timeframes))
		})
	}
}

func TestSuggestStrategies(t *testing.T) {
	timeframes := map[string]models.TimeframeAnalysis{
		"4h":  {Trend: models.TrendUp, VolatilityPercent: 6},
		"1h":  {Trend: models.TrendSideways, VolatilityPercent: 2},
		"15m": {Trend: models.TrendStrongDown},
		"5m":  {VolatilityPercent: 2.5},
	}

	suggestions := SuggestStrategies(models.RegimeStrongBullish, timeframes)

	var ids []models.StrategyID
	for _, s := range suggestions {
		ids = append(ids, s.Strategy)
	}
	assert.Equal(t, []models.StrategyID{
		models.StrategyMACDSupertrend,
		models.StrategyMomentum,
		models.StrategyMeanReversion,
		models.StrategyScalping,
	}, ids)
	assert.Equal(t, 0.9, suggestions[0].Confidence)

	assert.Empty(t, SuggestStrategies(models.RegimeNeutral, map[string]models.TimeframeAnalysis{
		"4h":  {VolatilityPercent: 20},
		"15m": {Trend: models.TrendSideways},
		"5m":  {VolatilityPercent: 3},
	}))
}

func TestBuildMarketContext(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := BuildMarketContext("BTC/USDT", map[string][]models.Candle{
		"1d": candlesFromCloses(linear(60, 100, 1)...),
		"4h": candlesFromCloses(linear(60, 100, 1)...),
		"1h": candlesFromCloses(100),
	}, now)

	assert.Equal(t, "BTC/USDT", ctx.Symbol)
	assert.Len(t, ctx.Timeframes, 2)
	assert.Equal(t, models.RegimeStrongBullish, ctx.Regime)
	assert.Equal(t, now, ctx.CreatedAt)
	require.NotEmpty(t, ctx.Suggestions)
	assert.Equal(t, models.StrategyMACDSupertrend, ctx.Suggestions[0].Strategy)
}

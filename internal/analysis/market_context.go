package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/talib"
)

// AnalyzeTimeframe summarises one timeframe. It needs at least two candles.
func AnalyzeTimeframe(timeframe string, candles []models.Candle) (models.TimeframeAnalysis, bool) {
	if len(candles) < 2 {
		return models.TimeframeAnalysis{}, false
	}
	closes := models.Closes(candles)
	price := closes[len(closes)-1]

	window := closes
	if len(window) > shortPeriod {
		window = window[len(window)-shortPeriod:]
	}
	sma20 := talib.Mean(window)
	sma50 := sma20
	if v, ok := talib.LastSma(closes, longPeriod); ok {
		sma50 = v
	}

	return models.TimeframeAnalysis{
		Timeframe:         timeframe,
		Price:             price,
		SMA20:             sma20,
		SMA50:             sma50,
		Trend:             ClassifyTrend(sma20, sma50),
		VolatilityPercent: RangeVolatility(candles, volatilityWindow),
		PriceChangePct:    percentDiff(price, closes[len(closes)-2]),
		Candles:           len(candles),
	}, true
}

// ClassifyTrend compares the short and long averages; a gap above 2% is strong.
func ClassifyTrend(sma20, sma50 float64) models.Trend {
	switch {
	case sma20 > sma50*1.02:
		return models.TrendStrongUp
	case sma20 > sma50:
		return models.TrendUp
	case sma20 < sma50*0.98:
		return models.TrendStrongDown
	case sma20 < sma50:
		return models.TrendDown
	default:
		return models.TrendSideways
	}
}

func isUp(t models.Trend) bool   { return t == models.TrendUp || t == models.TrendStrongUp }
func isDown(t models.Trend) bool { return t == models.TrendDown || t == models.TrendStrongDown }

// DetermineRegime picks the overall regime. The daily trend dominates; the
// 4h trend is used only without daily data, the 1h only without either.
func DetermineRegime(timeframes map[string]models.TimeframeAnalysis) models.MarketRegime {
	if len(timeframes) == 0 {
		return models.RegimeUnknown
	}
	daily, hasDaily := timeframes["1d"]
	fourHour, has4h := timeframes["4h"]
	hourly, has1h := timeframes["1h"]

	switch {
	case hasDaily:
		if isUp(daily.Trend) {
			if has4h && isUp(fourHour.Trend) {
				return models.RegimeStrongBullish
			}
			return models.RegimeBullish
		}
		if isDown(daily.Trend) {
			if has4h && isDown(fourHour.Trend) {
				return models.RegimeStrongBearish
			}
			return models.RegimeBearish
		}
	case has4h:
		if isUp(fourHour.Trend) {
			return models.RegimeBullishIntraday
		}
		if isDown(fourHour.Trend) {
			return models.RegimeBearishIntraday
		}
	case has1h:
		if isUp(hourly.Trend) {
			return models.RegimeBullishShortTerm
		}
		if isDown(hourly.Trend) {
			return models.RegimeBearishShortTerm
		}
	}
	return models.RegimeNeutral
}

// SuggestStrategies lists the strategies suited to the current conditions.
func SuggestStrategies(regime models.MarketRegime, timeframes map[string]models.TimeframeAnalysis) []models.StrategySuggestion {
	var out []models.StrategySuggestion

	if regime == models.RegimeStrongBullish || regime == models.RegimeStrongBearish {
		out = append(out, models.StrategySuggestion{
			Strategy:   models.StrategyMACDSupertrend,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("Strong aligned trend across timeframes (%s)", regime),
		})
	}
	if tf, ok := timeframes["4h"]; ok && tf.VolatilityPercent > 3 && tf.VolatilityPercent < 15 {
		out = append(out, models.StrategySuggestion{
			Strategy:   models.StrategyMomentum,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("Healthy 4h volatility (%.1f%%)", tf.VolatilityPercent),
		})
	}
	if tf, ok := timeframes["1h"]; ok && tf.Trend == models.TrendSideways && tf.VolatilityPercent < 5 {
		out = append(out, models.StrategySuggestion{
			Strategy:   models.StrategyMeanReversion,
			Confidence: 0.8,
			Reason:     "Sideways 1h market with low volatility",
		})
	}
	fiveMin, has5m := timeframes["5m"]
	fifteenMin, has15m := timeframes["15m"]
	if has5m && has15m && fiveMin.VolatilityPercent > 2 && strings.Contains(string(fifteenMin.Trend), "TREND") {
		out = append(out, models.StrategySuggestion{
			Strategy:   models.StrategyScalping,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("5m volatility %.1f%% with a 15m trend", fiveMin.VolatilityPercent),
		})
	}
	return out
}

// BuildMarketContext analyses every timeframe with enough candles and derives
// the regime and strategy suggestions.
func BuildMarketContext(symbol string, candlesByTimeframe map[string][]models.Candle, now time.Time) models.MarketContext {
	ctx := models.MarketContext{
		Symbol:     symbol,
		Timeframes: make(map[string]models.TimeframeAnalysis, len(candlesByTimeframe)),
		CreatedAt:  now,
	}
	for tf, candles := range candlesByTimeframe {
		if analysis, ok := AnalyzeTimeframe(tf, candles); ok {
			ctx.Timeframes[tf] = analysis
		}
	}
	ctx.Regime = DetermineRegime(ctx.Timeframes)
	ctx.Suggestions = SuggestStrategies(ctx.Regime, ctx.Timeframes)
	return ctx
}

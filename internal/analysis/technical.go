package analysis

import (
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/talib"
)

const (
	shortPeriod      = 20
	longPeriod       = 50
	volatilityWindow = 20
)

// ComputeTechnicalContext derives the indicator snapshot attached to a signal
// from candles ordered oldest first.
func ComputeTechnicalContext(candles []models.Candle) models.TechnicalContext {
	if len(candles) == 0 {
		return models.TechnicalContext{}
	}
	closes := models.Closes(candles)
	price := closes[len(closes)-1]

	sma20, ok := talib.LastSma(closes, shortPeriod)
	if !ok {
		sma20 = price
	}
	sma50, ok := talib.LastSma(closes, longPeriod)
	if !ok {
		sma50 = sma20
	}

	return models.TechnicalContext{
		SMA20:             sma20,
		SMA50:             sma50,
		PriceVsSMA20:      percentDiff(price, sma20),
		PriceVsSMA50:      percentDiff(price, sma50),
		Change5:           lookbackChange(closes, 5),
		Change20:          lookbackChange(closes, 20),
		VolatilityPercent: RangeVolatility(candles, volatilityWindow),
	}
}

// RangeVolatility is (max high - min low) / min low * 100 over the newest
// window candles, or over all candles when fewer are available.
func RangeVolatility(candles []models.Candle, window int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) > window {
		candles = candles[len(candles)-window:]
	}
	high, low := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if low <= 0 {
		return 0
	}
	return (high - low) / low * 100
}

// lookbackChange is the percent move from the n-th newest close to the newest.
func lookbackChange(closes []float64, n int) float64 {
	if len(closes) < n {
		return 0
	}
	base := closes[len(closes)-n]
	if base == 0 {
		return 0
	}
	return (closes[len(closes)-1] - base) / base * 100
}

func percentDiff(value, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (value - reference) / reference * 100
}

package talib

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// Sma returns the simple moving average series. The result starts at the
// first full window, so it has len(prices)-period+1 values.
func Sma(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(c))
}

// LastSma returns the average of the newest period prices.
func LastSma(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	series := Sma(prices[len(prices)-period:], period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// Mean averages prices; an empty slice yields 0.
func Mean(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}

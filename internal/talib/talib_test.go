package talib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSma(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6}

	series := Sma(prices, 3)
	assert.Len(t, series, 4)
	assert.InDelta(t, 2.0, series[0], 1e-9)
	assert.InDelta(t, 5.0, series[3], 1e-9)

	assert.Nil(t, Sma(prices, 10))
	assert.Nil(t, Sma(prices, 0))
}

func TestLastSma(t *testing.T) {
	prices := []float64{10, 10, 10, 20, 30}

	v, ok := LastSma(prices, 2)
	assert.True(t, ok)
	assert.InDelta(t, 25.0, v, 1e-9)

	_, ok = LastSma(prices, 6)
	assert.False(t, ok)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
}

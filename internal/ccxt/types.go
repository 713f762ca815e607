package ccxt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/tradeloop/internal/models"
)

// OHLCV is one candle as served by the CCXT service.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

type OHLCVResponse struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	OHLCV     []OHLCV `json:"ohlcv"`
	Timestamp string  `json:"timestamp"`
}

// ErrorResponse is the body the service returns with non-2xx statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Candles converts the response into engine candles, oldest first.
func (r OHLCVResponse) Candles() []models.Candle {
	out := make([]models.Candle, 0, len(r.OHLCV))
	for _, c := range r.OHLCV {
		out = append(out, models.Candle{
			Timestamp: c.Timestamp,
			Open:      c.Open.InexactFloat64(),
			High:      c.High.InexactFloat64(),
			Low:       c.Low.InexactFloat64(),
			Close:     c.Close.InexactFloat64(),
			Volume:    c.Volume.InexactFloat64(),
		})
	}
	sortCandles(out)
	return out
}

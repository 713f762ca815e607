package models

import "time"

// Candle is one OHLCV bar. Sequences are ordered oldest first, newest last.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// LastClose returns the close of the newest candle, or 0 for an empty sequence.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Trend labels per timeframe.
type Trend string

const (
	TrendStrongUp   Trend = "STRONG_UPTREND"
	TrendUp         Trend = "UPTREND"
	TrendSideways   Trend = "SIDEWAYS"
	TrendDown       Trend = "DOWNTREND"
	TrendStrongDown Trend = "STRONG_DOWNTREND"
)

// MarketRegime is the overall market state derived from all timeframes.
type MarketRegime string

const (
	RegimeStrongBullish    MarketRegime = "STRONG_BULLISH"
	RegimeBullish          MarketRegime = "BULLISH"
	RegimeStrongBearish    MarketRegime = "STRONG_BEARISH"
	RegimeBearish          MarketRegime = "BEARISH"
	RegimeBullishIntraday  MarketRegime = "BULLISH_INTRADAY"
	RegimeBearishIntraday  MarketRegime = "BEARISH_INTRADAY"
	RegimeBullishShortTerm MarketRegime = "BULLISH_SHORT_TERM"
	RegimeBearishShortTerm MarketRegime = "BEARISH_SHORT_TERM"
	RegimeNeutral          MarketRegime = "NEUTRAL"
	RegimeUnknown          MarketRegime = "UNKNOWN"
)

// TimeframeAnalysis summarises one timeframe's candles.
type TimeframeAnalysis struct {
	Timeframe         string  `json:"timeframe"`
	Price             float64 `json:"price"`
	SMA20             float64 `json:"sma20"`
	SMA50             float64 `json:"sma50"`
	Trend             Trend   `json:"trend"`
	VolatilityPercent float64 `json:"volatility_percent"`
	PriceChangePct    float64 `json:"price_change_percent"`
	Candles           int     `json:"candles"`
}

// StrategySuggestion is a strategy the current regime favours.
type StrategySuggestion struct {
	Strategy   StrategyID `json:"strategy"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
}

// MarketContext is the multi-timeframe view of one symbol.
type MarketContext struct {
	Symbol      string                       `json:"symbol"`
	Timeframes  map[string]TimeframeAnalysis `json:"timeframes"`
	Regime      MarketRegime                 `json:"regime"`
	Suggestions []StrategySuggestion         `json:"suggestions"`
	CreatedAt   time.Time                    `json:"created_at"`
}

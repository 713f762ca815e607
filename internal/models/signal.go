package models

import (
	"fmt"
	"time"
)

// StrategyID identifies a strategy in the catalog. The set is closed.
type StrategyID string

const (
	StrategyScalping       StrategyID = "scalping"
	StrategyMomentum       StrategyID = "momentum"
	StrategyMeanReversion  StrategyID = "mean_reversion"
	StrategyMACDSupertrend StrategyID = "macd_supertrend"
)

// AllStrategies lists every known strategy in catalog order.
var AllStrategies = []StrategyID{
	StrategyScalping,
	StrategyMomentum,
	StrategyMeanReversion,
	StrategyMACDSupertrend,
}

func (id StrategyID) Valid() bool {
	switch id {
	case StrategyScalping, StrategyMomentum, StrategyMeanReversion, StrategyMACDSupertrend:
		return true
	}
	return false
}

// ParseStrategyID validates a raw strategy name.
func ParseStrategyID(raw string) (StrategyID, error) {
	id := StrategyID(raw)
	if !id.Valid() {
		return "", fmt.Errorf("unknown strategy %q", raw)
	}
	return id, nil
}

// Action is the side a signal recommends.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

type TrailingStop struct {
	ActivationPercent float64 `json:"activation_percent" yaml:"activation_percent" validate:"gt=0"`
	DistancePercent   float64 `json:"distance_percent" yaml:"distance_percent" validate:"gt=0"`
}

// RiskParams are copied from the strategy definition when a signal is built.
type RiskParams struct {
	StopLossPercent   float64       `json:"stop_loss_percent"`
	TakeProfitPercent float64       `json:"take_profit_percent"`
	MinHold           time.Duration `json:"min_hold"`
	MaxHold           time.Duration `json:"max_hold"`
	Trailing          *TrailingStop `json:"trailing,omitempty"`
}

// TechnicalContext is the indicator snapshot attached to a signal.
type TechnicalContext struct {
	SMA20             float64 `json:"sma20"`
	SMA50             float64 `json:"sma50"`
	PriceVsSMA20      float64 `json:"price_vs_sma20"`
	PriceVsSMA50      float64 `json:"price_vs_sma50"`
	Change5           float64 `json:"change_5"`
	Change20          float64 `json:"change_20"`
	VolatilityPercent float64 `json:"volatility_percent"`
}

// Signal is a candidate trade produced by one strategy for one symbol.
// Signals are not mutated after construction.
type Signal struct {
	Symbol        string           `json:"symbol"`
	Strategy      StrategyID       `json:"strategy"`
	StrategyName  string           `json:"strategy_name"`
	Description   string           `json:"description"`
	Action        Action           `json:"action"`
	Price         float64          `json:"price"`
	Timeframe     string           `json:"timeframe"`
	CreatedAt     time.Time        `json:"created_at"`
	Risk          RiskParams       `json:"risk"`
	Technical     TechnicalContext `json:"technical"`
	RecentCandles []Candle         `json:"recent_candles"`
	Priority      float64          `json:"priority"`
}

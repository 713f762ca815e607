package models

import (
	"errors"
	"time"
)

// ErrNoPerformanceData is returned when no closed trades exist to analyse.
var ErrNoPerformanceData = errors.New("no closed trades")

type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// Trade is one ledger row. Exit fields stay nil until the trade is closed.
type Trade struct {
	ID                   int64      `json:"id" db:"id"`
	Symbol               string     `json:"symbol" db:"symbol"`
	Strategy             StrategyID `json:"strategy" db:"strategy"`
	EntryPrice           float64    `json:"entry_price" db:"entry_price"`
	Quantity             float64    `json:"quantity" db:"quantity"`
	EntryTime            time.Time  `json:"entry_time" db:"entry_time"`
	ExitPrice            *float64   `json:"exit_price,omitempty" db:"exit_price"`
	ExitTime             *time.Time `json:"exit_time,omitempty" db:"exit_time"`
	PnLUSD               *float64   `json:"pnl_usd,omitempty" db:"pnl_usd"`
	PnLPercent           *float64   `json:"pnl_percent,omitempty" db:"pnl_percent"`
	Outcome              *Outcome   `json:"outcome,omitempty" db:"outcome"`
	AdvisoryConfidence   *float64   `json:"ai_confidence,omitempty" db:"ai_confidence"`
	AdvisoryReasoning    string     `json:"ai_reasoning,omitempty" db:"ai_reasoning"`
	AdvisoryPositionSize *float64   `json:"ai_position_size,omitempty" db:"ai_position_size"`
	AdvisoryStopLoss     *float64   `json:"ai_stop_loss,omitempty" db:"ai_stop_loss"`
	AdvisoryTakeProfit   *float64   `json:"ai_take_profit,omitempty" db:"ai_take_profit"`
	ExitReason           *string    `json:"exit_reason,omitempty" db:"exit_reason"`
	MarketRegime         string     `json:"market_regime" db:"market_regime"`
	VolatilityRegime     string     `json:"volatility_regime" db:"volatility_regime"`
}

// IsOpen reports whether the trade has not been closed yet.
func (t Trade) IsOpen() bool {
	return t.ExitTime == nil
}

// AdvisoryDecision carries the advisory model output captured at entry.
type AdvisoryDecision struct {
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	PositionSize     float64 `json:"position_size"`
	StopLoss         float64 `json:"stop_loss"`
	TakeProfit       float64 `json:"take_profit"`
	MarketRegime     string  `json:"market_regime"`
	VolatilityRegime string  `json:"volatility_regime"`
}

package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/strategy"
)

const quantityPrecision = 8

// PositionSize is the capital allocated to one entry.
type PositionSize struct {
	Percent     decimal.Decimal `json:"percent"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	QuoteAmount decimal.Decimal `json:"quote_amount"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// PositionSizer allocates a fixed share of capital per strategy, scaled by
// the loss guard's throttle when one is configured.
type PositionSizer struct {
	rules strategy.PositionRules
	guard *LossGuard
}

func NewPositionSizer(rules strategy.PositionRules, guard *LossGuard) *PositionSizer {
	return &PositionSizer{rules: rules, guard: guard}
}

// Size returns the quote amount and base quantity for an entry at price.
func (s *PositionSizer) Size(ctx context.Context, id models.StrategyID, capital, price decimal.Decimal) (PositionSize, error) {
	if !price.IsPositive() {
		return PositionSize{}, fmt.Errorf("price must be positive, got %s", price)
	}
	if capital.IsNegative() {
		return PositionSize{}, fmt.Errorf("capital must not be negative, got %s", capital)
	}
	pct, ok := s.rules.PositionSizePercent[id]
	if !ok {
		return PositionSize{}, fmt.Errorf("no position size configured for strategy %q", id)
	}

	multiplier := s.guard.Multiplier(ctx, id)
	percent := decimal.NewFromFloat(pct)
	quote := capital.Mul(percent).Div(decimal.NewFromInt(100)).Mul(multiplier)

	return PositionSize{
		Percent:     percent,
		Multiplier:  multiplier,
		QuoteAmount: quote,
		Quantity:    quote.Div(price).Truncate(quantityPrecision),
	}, nil
}

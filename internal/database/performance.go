package database

import (
	"github.com/shopspring/decimal"

	"github.com/irfndi/tradeloop/internal/models"
)

const (
	BucketLow    = "55-65"
	BucketMedium = "66-75"
	BucketHigh   = "76-100"
)

// confidenceBucket maps a 0-1 advisory confidence to its calibration bucket.
// Confidences below 55% fall outside every bucket.
func confidenceBucket(confidence float64) (string, bool) {
	pct := confidence * 100
	switch {
	case pct >= 55 && pct < 66:
		return BucketLow, true
	case pct >= 66 && pct < 76:
		return BucketMedium, true
	case pct >= 76 && pct <= 100:
		return BucketHigh, true
	default:
		return "", false
	}
}

func rate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

func summarize(t models.Trade) *models.TradeSummary {
	s := &models.TradeSummary{ID: t.ID, Symbol: t.Symbol, Strategy: t.Strategy}
	if t.PnLUSD != nil {
		s.PnLUSD = *t.PnLUSD
	}
	if t.PnLPercent != nil {
		s.PnLPercent = *t.PnLPercent
	}
	return s
}

// ComputePerformance derives a snapshot from closed trades. Open trades are
// ignored; no closed trades yields models.ErrNoPerformanceData.
func ComputePerformance(trades []models.Trade) (*models.PerformanceSnapshot, error) {
	snap := &models.PerformanceSnapshot{
		ByStrategy: make(map[models.StrategyID]models.StrategyPerformance),
		Confidence: map[string]models.ConfidenceBucket{
			BucketLow:    {},
			BucketMedium: {},
			BucketHigh:   {},
		},
	}

	var (
		winPct, lossPct decimal.Decimal
		winUSD, lossUSD decimal.Decimal
		total           decimal.Decimal
		best, worst     *models.Trade
	)

	for i := range trades {
		t := trades[i]
		if t.IsOpen() || t.Outcome == nil {
			continue
		}
		snap.TotalTrades++

		pnl := decimal.Zero
		if t.PnLUSD != nil {
			pnl = decimal.NewFromFloat(*t.PnLUSD)
		}
		pct := decimal.Zero
		if t.PnLPercent != nil {
			pct = decimal.NewFromFloat(*t.PnLPercent)
		}
		total = total.Add(pnl)

		won := *t.Outcome == models.OutcomeWin
		if won {
			snap.Wins++
			winPct = winPct.Add(pct)
			winUSD = winUSD.Add(pnl)
		} else {
			snap.Losses++
			lossPct = lossPct.Add(pct)
			lossUSD = lossUSD.Add(pnl)
		}

		sp := snap.ByStrategy[t.Strategy]
		sp.Trades++
		sp.PnLUSD += pnl.InexactFloat64()
		if won {
			sp.Wins++
		}
		snap.ByStrategy[t.Strategy] = sp

		if t.AdvisoryConfidence != nil {
			if key, ok := confidenceBucket(*t.AdvisoryConfidence); ok {
				b := snap.Confidence[key]
				b.Total++
				if won {
					b.Wins++
				}
				snap.Confidence[key] = b
			}
		}

		if best == nil || pct.GreaterThan(decimal.NewFromFloat(pnlPercent(*best))) {
			best = &trades[i]
		}
		if worst == nil || pct.LessThan(decimal.NewFromFloat(pnlPercent(*worst))) {
			worst = &trades[i]
		}
	}

	if snap.TotalTrades == 0 {
		return nil, models.ErrNoPerformanceData
	}

	snap.WinRate = rate(snap.Wins, snap.TotalTrades)
	if snap.Wins > 0 {
		snap.AvgWinPercent = winPct.Div(decimal.NewFromInt(int64(snap.Wins))).InexactFloat64()
	}
	if snap.Losses > 0 {
		snap.AvgLossPercent = lossPct.Div(decimal.NewFromInt(int64(snap.Losses))).InexactFloat64()
	}
	if !lossUSD.IsZero() {
		snap.ProfitFactor = winUSD.Div(lossUSD.Abs()).InexactFloat64()
	}
	snap.TotalPnLUSD = total.InexactFloat64()

	for id, sp := range snap.ByStrategy {
		sp.WinRate = rate(sp.Wins, sp.Trades)
		snap.ByStrategy[id] = sp
	}
	for key, b := range snap.Confidence {
		b.WinRate = rate(b.Wins, b.Total)
		snap.Confidence[key] = b
	}
	snap.BestTrade = summarize(*best)
	snap.WorstTrade = summarize(*worst)
	return snap, nil
}

func pnlPercent(t models.Trade) float64 {
	if t.PnLPercent == nil {
		return 0
	}
	return *t.PnLPercent
}

package models

// StrategyPerformance aggregates closed trades for a single strategy.
type StrategyPerformance struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	PnLUSD  float64 `json:"pnl_usd"`
}

// ConfidenceBucket measures how often trades at a given advisory confidence won.
type ConfidenceBucket struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// TradeSummary identifies a notable trade in a snapshot.
type TradeSummary struct {
	ID         int64      `json:"id"`
	Symbol     string     `json:"symbol"`
	Strategy   StrategyID `json:"strategy"`
	PnLUSD     float64    `json:"pnl_usd"`
	PnLPercent float64    `json:"pnl_percent"`
}

// PerformanceSnapshot is derived from the most recent closed trades and never stored.
type PerformanceSnapshot struct {
	TotalTrades    int                                `json:"total_trades"`
	Wins           int                                `json:"wins"`
	Losses         int                                `json:"losses"`
	WinRate        float64                            `json:"win_rate"`
	AvgWinPercent  float64                            `json:"avg_win_percent"`
	AvgLossPercent float64                            `json:"avg_loss_percent"`
	ProfitFactor   float64                            `json:"profit_factor"`
	TotalPnLUSD    float64                            `json:"total_pnl_usd"`
	ByStrategy     map[StrategyID]StrategyPerformance `json:"by_strategy"`
	Confidence     map[string]ConfidenceBucket        `json:"confidence_calibration"`
	BestTrade      *TradeSummary                      `json:"best_trade,omitempty"`
	WorstTrade     *TradeSummary                      `json:"worst_trade,omitempty"`
}

// DailyPerformance aggregates trades closed on one calendar day.
type DailyPerformance struct {
	Date        string  `json:"date"`
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnLUSD float64 `json:"total_pnl_usd"`
}

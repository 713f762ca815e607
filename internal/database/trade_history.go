package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/models"
)

var (
	// ErrTradeNotFound is returned for unknown ids and for trades already closed.
	ErrTradeNotFound = errors.New("trade not found or already closed")
	// ErrNoClosedTrades is returned by performance queries over an empty ledger.
	ErrNoClosedTrades = models.ErrNoPerformanceData
)

const (
	defaultPerformanceLimit = 50
	unknownRegime           = "UNKNOWN"
)

const tradeColumns = `id, symbol, strategy, entry_price, quantity, entry_time,
	exit_price, exit_time, pnl_usd, pnl_percent, outcome,
	ai_confidence, ai_reasoning, ai_position_size, ai_stop_loss, ai_take_profit,
	exit_reason, market_regime, volatility_regime`

const openTradeColumns = `id, symbol, strategy, entry_price, quantity, entry_time,
	ai_confidence, ai_reasoning, ai_position_size, ai_stop_loss, ai_take_profit,
	market_regime, volatility_regime`

const createTradesTable = `CREATE TABLE IF NOT EXISTS trades (
	id %s,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	entry_price %[2]s NOT NULL,
	quantity %[2]s NOT NULL,
	entry_time %[3]s NOT NULL,
	exit_price %[2]s,
	exit_time %[3]s,
	pnl_usd %[2]s,
	pnl_percent %[2]s,
	outcome TEXT CHECK (outcome IN ('WIN', 'LOSS')),
	ai_confidence %[2]s,
	ai_reasoning TEXT,
	ai_position_size %[2]s,
	ai_stop_loss %[2]s,
	ai_take_profit %[2]s,
	exit_reason TEXT,
	market_regime TEXT NOT NULL DEFAULT 'UNKNOWN',
	volatility_regime TEXT NOT NULL DEFAULT 'UNKNOWN',
	CHECK ((exit_time IS NULL) = (outcome IS NULL))
)`

var tradeIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_outcome ON trades(outcome)`,
}

// EntryRequest opens a trade. Advisory is optional.
type EntryRequest struct {
	Symbol     string
	Strategy   models.StrategyID
	EntryPrice float64
	Quantity   float64
	Advisory   *models.AdvisoryDecision
}

// TradeClosedListener is called after an exit has been committed.
type TradeClosedListener func(ctx context.Context, trade models.Trade)

// TradeHistoryStore is the trade ledger. Every trade is written once on entry
// and once on exit; rows are never deleted.
type TradeHistoryStore struct {
	db      DBPool
	dialect Dialect
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	mu        sync.RWMutex
	listeners []TradeClosedListener
}

func NewTradeHistoryStore(db DBPool, dialect Dialect, logger *zap.Logger, recorder *metrics.Recorder) *TradeHistoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeHistoryStore{
		db:      db,
		dialect: dialect,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

// OnTradeClosed registers a listener for committed exits.
func (s *TradeHistoryStore) OnTradeClosed(fn TradeClosedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *TradeHistoryStore) rebind(query string) string {
	if s.dialect == DialectPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// EnsureSchema creates the trades table and its indexes if missing.
func (s *TradeHistoryStore) EnsureSchema(ctx context.Context) error {
	idType, realType, timeType := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP"
	if s.dialect == DialectPostgres {
		idType, realType, timeType = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ"
	}

	statements := append([]string{fmt.Sprintf(createTradesTable, idType, realType, timeType)}, tradeIndexes...)
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create trades schema: %w", err)
		}
	}
	return nil
}

// RecordEntry inserts an open trade and returns its id.
func (s *TradeHistoryStore) RecordEntry(ctx context.Context, req EntryRequest) (int64, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	if !req.Strategy.Valid() {
		return 0, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
	if req.EntryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %v", req.EntryPrice)
	}
	if req.Quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %v", req.Quantity)
	}

	var confidence, size, stop, target *float64
	var reasoning *string
	marketRegime, volatilityRegime := unknownRegime, unknownRegime
	if adv := req.Advisory; adv != nil {
		confidence, size, stop, target = &adv.Confidence, &adv.PositionSize, &adv.StopLoss, &adv.TakeProfit
		reasoning = &adv.Reasoning
		if adv.MarketRegime != "" {
			marketRegime = adv.MarketRegime
		}
		if adv.VolatilityRegime != "" {
			volatilityRegime = adv.VolatilityRegime
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var id int64
	err = tx.QueryRow(ctx, s.rebind(`INSERT INTO trades (
		symbol, strategy, entry_price, quantity, entry_time,
		ai_confidence, ai_reasoning, ai_position_size, ai_stop_loss, ai_take_profit,
		market_regime, volatility_regime
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		req.Symbol, string(req.Strategy), req.EntryPrice, req.Quantity, s.now().UTC(),
		confidence, reasoning, size, stop, target,
		marketRegime, volatilityRegime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit trade entry: %w", err)
	}
	committed = true

	s.logger.Info("Trade entry recorded",
		zap.Int64("trade_id", id),
		zap.String("symbol", req.Symbol),
		zap.String("strategy", string(req.Strategy)),
		zap.Float64("entry_price", req.EntryPrice),
		zap.Float64("quantity", req.Quantity))
	return id, nil
}

// RecordExit closes an open trade, fixing its P&L and outcome in one update.
// Unknown or already closed ids return ErrTradeNotFound and write nothing.
func (s *TradeHistoryStore) RecordExit(ctx context.Context, id int64, exitPrice float64, reason string) (*models.Trade, error) {
	if exitPrice <= 0 {
		return nil, fmt.Errorf("exit price must be positive, got %v", exitPrice)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	trade, err := scanOpenTrade(tx.QueryRow(ctx,
		s.rebind(`SELECT `+openTradeColumns+` FROM trades WHERE id = ? AND exit_time IS NULL`), id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", ErrTradeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %d: %w", id, err)
	}

	entry := decimal.NewFromFloat(trade.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	move := exit.Sub(entry)
	pnl := move.Mul(decimal.NewFromFloat(trade.Quantity)).InexactFloat64()
	pnlPct := move.Div(entry).Mul(decimal.NewFromInt(100)).InexactFloat64()
	outcome := models.OutcomeLoss
	if pnl > 0 {
		outcome = models.OutcomeWin
	}
	exitTime := s.now().UTC()

	res, err := tx.Exec(ctx, s.rebind(`UPDATE trades
		SET exit_price = ?, exit_time = ?, pnl_usd = ?, pnl_percent = ?, outcome = ?, exit_reason = ?
		WHERE id = ? AND exit_time IS NULL`),
		exitPrice, exitTime, pnl, pnlPct, string(outcome), reason, id)
	if err != nil {
		return nil, fmt.Errorf("failed to close trade %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to close trade %d: %w", id, err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrTradeNotFound, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit trade exit: %w", err)
	}
	committed = true

	trade.ExitPrice = &exitPrice
	trade.ExitTime = &exitTime
	trade.PnLUSD = &pnl
	trade.PnLPercent = &pnlPct
	trade.Outcome = &outcome
	trade.ExitReason = &reason

	s.metrics.RecordTradeClosed(string(outcome))
	s.logger.Info("Trade exit recorded",
		zap.Int64("trade_id", id),
		zap.String("symbol", trade.Symbol),
		zap.String("outcome", string(outcome)),
		zap.Float64("pnl_usd", pnl),
		zap.Float64("pnl_percent", pnlPct),
		zap.String("exit_reason", reason))

	s.notifyClosed(ctx, *trade)
	return trade, nil
}

func (s *TradeHistoryStore) notifyClosed(ctx context.Context, trade models.Trade) {
	s.mu.RLock()
	listeners := append([]TradeClosedListener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Trade closed listener panicked",
						zap.Int64("trade_id", trade.ID),
						zap.Any("panic", r))
				}
			}()
			fn(ctx, trade)
		}()
	}
}

// GetTrade loads one trade by id.
func (s *TradeHistoryStore) GetTrade(ctx context.Context, id int64) (*models.Trade, error) {
	trade, err := scanTrade(s.db.QueryRow(ctx, s.rebind(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", ErrTradeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %d: %w", id, err)
	}
	return trade, nil
}

// GetOpenTrades lists open trades oldest first.
func (s *TradeHistoryStore) GetOpenTrades(ctx context.Context) ([]models.Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE exit_time IS NULL ORDER BY entry_time, id`)
}

func (s *TradeHistoryStore) GetOpenTradesCount(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM trades WHERE exit_time IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open trades: %w", err)
	}
	return int(count), nil
}

// GetRecentPerformance analyses the last limit closed trades by exit time.
func (s *TradeHistoryStore) GetRecentPerformance(ctx context.Context, limit int) (*models.PerformanceSnapshot, error) {
	if limit <= 0 {
		limit = defaultPerformanceLimit
	}
	trades, err := s.queryTrades(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE exit_time IS NOT NULL ORDER BY exit_time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	snap, err := ComputePerformance(trades)
	if errors.Is(err, ErrNoClosedTrades) {
		s.logger.Warn("No closed trades found for performance analysis")
	}
	return snap, err
}

// GetTodaysPerformance aggregates trades closed on the current UTC day.
func (s *TradeHistoryStore) GetTodaysPerformance(ctx context.Context) (*models.DailyPerformance, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows, err := s.db.Query(ctx, s.rebind(`SELECT outcome, COUNT(*), COALESCE(SUM(pnl_usd), 0)
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		GROUP BY outcome`), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's performance: %w", err)
	}
	defer rows.Close()

	daily := &models.DailyPerformance{Date: start.Format("2006-01-02")}
	for rows.Next() {
		var (
			outcome string
			count   int64
			pnl     float64
		)
		if err := rows.Scan(&outcome, &count, &pnl); err != nil {
			return nil, fmt.Errorf("failed to scan today's performance: %w", err)
		}
		switch models.Outcome(outcome) {
		case models.OutcomeWin:
			daily.Wins = int(count)
		case models.OutcomeLoss:
			daily.Losses = int(count)
		}
		daily.TotalPnLUSD += pnl
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read today's performance: %w", err)
	}

	daily.TotalTrades = daily.Wins + daily.Losses
	daily.WinRate = rate(daily.Wins, daily.TotalTrades)
	return daily, nil
}

func (s *TradeHistoryStore) queryTrades(ctx context.Context, query string, args ...any) ([]models.Trade, error) {
	rows, err := s.db.Query(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row Row) (*models.Trade, error) {
	var (
		t                  models.Trade
		strategy           string
		outcome, reasoning *string
	)
	err := row.Scan(
		&t.ID, &t.Symbol, &strategy, &t.EntryPrice, &t.Quantity, &t.EntryTime,
		&t.ExitPrice, &t.ExitTime, &t.PnLUSD, &t.PnLPercent, &outcome,
		&t.AdvisoryConfidence, &reasoning, &t.AdvisoryPositionSize, &t.AdvisoryStopLoss, &t.AdvisoryTakeProfit,
		&t.ExitReason, &t.MarketRegime, &t.VolatilityRegime,
	)
	if err != nil {
		return nil, err
	}
	t.Strategy = models.StrategyID(strategy)
	if outcome != nil {
		o := models.Outcome(*outcome)
		t.Outcome = &o
	}
	if reasoning != nil {
		t.AdvisoryReasoning = *reasoning
	}
	return &t, nil
}

func scanOpenTrade(row Row) (*models.Trade, error) {
	var (
		t         models.Trade
		strategy  string
		reasoning *string
	)
	err := row.Scan(
		&t.ID, &t.Symbol, &strategy, &t.EntryPrice, &t.Quantity, &t.EntryTime,
		&t.AdvisoryConfidence, &reasoning, &t.AdvisoryPositionSize, &t.AdvisoryStopLoss, &t.AdvisoryTakeProfit,
		&t.MarketRegime, &t.VolatilityRegime,
	)
	if err != nil {
		return nil, err
	}
	t.Strategy = models.StrategyID(strategy)
	if reasoning != nil {
		t.AdvisoryReasoning = *reasoning
	}
	return &t, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

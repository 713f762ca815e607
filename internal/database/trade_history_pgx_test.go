package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeloop/internal/models"
)

func setupPgxStore(t *testing.T) (*TradeHistoryStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewTradeHistoryStore(WrapPgxPool(mock), DialectPostgres, nil, nil)
	store.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestTradeHistoryPostgres_EnsureSchema(t *testing.T) {
	store, mock := setupPgxStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trades \\(\\s+id BIGSERIAL PRIMARY KEY").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	for range tradeIndexes {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeHistoryPostgres_RecordEntry(t *testing.T) {
	store, mock := setupPgxStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT INTO trades .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11, \$12\) RETURNING id`).
		WithArgs("BTC/USDT", "momentum", 65000.0, 0.5, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"UNKNOWN", "UNKNOWN").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	id, err := store.RecordEntry(context.Background(), entry("BTC/USDT", models.StrategyMomentum, 65000, 0.5))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeHistoryPostgres_RecordEntryRollsBackOnError(t *testing.T) {
	store, mock := setupPgxStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO trades").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.RecordEntry(context.Background(), entry("BTC/USDT", models.StrategyMomentum, 65000, 0.5))
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeHistoryPostgres_RecordExit(t *testing.T) {
	store, mock := setupPgxStore(t)

	confidence, size, stop, target := 0.8, 10.0, 2.0, 3.5
	reasoning := "breakout"
	entryTime := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FROM trades WHERE id = \$1 AND exit_time IS NULL`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "symbol", "strategy", "entry_price", "quantity", "entry_time",
			"ai_confidence", "ai_reasoning", "ai_position_size", "ai_stop_loss", "ai_take_profit",
			"market_regime", "volatility_regime",
		}).AddRow(int64(7), "BTC/USDT", "momentum", 100.0, 2.0, entryTime,
			&confidence, &reasoning, &size, &stop, &target,
			"BULLISH", "LOW"))
	mock.ExpectExec(`(?s)UPDATE trades\s+SET .* WHERE id = \$7 AND exit_time IS NULL`).
		WithArgs(110.0, pgxmock.AnyArg(), 20.0, 10.0, "WIN", "TAKE_PROFIT", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	trade, err := store.RecordExit(context.Background(), 7, 110, "TAKE_PROFIT")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWin, *trade.Outcome)
	assert.Equal(t, "breakout", trade.AdvisoryReasoning)
	assert.Equal(t, 0.8, *trade.AdvisoryConfidence)
	assert.Equal(t, "BULLISH", trade.MarketRegime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeHistoryPostgres_RecordExitNotFound(t *testing.T) {
	store, mock := setupPgxStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FROM trades WHERE id = \$1 AND exit_time IS NULL`).
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.RecordExit(context.Background(), 99, 110, "MANUAL")
	assert.True(t, errors.Is(err, ErrTradeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeHistoryPostgres_GetOpenTradesCount(t *testing.T) {
	store, mock := setupPgxStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM trades WHERE exit_time IS NULL`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := store.GetOpenTradesCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

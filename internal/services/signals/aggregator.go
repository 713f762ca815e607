package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/analysis"
	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/strategy"
)

// ErrInsufficientData marks a strategy skipped for lack of candle history.
var ErrInsufficientData = errors.New("insufficient candle history")

// EvaluationRequest is sent to the strategy evaluator for one side.
type EvaluationRequest struct {
	Symbol     string              `json:"symbol"`
	Price      float64             `json:"price"`
	Strategies []models.StrategyID `json:"strategies"`
	Side       models.Action       `json:"side"`
	Candles    []models.Candle     `json:"candles"`
}

// Evaluator decides whether a strategy's entry conditions hold.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (bool, error)
}

// CandleSource serves candles per symbol and timeframe; failures yield an empty slice.
type CandleSource interface {
	Get(ctx context.Context, symbol, timeframe string) []models.Candle
}

type Config struct {
	MinCandles      int
	RecentCandles   int
	EvaluateTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinCandles:      20,
		RecentCandles:   10,
		EvaluateTimeout: 10 * time.Second,
	}
}

// Aggregator turns due strategies into signals for a symbol.
type Aggregator struct {
	catalog   *strategy.Catalog
	candles   CandleSource
	evaluator Evaluator
	tracker   *strategy.CheckTracker
	config    Config
	logger    *zap.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

func NewAggregator(
	catalog *strategy.Catalog,
	candles CandleSource,
	evaluator Evaluator,
	tracker *strategy.CheckTracker,
	config Config,
	logger *zap.Logger,
	recorder *metrics.Recorder,
) *Aggregator {
	if tracker == nil {
		tracker = strategy.NewCheckTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinCandles <= 0 {
		config.MinCandles = DefaultConfig().MinCandles
	}
	if config.RecentCandles <= 0 {
		config.RecentCandles = DefaultConfig().RecentCandles
	}
	return &Aggregator{
		catalog:   catalog,
		candles:   candles,
		evaluator: evaluator,
		tracker:   tracker,
		config:    config,
		logger:    logger,
		metrics:   recorder,
		now:       time.Now,
	}
}

// CollectSignals evaluates every due strategy for symbol and returns the
// signals that fired, in evaluation order. A strategy is marked checked only
// once its evaluation completes; failures leave it due for the next cycle.
func (a *Aggregator) CollectSignals(ctx context.Context, symbol string, strategies []models.StrategyID) []models.Signal {
	return a.CollectSignalsAt(ctx, symbol, strategies, a.now())
}

// CollectSignalsAt is CollectSignals with the check time supplied by the
// caller. Scheduled loops pass the tick time so that cycle latency never
// shortens the gap between two checks.
func (a *Aggregator) CollectSignalsAt(ctx context.Context, symbol string, strategies []models.StrategyID, now time.Time) []models.Signal {
	due := a.tracker.Due(a.catalog, symbol, strategies, now)

	var out []models.Signal
	for _, id := range due {
		cfg, _ := a.catalog.Get(id)
		logger := a.logger.With(zap.String("symbol", symbol), zap.String("strategy", string(id)))

		sig, err := a.evaluateStrategy(ctx, symbol, cfg, now)
		switch {
		case errors.Is(err, ErrInsufficientData):
			a.metrics.RecordEvaluation(string(id), "insufficient_data")
			logger.Warn("Skipping strategy", zap.Error(err))
			continue
		case err != nil:
			a.metrics.RecordEvaluation(string(id), "error")
			logger.Error("Strategy evaluation failed", zap.Error(err))
			continue
		}

		a.tracker.MarkChecked(symbol, id, now)
		if sig == nil {
			a.metrics.RecordEvaluation(string(id), "none")
			continue
		}

		a.metrics.RecordEvaluation(string(id), "signal")
		a.metrics.RecordSignal(string(id), string(sig.Action))
		logger.Info("Signal detected",
			zap.String("action", string(sig.Action)),
			zap.Float64("price", sig.Price),
			zap.String("timeframe", sig.Timeframe))
		out = append(out, *sig)
	}
	return out
}

func (a *Aggregator) evaluateStrategy(ctx context.Context, symbol string, cfg strategy.Config, now time.Time) (*models.Signal, error) {
	candles := a.candles.Get(ctx, symbol, cfg.Timeframe)
	if len(candles) < a.config.MinCandles {
		return nil, fmt.Errorf("%w: have %d %s candles, need %d", ErrInsufficientData, len(candles), cfg.Timeframe, a.config.MinCandles)
	}
	price := models.LastClose(candles)

	// BUY is checked first; a SELL is only considered when BUY did not fire.
	for _, side := range []models.Action{models.ActionBuy, models.ActionSell} {
		fired, err := a.evaluate(ctx, EvaluationRequest{
			Symbol:     symbol,
			Price:      price,
			Strategies: []models.StrategyID{cfg.ID},
			Side:       side,
			Candles:    candles,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s side: %w", side, err)
		}
		if fired {
			sig := a.buildSignal(symbol, cfg, side, price, candles, now)
			return &sig, nil
		}
	}
	return nil, nil
}

func (a *Aggregator) evaluate(ctx context.Context, req EvaluationRequest) (fired bool, err error) {
	if a.evaluator == nil {
		return false, fmt.Errorf("no evaluator configured")
	}
	if a.config.EvaluateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.EvaluateTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			fired, err = false, fmt.Errorf("evaluator panicked: %v", r)
		}
	}()
	return a.evaluator.Evaluate(ctx, req)
}

func (a *Aggregator) buildSignal(symbol string, cfg strategy.Config, side models.Action, price float64, candles []models.Candle, now time.Time) models.Signal {
	recent := candles
	if len(recent) > a.config.RecentCandles {
		recent = recent[len(recent)-a.config.RecentCandles:]
	}
	recentCopy := make([]models.Candle, len(recent))
	copy(recentCopy, recent)

	return models.Signal{
		Symbol:        symbol,
		Strategy:      cfg.ID,
		StrategyName:  cfg.Name,
		Description:   cfg.Description,
		Action:        side,
		Price:         price,
		Timeframe:     cfg.Timeframe,
		CreatedAt:     now,
		Risk:          cfg.RiskParams(),
		Technical:     analysis.ComputeTechnicalContext(candles),
		RecentCandles: recentCopy,
	}
}

// MarketContext analyses every timeframe the enabled strategies use.
func (a *Aggregator) MarketContext(ctx context.Context, symbol string) models.MarketContext {
	byTimeframe := make(map[string][]models.Candle)
	for _, tf := range a.catalog.Timeframes() {
		if candles := a.candles.Get(ctx, symbol, tf); len(candles) > 0 {
			byTimeframe[tf] = candles
		}
	}
	return analysis.BuildMarketContext(symbol, byTimeframe, a.now())
}

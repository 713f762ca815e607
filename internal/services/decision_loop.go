package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/services/ensemble"
	"github.com/irfndi/tradeloop/internal/services/risk"
	"github.com/irfndi/tradeloop/internal/services/signals"
)

const decisionLockKey = "lock:decision_cycle"

// SignalCollector produces the signals of strategies due at a given time for a symbol.
type SignalCollector interface {
	CollectSignalsAt(ctx context.Context, symbol string, strategies []models.StrategyID, at time.Time) []models.Signal
	MarketContext(ctx context.Context, symbol string) models.MarketContext
}

// PositionSource lists the trades currently open.
type PositionSource interface {
	GetOpenTrades(ctx context.Context) ([]models.Trade, error)
}

// WeightSource exposes the current ensemble weights.
type WeightSource interface {
	Weights() ensemble.Weights
}

// CycleLocker keeps a cycle from running in two processes at once.
type CycleLocker interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// Decision is what the downstream collaborator receives for one symbol.
type Decision struct {
	CycleID string               `json:"cycle_id"`
	Symbol  string               `json:"symbol"`
	Signals []models.Signal      `json:"signals"`
	Weights ensemble.Weights     `json:"weights"`
	Market  models.MarketContext `json:"market"`
	// Size is the suggested size of the primary signal when sizing is configured.
	Size *risk.PositionSize `json:"size,omitempty"`
}

// Primary is the highest ranked signal, if any.
func (d Decision) Primary() (models.Signal, bool) {
	if len(d.Signals) == 0 {
		return models.Signal{}, false
	}
	return d.Signals[0], true
}

// Decider consumes filtered, ranked signals together with the ensemble weights.
type Decider interface {
	Decide(ctx context.Context, decision Decision) error
}

type DecisionLoopConfig struct {
	Symbols        []string
	Strategies     []models.StrategyID
	MaxConcurrency int
	// Capital is the quote balance primary signals are sized against.
	Capital decimal.Decimal
	// LockTTL bounds how long a crashed process can hold the cycle lock.
	LockTTL time.Duration
}

// CycleResult summarises one decision cycle.
type CycleResult struct {
	ID        string           `json:"id"`
	At        time.Time        `json:"at"`
	Signals   int              `json:"signals"`
	Accepted  []models.Signal  `json:"accepted"`
	Rejected  []risk.Rejection `json:"rejected"`
	Overrides []risk.Override  `json:"overrides,omitempty"`
	Failures  int              `json:"failures"`
	Skipped   bool             `json:"skipped"`
	Duration  time.Duration    `json:"duration"`
}

// DecisionLoop runs the collect, rank, filter and decide pipeline for every
// configured symbol once per tick.
type DecisionLoop struct {
	config    DecisionLoopConfig
	collector SignalCollector
	positions PositionSource
	engine    *risk.PositionRuleEngine
	guard     *risk.LossGuard
	weights   WeightSource
	decider   Decider
	locker    CycleLocker
	sizer     *risk.PositionSizer
	logger    *zap.Logger
	metrics   *metrics.Recorder

	lastMu sync.RWMutex
	last   *CycleResult
}

func NewDecisionLoop(
	config DecisionLoopConfig,
	collector SignalCollector,
	positions PositionSource,
	engine *risk.PositionRuleEngine,
	guard *risk.LossGuard,
	weights WeightSource,
	decider Decider,
	logger *zap.Logger,
	recorder *metrics.Recorder,
) *DecisionLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if config.LockTTL <= 0 {
		config.LockTTL = time.Minute
	}
	if len(config.Strategies) == 0 {
		config.Strategies = models.AllStrategies
	}
	return &DecisionLoop{
		config:    config,
		collector: collector,
		positions: positions,
		engine:    engine,
		guard:     guard,
		weights:   weights,
		decider:   decider,
		logger:    logger.With(zap.String("component", "decision_loop")),
		metrics:   recorder,
	}
}

// WithLocker makes cycles exclusive across processes sharing the locker.
func (l *DecisionLoop) WithLocker(locker CycleLocker) *DecisionLoop {
	l.locker = locker
	return l
}

// WithSizer attaches a suggested position size to each decision.
func (l *DecisionLoop) WithSizer(sizer *risk.PositionSizer) *DecisionLoop {
	l.sizer = sizer
	return l
}

// Run executes a cycle immediately and then on every tick until ctx is done.
// Each cycle checks strategies at its scheduled time, start plus a whole
// number of intervals, so a due strategy is evaluated on every tick
// whatever the latency of the previous cycle.
func (l *DecisionLoop) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("decision loop interval must be positive")
	}
	l.logger.Info("Decision loop started",
		zap.Strings("symbols", l.config.Symbols),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	at := start
	for {
		if _, err := l.runCycle(ctx, at); err != nil {
			l.logger.Error("Decision cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case tick := <-ticker.C:
			at = scheduledTick(start, tick, interval)
		}
		if ctx.Err() != nil {
			l.logger.Info("Decision loop stopped")
			return nil
		}
	}
}

// scheduledTick snaps a ticker delivery to the nearest start + n*interval.
func scheduledTick(start, tick time.Time, interval time.Duration) time.Time {
	n := (tick.Sub(start) + interval/2) / interval
	return start.Add(n * interval)
}

// LastResult returns the most recent completed cycle.
func (l *DecisionLoop) LastResult() (CycleResult, bool) {
	l.lastMu.RLock()
	defer l.lastMu.RUnlock()
	if l.last == nil {
		return CycleResult{}, false
	}
	return *l.last, true
}

func (l *DecisionLoop) setLast(result CycleResult) {
	l.lastMu.Lock()
	defer l.lastMu.Unlock()
	l.last = &result
}

type symbolSignals struct {
	symbol  string
	signals []models.Signal
}

// RunCycle runs one pass over all symbols, checking strategies as of now.
// Per symbol failures are logged and counted; only a failure to read open
// positions aborts the cycle.
func (l *DecisionLoop) RunCycle(ctx context.Context) (CycleResult, error) {
	return l.runCycle(ctx, time.Now())
}

func (l *DecisionLoop) runCycle(ctx context.Context, at time.Time) (result CycleResult, err error) {
	start := time.Now()
	result.ID = uuid.NewString()
	result.At = at
	logger := l.logger.With(zap.String("cycle_id", result.ID))
	defer func() {
		result.Duration = time.Since(start)
		l.metrics.ObserveCycle(result.Duration.Seconds())
		if err == nil && !result.Skipped {
			l.setLast(result)
		}
	}()

	if l.locker != nil {
		token, ok, err := l.locker.AcquireLock(ctx, decisionLockKey, l.config.LockTTL)
		if err != nil {
			return result, fmt.Errorf("failed to acquire cycle lock: %w", err)
		}
		if !ok {
			logger.Debug("Decision cycle already running elsewhere")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if _, err := l.locker.ReleaseLock(context.WithoutCancel(ctx), decisionLockKey, token); err != nil {
				logger.Warn("Failed to release cycle lock", zap.Error(err))
			}
		}()
	}

	trades, err := l.positions.GetOpenTrades(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load open positions: %w", err)
	}
	positions := risk.PositionsFromTrades(trades)
	strategies := l.guard.Allowed(ctx, l.config.Strategies)
	if len(strategies) == 0 {
		logger.Info("All strategies paused, skipping cycle")
		return result, nil
	}

	collected, failures := l.collect(ctx, logger, strategies, at)
	result.Failures += failures

	var all []models.Signal
	for _, c := range collected {
		all = append(all, c.signals...)
	}
	result.Signals = len(all)
	ranked := signals.Prioritize(all, l.engine.Rules())
	filtered := l.engine.Filter(ranked, positions)
	result.Accepted = filtered.Accepted
	result.Rejected = filtered.Rejected
	result.Overrides = filtered.Overrides

	result.Failures += l.decide(ctx, logger, result.ID, filtered.Accepted)

	logger.Info("Decision cycle completed",
		zap.Int("signals", result.Signals),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("failures", result.Failures),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (l *DecisionLoop) collect(ctx context.Context, logger *zap.Logger, strategies []models.StrategyID, at time.Time) ([]symbolSignals, int) {
	var (
		mu       sync.Mutex
		out      = make([]symbolSignals, 0, len(l.config.Symbols))
		failures int
	)

	var g errgroup.Group
	g.SetLimit(l.config.MaxConcurrency)
	for _, symbol := range l.config.Symbols {
		g.Go(func() error {
			sigs, err := l.safeCollect(ctx, symbol, strategies, at)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logger.Error("Signal collection failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			out = append(out, symbolSignals{symbol: symbol, signals: sigs})
			return nil
		})
	}
	_ = g.Wait()

	// keep symbol configuration order regardless of completion order
	order := make(map[string]int, len(l.config.Symbols))
	for i, s := range l.config.Symbols {
		order[s] = i
	}
	sort.SliceStable(out, func(a, b int) bool { return order[out[a].symbol] < order[out[b].symbol] })
	return out, failures
}

func (l *DecisionLoop) safeCollect(ctx context.Context, symbol string, strategies []models.StrategyID, at time.Time) (sigs []models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signal collection panicked: %v", r)
		}
	}()
	return l.collector.CollectSignalsAt(ctx, symbol, strategies, at), nil
}

func (l *DecisionLoop) decide(ctx context.Context, logger *zap.Logger, cycleID string, accepted []models.Signal) int {
	if l.decider == nil || len(accepted) == 0 {
		return 0
	}

	bySymbol := make(map[string][]models.Signal)
	var symbols []string
	for _, sig := range accepted {
		if _, seen := bySymbol[sig.Symbol]; !seen {
			symbols = append(symbols, sig.Symbol)
		}
		bySymbol[sig.Symbol] = append(bySymbol[sig.Symbol], sig)
	}

	var weights ensemble.Weights
	if l.weights != nil {
		weights = l.weights.Weights()
	}

	var (
		mu       sync.Mutex
		failures int
		g        errgroup.Group
	)
	g.SetLimit(l.config.MaxConcurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			decision := Decision{
				CycleID: cycleID,
				Symbol:  symbol,
				Signals: bySymbol[symbol],
				Weights: weights.Clone(),
			}
			if err := l.safeDecide(ctx, decision); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				logger.Error("Decision failed", zap.String("symbol", symbol), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func (l *DecisionLoop) safeDecide(ctx context.Context, decision Decision) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decider panicked: %v", r)
		}
	}()
	decision.Market = l.collector.MarketContext(ctx, decision.Symbol)
	if primary, ok := decision.Primary(); ok && l.sizer != nil && l.config.Capital.IsPositive() {
		size, err := l.sizer.Size(ctx, primary.Strategy, l.config.Capital, decimal.NewFromFloat(primary.Price))
		if err != nil {
			l.logger.Warn("Failed to size primary signal", zap.String("symbol", decision.Symbol), zap.Error(err))
		} else {
			decision.Size = &size
		}
	}
	return l.decider.Decide(ctx, decision)
}

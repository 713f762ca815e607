package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/models"
)

// CandleFetcher loads OHLCV candles from the market data service.
type CandleFetcher interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

type Config struct {
	TTL          time.Duration
	FetchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:          60 * time.Second,
		FetchTimeout: 15 * time.Second,
	}
}

var candleLimits = map[string]int{
	"1m":  120,
	"5m":  100,
	"15m": 100,
	"1h":  100,
	"4h":  60,
	"1d":  30,
}

// CandleLimit is the number of candles requested for a timeframe.
func CandleLimit(timeframe string) int {
	if limit, ok := candleLimits[timeframe]; ok {
		return limit
	}
	return 100
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	FetchErrors int64 `json:"fetch_errors"`
}

// TimeframeCache serves candles per (symbol, timeframe) and refetches once an
// entry is older than the TTL. Returned slices are shared and must not be modified.
type TimeframeCache struct {
	store   Store
	fetcher CandleFetcher
	config  Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	group   singleflight.Group
	now     func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	fetchErrors atomic.Int64
}

func NewTimeframeCache(fetcher CandleFetcher, store Store, config Config, logger *zap.Logger, recorder *metrics.Recorder) *TimeframeCache {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &TimeframeCache{
		store:   store,
		fetcher: fetcher,
		config:  config,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

func cacheKey(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

// Get returns candles for symbol and timeframe. A failed fetch is logged and
// yields an empty result without touching the stored entry.
func (c *TimeframeCache) Get(ctx context.Context, symbol, timeframe string) []models.Candle {
	key := cacheKey(symbol, timeframe)

	entry, ok, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("Candle cache read failed",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err))
	}
	if ok && c.now().Sub(entry.FetchedAt) < c.config.TTL {
		c.hits.Add(1)
		c.metrics.RecordCacheResult("hit")
		return entry.Candles
	}

	c.misses.Add(1)
	c.metrics.RecordCacheResult("miss")

	// the flight is shared by every waiter on key, so it must outlive the
	// caller that started it; FetchTimeout still bounds it
	flightCtx := context.WithoutCancel(ctx)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.refresh(flightCtx, key, symbol, timeframe)
	})
	if err != nil {
		c.fetchErrors.Add(1)
		c.metrics.RecordFetchError(timeframe)
		c.logger.Error("Failed to fetch candles",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err))
		return nil
	}
	return result.([]models.Candle)
}

func (c *TimeframeCache) refresh(ctx context.Context, key, symbol, timeframe string) ([]models.Candle, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("no candle fetcher configured")
	}

	fetchCtx := ctx
	if c.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.config.FetchTimeout)
		defer cancel()
	}

	candles, err := c.fetcher.FetchOHLCV(fetchCtx, symbol, timeframe, CandleLimit(timeframe))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s candles: %w", symbol, timeframe, err)
	}

	entry := Entry{FetchedAt: c.now(), Candles: candles}
	if err := c.store.Save(ctx, key, entry, c.config.TTL); err != nil {
		c.logger.Warn("Candle cache write failed",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err))
	}
	return candles, nil
}

// Clear drops every cached entry.
func (c *TimeframeCache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear candle cache: %w", err)
	}
	c.logger.Info("Candle cache cleared")
	return nil
}

func (c *TimeframeCache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		FetchErrors: c.fetchErrors.Load(),
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/api"
	"github.com/irfndi/tradeloop/internal/cache"
	"github.com/irfndi/tradeloop/internal/ccxt"
	"github.com/irfndi/tradeloop/internal/config"
	"github.com/irfndi/tradeloop/internal/database"
	"github.com/irfndi/tradeloop/internal/evaluator"
	"github.com/irfndi/tradeloop/internal/logging"
	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/middleware"
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/services"
	"github.com/irfndi/tradeloop/internal/services/ensemble"
	"github.com/irfndi/tradeloop/internal/services/pubsub"
	"github.com/irfndi/tradeloop/internal/services/risk"
	"github.com/irfndi/tradeloop/internal/services/signals"
	"github.com/irfndi/tradeloop/internal/strategy"
)

const serviceName = "tradeloop"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run wires the engine, starts the decision loop and the status API, and
// blocks until SIGINT or SIGTERM.
func run() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	defer func() { _ = stdLogger.Sync() }()
	logger := stdLogger.Logger()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Environment,
			Release:          os.Getenv("APP_VERSION"),
			EnableTracing:    cfg.Sentry.TracesSampleRate > 0,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			logger.Warn("Failed to initialize Sentry", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	db, err := database.NewDatabaseConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	store := database.NewTradeHistoryStore(db, db.Dialect(), logger, recorder)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare trade history schema: %w", err)
	}

	var redisClient *database.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	catalog, err := loadCatalog(cfg.Engine)
	if err != nil {
		return err
	}
	rules, err := strategy.PositionRulesFromConfig(cfg.Rules)
	if err != nil {
		return fmt.Errorf("invalid position rules: %w", err)
	}
	strategies, err := parseStrategies(cfg.Engine.Strategies)
	if err != nil {
		return err
	}

	ccxtClient := ccxt.NewClient(&cfg.CCXT, cfg.CCXT.Exchange, logger)
	candleCache := cache.NewTimeframeCache(ccxtClient, newCandleStore(cfg.Engine, redisClient), cache.Config{
		TTL:          cfg.Engine.CacheTTL,
		FetchTimeout: cfg.Engine.FetchTimeout,
	}, logger, recorder)

	aggregator := signals.NewAggregator(
		catalog,
		candleCache,
		evaluator.NewClient(cfg.Evaluator.URL, cfg.Evaluator.Timeout, logger),
		strategy.NewCheckTracker(),
		signals.Config{MinCandles: cfg.Engine.MinCandles, EvaluateTimeout: cfg.Engine.EvaluateTimeout},
		logger,
		recorder,
	)

	guard := risk.NewLossGuardFromConfig(redisHandle(redisClient), cfg.Risk, logger)

	defaults, err := ensemble.ParseWeights(cfg.Ensemble.DefaultWeights)
	if err != nil {
		return fmt.Errorf("invalid ensemble default weights: %w", err)
	}
	optimizer, err := ensemble.NewOptimizer(ctx, defaults, newWeightStore(cfg.Ensemble, redisClient), logger, recorder)
	if err != nil {
		return fmt.Errorf("failed to initialize ensemble optimizer: %w", err)
	}

	deciders := services.MultiDecider{services.NewLogDecider(logger)}
	feedback := services.NewOutcomeFeedback(optimizer, guard, services.OutcomeFeedbackConfig{
		MinTrades:        cfg.Ensemble.MinTrades,
		OptimizeInterval: cfg.Ensemble.OptimizeInterval,
		PendingTTL:       cfg.Ensemble.PendingTTL,
		MaxPending:       cfg.Ensemble.MaxPending,
	}, logger)
	if redisClient != nil {
		publisher := pubsub.NewPublisher(redisClient.Client, logger)
		deciders = append(deciders, services.NewPublishingDecider(publisher))
		feedback.WithPublisher(publisher)
	}
	store.OnTradeClosed(feedback.OnTradeClosed)

	loop := services.NewDecisionLoop(
		services.DecisionLoopConfig{
			Symbols:        cfg.Engine.Symbols,
			Strategies:     strategies,
			MaxConcurrency: cfg.Engine.MaxConcurrency,
			Capital:        decimal.NewFromFloat(cfg.Engine.Capital),
		},
		aggregator,
		store,
		risk.NewPositionRuleEngine(rules, logger, recorder),
		guard,
		optimizer,
		deciders,
		logger,
		recorder,
	).WithSizer(risk.NewPositionSizer(rules, guard))
	if redisClient != nil {
		loop.WithLocker(redisClient)
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx, catalog.BaseCheckInterval())
	}()

	router := gin.New()
	if cfg.Sentry.DSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{
			Repanic:         true,
			WaitForDelivery: false,
			Timeout:         2 * time.Second,
		}))
	}
	router.Use(gin.Recovery())

	rateLimit := middleware.DefaultRateLimitConfig()
	rateLimit.Requests = cfg.Server.RateLimitRequests
	rateLimit.Window = cfg.Server.RateLimitWindow

	deps := api.Dependencies{
		DB:             db,
		CCXT:           ccxtClient,
		RedisClient:    redisHandle(redisClient),
		Performance:    store,
		Trades:         store,
		Feedback:       feedback,
		Ensemble:       optimizer,
		Catalog:        catalog,
		Rules:          rules,
		Loop:           loop,
		Cache:          candleCache,
		Gatherer:       registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      rateLimit,
		Logger:         logger,
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	if guard != nil {
		deps.Guard = guard
	}
	api.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(serviceName, os.Getenv("APP_VERSION"), cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		stdLogger.LogShutdown(serviceName, "signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
		stop()
	case err := <-loopDone:
		if err != nil {
			runErr = fmt.Errorf("decision loop stopped: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
	return runErr
}

func loadCatalog(cfg config.EngineConfig) (*strategy.Catalog, error) {
	catalog := strategy.DefaultCatalog()
	if cfg.CatalogPath != "" {
		loaded, err := strategy.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load strategy catalog: %w", err)
		}
		catalog = loaded
	}
	if len(cfg.Strategies) == 0 {
		return catalog, nil
	}
	ids, err := parseStrategies(cfg.Strategies)
	if err != nil {
		return nil, err
	}
	return catalog.Restrict(ids), nil
}

func parseStrategies(raw []string) ([]models.StrategyID, error) {
	ids := make([]models.StrategyID, 0, len(raw))
	for _, name := range raw {
		id, err := models.ParseStrategyID(name)
		if err != nil {
			return nil, fmt.Errorf("invalid engine.strategies: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newCandleStore(cfg config.EngineConfig, redisClient *database.RedisClient) cache.Store {
	if cfg.CacheBackend == "redis" && redisClient != nil {
		return cache.NewRedisStore(redisClient.Client)
	}
	return cache.NewMemoryStore()
}

func newWeightStore(cfg config.EnsembleConfig, redisClient *database.RedisClient) ensemble.WeightStore {
	if cfg.WeightsBackend == "redis" && redisClient != nil {
		return ensemble.NewRedisStore(redisClient.Client)
	}
	return ensemble.NewFileStore(cfg.WeightsFile)
}

func redisHandle(client *database.RedisClient) *redis.Client {
	if client == nil {
		return nil
	}
	return client.Client
}

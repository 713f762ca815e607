package api

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/api/handlers"
	"github.com/irfndi/tradeloop/internal/middleware"
	"github.com/irfndi/tradeloop/internal/strategy"
)

// Dependencies are the engine components the API reads from and the trade
// ledger fills are written to. Nil optional components disable their routes.
type Dependencies struct {
	DB          handlers.HealthChecker
	Redis       handlers.HealthChecker
	CCXT        handlers.HealthChecker
	RedisClient *redis.Client

	Performance handlers.PerformanceReader
	Trades      handlers.TradeRecorder
	Feedback    handlers.PredictionTracker
	Ensemble    handlers.EnsembleReader
	Catalog     *strategy.Catalog
	Rules       strategy.PositionRules
	Guard       handlers.StrategyGuard
	Loop        handlers.CycleReporter
	Cache       handlers.CacheReporter
	Gatherer    prometheus.Gatherer

	AllowedOrigins []string
	RateLimit      middleware.RateLimitConfig
	Logger         *zap.Logger
}

// SetupRoutes registers health, metrics and the /api/v1 surface.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.Use(middleware.RequestLogger(deps.Logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.CCXT)
	healthGroup := router.Group("/")
	healthGroup.Use(middleware.HealthCheckTelemetryMiddleware())
	{
		healthGroup.GET("/health", healthHandler.HealthCheck)
		healthGroup.HEAD("/health", healthHandler.HealthCheck)
		healthGroup.GET("/live", healthHandler.LivenessCheck)
	}

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := middleware.NewRateLimiter(deps.RateLimit, deps.RedisClient, deps.Logger)
	v1 := router.Group("/api/v1")
	v1.Use(middleware.TelemetryMiddleware(), limiter.Middleware())

	if deps.Performance != nil {
		performanceHandler := handlers.NewPerformanceHandler(deps.Performance)
		v1.GET("/performance", performanceHandler.GetRecentPerformance)
		v1.GET("/performance/today", performanceHandler.GetTodaysPerformance)
		v1.GET("/trades/open/count", performanceHandler.GetOpenTradesCount)
	}

	if deps.Trades != nil {
		tradeHandler := handlers.NewTradeHandler(deps.Trades, deps.Feedback)
		trades := v1.Group("/trades")
		{
			trades.POST("", tradeHandler.RecordEntry)
			trades.POST("/:id/exit", tradeHandler.RecordExit)
		}
	}

	if deps.Ensemble != nil {
		ensembleHandler := handlers.NewEnsembleHandler(deps.Ensemble)
		ensemble := v1.Group("/ensemble")
		{
			ensemble.GET("/weights", ensembleHandler.GetWeights)
			ensemble.GET("/history", ensembleHandler.GetHistory)
		}
	}

	if deps.Catalog != nil {
		strategyHandler := handlers.NewStrategyHandler(deps.Catalog, deps.Rules, deps.Guard)
		v1.GET("/strategies", strategyHandler.ListStrategies)
	}

	if deps.Loop != nil && deps.Cache != nil {
		engineHandler := handlers.NewEngineHandler(deps.Loop, deps.Cache)
		v1.GET("/cycles/last", engineHandler.GetLastCycle)
		v1.GET("/cache/stats", engineHandler.GetCacheStats)
	}
}

// corsMiddleware allows cross origin requests from the listed origins.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(origins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

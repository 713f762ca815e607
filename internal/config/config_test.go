package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	os.Clearenv()

	config, err := Load()
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 120, config.Server.RateLimitRequests)
	assert.Equal(t, time.Minute, config.Server.RateLimitWindow)
	assert.Equal(t, "sqlite", config.Database.Driver)
	assert.Equal(t, "trade_history.db", config.Database.SQLitePath)
	assert.Equal(t, 6379, config.Redis.Port)
	assert.False(t, config.Redis.Enabled)
	assert.Equal(t, "http://localhost:3001", config.CCXT.ServiceURL)
	assert.Equal(t, 30, config.CCXT.Timeout)

	assert.Equal(t, 60*time.Second, config.Engine.CacheTTL)
	assert.Equal(t, 15*time.Second, config.Engine.FetchTimeout)
	assert.Equal(t, 10*time.Second, config.Engine.EvaluateTimeout)
	assert.Equal(t, "memory", config.Engine.CacheBackend)
	assert.Equal(t, 20, config.Engine.MinCandles)
	assert.Equal(t, 10000.0, config.Engine.Capital)

	assert.False(t, config.Rules.AllowMultipleStrategiesPerPair)
	assert.Equal(t, []string{"macd_supertrend", "momentum", "mean_reversion", "scalping"}, config.Rules.Priority)
	assert.Equal(t, 10, config.Rules.MaxTotal)
	assert.Equal(t, 3, config.Rules.MaxPerStrategy["macd_supertrend"])
	assert.Equal(t, 15.0, config.Rules.PositionSizePercent["macd_supertrend"])

	assert.InDelta(t, 0.35, config.Ensemble.DefaultWeights["technical"], 1e-12)
	assert.Equal(t, "ensemble_weights.json", config.Ensemble.WeightsFile)
	assert.Equal(t, 20, config.Ensemble.OptimizeInterval)
	assert.Equal(t, 7*24*time.Hour, config.Ensemble.PendingTTL)
	assert.Equal(t, 10000, config.Ensemble.MaxPending)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	os.Clearenv()

	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_HOST", "prod-db.example.com")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("CCXT_SERVICE_URL", "http://ccxt.internal:3000")
	t.Setenv("ENGINE_CACHE_TTL", "90s")
	t.Setenv("ENGINE_CACHE_BACKEND", "redis")
	t.Setenv("ENGINE_SYMBOLS", "SOL/USDT,XRP/USDT")
	t.Setenv("ENSEMBLE_OPTIMIZE_INTERVAL", "10")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "error", config.LogLevel)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "prod-db.example.com", config.Database.Host)
	assert.True(t, config.Redis.Enabled)
	assert.Equal(t, 6380, config.Redis.Port)
	assert.Equal(t, "http://ccxt.internal:3000", config.CCXT.GetServiceURL())
	assert.Equal(t, 90*time.Second, config.Engine.CacheTTL)
	assert.Equal(t, "redis", config.Engine.CacheBackend)
	assert.Equal(t, []string{"SOL/USDT", "XRP/USDT"}, config.Engine.Symbols)
	assert.Equal(t, 10, config.Ensemble.OptimizeInterval)
}

func TestLoad_SQLitePathAlias(t *testing.T) {
	os.Clearenv()
	t.Setenv("SQLITE_PATH", "/tmp/tradeloop-test.db")

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tradeloop-test.db", config.Database.SQLitePath)
}

func TestLoad_WithInvalidDatabaseDriver(t *testing.T) {
	os.Clearenv()
	t.Setenv("DATABASE_DRIVER", "mysql")

	config, err := Load()
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "database.driver must be one of")
}

func TestLoad_SQLiteDriverRejectsWhitespacePath(t *testing.T) {
	os.Clearenv()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "   ")

	config, err := Load()
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "database.sqlite_path is required")
}

func TestLoad_RejectsUnknownCacheBackend(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENGINE_CACHE_BACKEND", "memcached")

	config, err := Load()
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "engine.cache_backend")
}

func TestLoad_RedisBackendsRequireRedis(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENSEMBLE_WEIGHTS_BACKEND", "redis")

	config, err := Load()
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "redis backends require redis.enabled")
}

func TestLoad_RejectsNegativeCapital(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENGINE_CAPITAL", "-1")

	config, err := Load()
	assert.Nil(t, config)
	assert.ErrorContains(t, err, "engine.capital")
}

func TestCCXTConfig_Getters(t *testing.T) {
	config := CCXTConfig{ServiceURL: "http://localhost:3001", Timeout: 30}

	assert.Equal(t, "http://localhost:3001", config.GetServiceURL())
	assert.Equal(t, 30, config.GetTimeout())
}

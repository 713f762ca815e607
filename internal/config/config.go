package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the decision engine.
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	CCXT        CCXTConfig      `mapstructure:"ccxt"`
	Evaluator   EvaluatorConfig `mapstructure:"evaluator"`
	Engine      EngineConfig    `mapstructure:"engine"`
	Rules       RulesConfig     `mapstructure:"rules"`
	Ensemble    EnsembleConfig  `mapstructure:"ensemble"`
	Risk        RiskConfig      `mapstructure:"risk"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ApplicationName string `mapstructure:"application_name"`
	ConnectTimeout  int    `mapstructure:"connect_timeout"`
	SQLitePath      string `mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CCXTConfig points at the CCXT market data service. Timeout is in seconds.
type CCXTConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	Exchange   string `mapstructure:"exchange"`
	Timeout    int    `mapstructure:"timeout"`
}

func (c CCXTConfig) GetServiceURL() string {
	return c.ServiceURL
}

func (c CCXTConfig) GetTimeout() int {
	return c.Timeout
}

type EvaluatorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig controls the decision loop.
type EngineConfig struct {
	Symbols         []string      `mapstructure:"symbols"`
	Strategies      []string      `mapstructure:"strategies"`
	CatalogPath     string        `mapstructure:"catalog_path"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	EvaluateTimeout time.Duration `mapstructure:"evaluate_timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheBackend    string        `mapstructure:"cache_backend"`
	MinCandles      int           `mapstructure:"min_candles"`
	Capital         float64       `mapstructure:"capital"`
}

// RulesConfig holds the portfolio-level position limits.
type RulesConfig struct {
	AllowMultipleStrategiesPerPair bool               `mapstructure:"allow_multiple_strategies_per_pair"`
	Priority                       []string           `mapstructure:"priority"`
	MaxPerStrategy                 map[string]int     `mapstructure:"max_per_strategy"`
	MaxTotal                       int                `mapstructure:"max_total"`
	PositionSizePercent            map[string]float64 `mapstructure:"position_size_percent"`
}

type EnsembleConfig struct {
	DefaultWeights   map[string]float64 `mapstructure:"default_weights"`
	WeightsBackend   string             `mapstructure:"weights_backend"`
	WeightsFile      string             `mapstructure:"weights_file"`
	MinTrades        int                `mapstructure:"min_trades"`
	OptimizeInterval int                `mapstructure:"optimize_interval"`
	PendingTTL       time.Duration      `mapstructure:"pending_ttl"`
	MaxPending       int                `mapstructure:"max_pending"`
}

// RiskConfig drives the per-strategy loss guard. It needs Redis.
type RiskConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	MaxConsecutiveLosses  int           `mapstructure:"max_consecutive_losses"`
	PauseDuration         time.Duration `mapstructure:"pause_duration"`
	ReductionFactor       float64       `mapstructure:"reduction_factor"`
	MinPositionMultiplier float64       `mapstructure:"min_position_multiplier"`
	RecoveryFactor        float64       `mapstructure:"recovery_factor"`
	LossThreshold         int           `mapstructure:"loss_threshold"`
}

type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// Load reads configuration from config.yaml (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch driver {
	case "sqlite":
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return fmt.Errorf("database.sqlite_path is required when database.driver is sqlite")
		}
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres; got %q", c.Database.Driver)
	}
	c.Database.Driver = driver

	switch c.Engine.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("engine.cache_backend must be one of memory, redis; got %q", c.Engine.CacheBackend)
	}
	switch c.Ensemble.WeightsBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("ensemble.weights_backend must be one of file, redis; got %q", c.Ensemble.WeightsBackend)
	}
	if c.Engine.MaxConcurrency <= 0 {
		return fmt.Errorf("engine.max_concurrency must be positive")
	}
	if c.Engine.Capital < 0 {
		return fmt.Errorf("engine.capital must not be negative")
	}
	if c.Ensemble.OptimizeInterval <= 0 {
		return fmt.Errorf("ensemble.optimize_interval must be positive")
	}
	if c.Risk.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("risk.enabled requires redis.enabled")
	}
	if !c.Redis.Enabled && (c.Engine.CacheBackend == "redis" || c.Ensemble.WeightsBackend == "redis") {
		return fmt.Errorf("redis backends require redis.enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_requests", 120)
	v.SetDefault("server.rate_limit_window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tradeloop")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.application_name", "tradeloop")
	v.SetDefault("database.connect_timeout", 10)
	v.SetDefault("database.sqlite_path", "trade_history.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ccxt.service_url", "http://localhost:3001")
	v.SetDefault("ccxt.exchange", "binance")
	v.SetDefault("ccxt.timeout", 30)

	v.SetDefault("evaluator.url", "http://localhost:3002")
	v.SetDefault("evaluator.timeout", "10s")

	v.SetDefault("engine.symbols", []string{"BTC/USDT", "ETH/USDT"})
	v.SetDefault("engine.strategies", []string{"scalping", "momentum", "mean_reversion", "macd_supertrend"})
	v.SetDefault("engine.catalog_path", "")
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.fetch_timeout", "15s")
	v.SetDefault("engine.evaluate_timeout", "10s")
	v.SetDefault("engine.cache_ttl", "60s")
	v.SetDefault("engine.cache_backend", "memory")
	v.SetDefault("engine.min_candles", 20)
	v.SetDefault("engine.capital", 10000.0)

	v.SetDefault("rules.allow_multiple_strategies_per_pair", false)
	v.SetDefault("rules.priority", []string{"macd_supertrend", "momentum", "mean_reversion", "scalping"})
	v.SetDefault("rules.max_per_strategy", map[string]int{
		"scalping":        4,
		"momentum":        4,
		"mean_reversion":  3,
		"macd_supertrend": 3,
	})
	v.SetDefault("rules.max_total", 10)
	v.SetDefault("rules.position_size_percent", map[string]float64{
		"scalping":        5,
		"momentum":        10,
		"mean_reversion":  8,
		"macd_supertrend": 15,
	})

	v.SetDefault("ensemble.default_weights", map[string]float64{
		"sentiment": 0.20,
		"technical": 0.35,
		"macro":     0.15,
		"advisory":  0.30,
	})
	v.SetDefault("ensemble.weights_backend", "file")
	v.SetDefault("ensemble.weights_file", "ensemble_weights.json")
	v.SetDefault("ensemble.min_trades", 20)
	v.SetDefault("ensemble.optimize_interval", 20)
	v.SetDefault("ensemble.pending_ttl", "168h")
	v.SetDefault("ensemble.max_pending", 10000)

	v.SetDefault("risk.enabled", false)
	v.SetDefault("risk.max_consecutive_losses", 3)
	v.SetDefault("risk.pause_duration", "15m")
	v.SetDefault("risk.reduction_factor", 0.7)
	v.SetDefault("risk.min_position_multiplier", 0.1)
	v.SetDefault("risk.recovery_factor", 1.5)
	v.SetDefault("risk.loss_threshold", 1)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.traces_sample_rate", 0.1)
}

func bindEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("database.sqlite_path", "DATABASE_SQLITE_PATH", "SQLITE_PATH")
	_ = v.BindEnv("database.database_url", "DATABASE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("sentry.dsn", "SENTRY_DSN")
}

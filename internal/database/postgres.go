package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/config"
)

// PostgresDB wraps a PostgreSQL connection pool.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	SQL    *sql.DB
	logger *zap.Logger
}

var _ Database = (*PostgresDB)(nil)

const (
	maxAllowedPoolConns int32 = 10000
	connectAttempts           = 3
	slowQueryThreshold        = 500 * time.Millisecond
)

// NewPostgresConnection connects with up to three attempts and exponential backoff.
func NewPostgresConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolConfig, err := buildPGXPoolConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	for attempt := 0; attempt < connectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			break
		}
		logger.Warn("Database connection attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if attempt < connectAttempts-1 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt)) * time.Second):
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to create connection pool: %w", ctx.Err())
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool after retries: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// database/sql view over the same pool for health checks and tooling
	sqlDB := stdlib.OpenDBFromPool(pool)
	if poolConfig.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(poolConfig.MaxConns))
	}
	if poolConfig.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(poolConfig.MinConns))
	}

	logger.Info("Successfully connected to PostgreSQL")
	return &PostgresDB{Pool: pool, SQL: sqlDB, logger: logger}, nil
}

func (db *PostgresDB) Dialect() Dialect {
	return DialectPostgres
}

// Close closes the sql view and the pool.
func (db *PostgresDB) Close() error {
	var closeErr error
	if db.SQL != nil {
		if err := db.SQL.Close(); err != nil {
			db.logger.Warn("Failed to close PostgreSQL sql compatibility connection", zap.Error(err))
			closeErr = err
		}
	}
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("PostgreSQL connection closed")
	}
	return closeErr
}

func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if !db.IsReady() {
		return fmt.Errorf("postgres pool is not initialized")
	}
	return db.Pool.Ping(ctx)
}

func (db *PostgresDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if !db.IsReady() {
		return nil, fmt.Errorf("postgres pool is not initialized")
	}
	return pgxQuerier{db.Pool}.Query(ctx, query, args...)
}

func (db *PostgresDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxQuerier{db.Pool}.QueryRow(ctx, query, args...)
}

func (db *PostgresDB) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if !db.IsReady() {
		return nil, fmt.Errorf("postgres pool is not initialized")
	}
	return pgxQuerier{db.Pool}.Exec(ctx, query, args...)
}

func (db *PostgresDB) Begin(ctx context.Context) (Tx, error) {
	if !db.IsReady() {
		return nil, fmt.Errorf("postgres pool is not initialized")
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return PgxTx{Tx: tx}, nil
}

func (db *PostgresDB) IsReady() bool {
	return db != nil && db.Pool != nil
}

func buildPGXPoolConfig(cfg *config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Config, error) {
	var dsn string
	switch {
	case strings.HasPrefix(cfg.Host, "postgres://"), strings.HasPrefix(cfg.Host, "postgresql://"):
		dsn = cfg.Host
	case cfg.DatabaseURL != "":
		dsn = cfg.DatabaseURL
	default:
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=%s connect_timeout=%d",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
			cfg.ApplicationName, cfg.ConnectTimeout)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = clampToSafePoolSize(cfg.MaxOpenConns, logger)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = clampToSafePoolSize(cfg.MaxIdleConns, logger)
	}
	if poolConfig.MinConns > 0 && poolConfig.MaxConns > 0 && poolConfig.MinConns > poolConfig.MaxConns {
		return nil, fmt.Errorf("invalid pool sizing: min_conns (%d) > max_conns (%d)", poolConfig.MinConns, poolConfig.MaxConns)
	}

	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ConnMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = duration
	}

	if cfg.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	poolConfig.ConnConfig.Tracer = NewPostgresSentryTracer(logger, slowQueryThreshold)

	return poolConfig, nil
}

func clampToSafePoolSize(value int, logger *zap.Logger) int32 {
	requested := int64(value)
	if requested <= 0 {
		return 0
	}
	if requested > int64(math.MaxInt32) || requested > int64(maxAllowedPoolConns) {
		logger.Warn("Configured pool size exceeds safe limit; clamping",
			zap.Int("requested", value),
			zap.Int32("limit", maxAllowedPoolConns))
		return maxAllowedPoolConns
	}
	return int32(requested)
}

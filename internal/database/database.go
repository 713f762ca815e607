package database

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/config"
)

// Database abstracts both PostgreSQL and SQLite connections.
type Database interface {
	DBPool
	Dialect() Dialect
	Close() error
	IsReady() bool
	HealthCheck(ctx context.Context) error
}

// Dialect selects placeholder style and DDL differences.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DetectDialect maps a driver name to its dialect. Unknown drivers fall back to SQLite.
func DetectDialect(driver string) Dialect {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

// NewDatabaseConnection opens the database selected by cfg.Driver.
func NewDatabaseConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "sqlite", "sqlite3":
		path := cfg.SQLitePath
		if path == "" {
			path = "trade_history.db"
		}
		logger.Info("Connecting to SQLite database", zap.String("path", path))
		return NewSQLiteConnection(ctx, path)

	case "postgres", "postgresql":
		logger.Info("Connecting to PostgreSQL database",
			zap.String("user", cfg.User),
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("dbname", cfg.DBName))
		return NewPostgresConnection(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", driver)
	}
}

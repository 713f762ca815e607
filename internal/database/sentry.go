package database

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type queryStartKey struct{}

type queryStart struct {
	sql   string
	start time.Time
}

// PostgresSentryTracer reports failed queries to Sentry and logs slow ones.
type PostgresSentryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

var _ pgx.QueryTracer = (*PostgresSentryTracer)(nil)

func NewPostgresSentryTracer(logger *zap.Logger, slowThreshold time.Duration) *PostgresSentryTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSentryTracer{logger: logger, slowThreshold: slowThreshold}
}

func (t *PostgresSentryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, start: time.Now()})
}

func (t *PostgresSentryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	started, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(started.start)
	statement := compactSQL(started.sql)

	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		hub := hubFromContext(ctx)
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("db.system", "postgresql")
			scope.SetExtra("db.statement", statement)
			hub.CaptureException(data.Err)
		})
		return
	}

	if t.slowThreshold > 0 && elapsed >= t.slowThreshold {
		t.logger.Warn("Slow query",
			zap.String("statement", statement),
			zap.Duration("duration", elapsed),
			zap.Int64("rows", data.CommandTag.RowsAffected()))
		hubFromContext(ctx).AddBreadcrumb(&sentry.Breadcrumb{
			Category: "db.slow_query",
			Message:  statement,
			Level:    sentry.LevelWarning,
			Data:     map[string]interface{}{"duration_ms": elapsed.Milliseconds()},
		}, nil)
	}
}

// RedisSentryHook reports failed Redis commands to Sentry. redis.Nil is not an error.
type RedisSentryHook struct{}

var _ redis.Hook = (*RedisSentryHook)(nil)

func (RedisSentryHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			hubFromContext(ctx).CaptureException(err)
		}
		return conn, err
	}
}

func (RedisSentryHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			hub := hubFromContext(ctx)
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("db.system", "redis")
				scope.SetTag("db.operation", cmd.Name())
				hub.CaptureException(err)
			})
		}
		return err
	}
}

func (RedisSentryHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			hubFromContext(ctx).CaptureException(err)
		}
		return err
	}
}

func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func compactSQL(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}

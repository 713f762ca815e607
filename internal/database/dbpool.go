package database

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

type Row interface {
	Scan(dest ...any) error
}

type Result interface {
	RowsAffected() (int64, error)
}

// Querier is the statement surface shared by pools and transactions.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (Result, error)
}

type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBPool is implemented by both the pgx and database/sql backends.
type DBPool interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
}

type PgxRows struct{ pgx.Rows }

type PgxRow struct{ pgx.Row }

type PgxResult struct{ pgconn.CommandTag }

func (r PgxResult) RowsAffected() (int64, error) {
	return r.CommandTag.RowsAffected(), nil
}

type PgxTx struct{ pgx.Tx }

func (t PgxTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return pgxQuerier{t.Tx}.Query(ctx, query, args...)
}

func (t PgxTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return pgxQuerier{t.Tx}.QueryRow(ctx, query, args...)
}

func (t PgxTx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return pgxQuerier{t.Tx}.Exec(ctx, query, args...)
}

type SQLRows struct{ *sql.Rows }

func (r SQLRows) Close() {
	_ = r.Rows.Close()
}

type SQLRow struct{ *sql.Row }

type SQLResult struct{ sql.Result }

type SQLTx struct{ *sql.Tx }

func (t SQLTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return SQLRows{Rows: rows}, nil
}

func (t SQLTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return SQLRow{Row: t.QueryRowContext(ctx, query, args...)}
}

func (t SQLTx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := t.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return SQLResult{Result: res}, nil
}

func (t SQLTx) Commit(context.Context) error {
	return t.Tx.Commit()
}

func (t SQLTx) Rollback(context.Context) error {
	return t.Tx.Rollback()
}

// PgxQuerier is the pgx-native statement surface of *pgxpool.Pool, pgx.Tx
// and pgxmock pools.
type PgxQuerier interface {
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}

// PgxPool is a pgx-native pool that can start transactions.
type PgxPool interface {
	PgxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgxQuerier struct {
	q PgxQuerier
}

func (w pgxQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := w.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxRows{Rows: rows}, nil
}

func (w pgxQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return PgxRow{Row: w.q.QueryRow(ctx, query, args...)}
}

func (w pgxQuerier) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := w.q.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxResult{CommandTag: tag}, nil
}

type pgxPool struct {
	pgxQuerier
	pool PgxPool
}

func (w pgxPool) Begin(ctx context.Context) (Tx, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return PgxTx{Tx: tx}, nil
}

// WrapPgxPool adapts a pgx-native pool to DBPool.
func WrapPgxPool(pool PgxPool) DBPool {
	return pgxPool{pgxQuerier: pgxQuerier{q: pool}, pool: pool}
}

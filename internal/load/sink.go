package load

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// Sink is the relational store the loader writes to.
//
// ReplaceTable drops and recreates the table in one transaction. CopyBatch
// streams COPY text rows into the table inside a transaction of its own and
// commits it; on error nothing of that batch is visible.
type Sink interface {
	ReplaceTable(ctx context.Context, table string, columns []ColumnDef) error
	CopyBatch(ctx context.Context, table string, columns []string, rows io.Reader) (int64, error)
}

// PgSink is a Sink backed by a pgx connection pool.
type PgSink struct {
	pool *pgxpool.Pool
}

// NewPgSink wraps an open pool. The caller owns the pool.
func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

// Connect opens a pool for connString and verifies it with a ping.
// Failures are reported as *core.SinkConnectionError.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &core.SinkConnectionError{Sink: "postgres", Err: err}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &core.SinkConnectionError{Sink: "postgres", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &core.SinkConnectionError{Sink: "postgres", Err: err}
	}
	return pool, nil
}

func (s *PgSink) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &core.SinkConnectionError{Sink: "postgres", Err: err}
	}
	return conn, nil
}

func (s *PgSink) ReplaceTable(ctx context.Context, table string, columns []ColumnDef) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, DropTableSQL(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(table, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PgSink) CopyBatch(ctx context.Context, table string, columns []string, rows io.Reader) (int64, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, rows, CopySQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("copy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

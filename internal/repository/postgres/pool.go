package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maxviazov/storegate/internal/gateway"
)

// DB is the handle the postgres gateway hands to operations: one pooled
// connection for the duration of one call. *pgxpool.Conn satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type connPool struct{ pool *pgxpool.Pool }

// NewPool exposes a pgx pool as a gateway pool: Acquire checks out one
// connection and Release returns it to the pool.
func NewPool(pool *pgxpool.Pool) gateway.Pool[DB] { return &connPool{pool: pool} }

func (p *connPool) Acquire(ctx context.Context) (DB, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p *connPool) Release(db DB) error {
	if conn, ok := db.(*pgxpool.Conn); ok {
		conn.Release()
	}
	return nil
}

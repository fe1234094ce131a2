package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// withinTx runs fn inside a transaction on the handle's connection.
// The transaction commits when fn returns nil and rolls back on error or panic.
func withinTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			// rollback on a fresh context so a canceled request still cleans up
			_ = tx.Rollback(context.Background())
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	done = true
	return tx.Commit(ctx)
}

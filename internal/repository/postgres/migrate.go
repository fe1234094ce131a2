package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded goose migrations through a database/sql view of pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// upSQL returns the Up sections of the embedded migrations in file order.
// EnsureSchema runs them directly; they are written to be idempotent.
func upSQL() (string, error) {
	entries, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, name := range entries {
		data, err := migrations.ReadFile(name)
		if err != nil {
			return "", err
		}
		up, _, _ := strings.Cut(string(data), "-- +goose Down")
		b.WriteString(strings.TrimPrefix(strings.TrimSpace(up), "-- +goose Up"))
		b.WriteString("\n")
	}
	return b.String(), nil
}

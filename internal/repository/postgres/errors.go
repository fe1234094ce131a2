package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maxviazov/storegate/internal/repository"
)

// mapPgError translates Postgres failures into the repository taxonomy.
// Only unique violations have a domain meaning here; everything else is an access failure.
func mapPgError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return repository.E(repository.KindAlreadyExists, op, key, err)
	}
	return repository.AccessFailure(op, err)
}

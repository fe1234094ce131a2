package postgres

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

const (
	backendName    = "postgres"
	resourcesTable = "resources"
)

var resourceColumns = []string{"id", "name", "kind", "status", "attributes", "version", "created_at", "updated_at"}

// timePrecision is what a timestamptz column keeps.
const timePrecision = time.Microsecond

type resourceStore struct {
	gw  *gateway.Gateway[DB]
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewResourceStore returns the postgres adapter. Every call runs on its own pooled
// connection handed out by gw.
func NewResourceStore(gw *gateway.Gateway[DB]) repository.Store {
	return &resourceStore{
		gw:  gw,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: func() time.Time { return time.Now().UTC().Truncate(timePrecision) },
	}
}

func (s *resourceStore) Backend() string { return backendName }

func (s *resourceStore) Create(ctx context.Context, r model.Resource) (model.Resource, error) {
	// return what a later Find will read back
	r.CreatedAt = r.CreatedAt.UTC().Truncate(timePrecision)
	r.UpdatedAt = r.UpdatedAt.UTC().Truncate(timePrecision)
	query, args, err := s.sb.Insert(resourcesTable).
		Columns(resourceColumns...).
		Values(r.ID, r.Name, r.Kind, string(r.Status), attributesOf(r), r.Version, r.CreatedAt, r.UpdatedAt).
		ToSql()
	if err != nil {
		return model.Resource{}, repository.AccessFailure("postgres.Create", err)
	}

	err = s.gw.Execute(ctx, func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, query, args...)
		return mapPgError("postgres.Create", r.ID, err)
	})
	if err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

func (s *resourceStore) Find(ctx context.Context, id string) (model.Resource, bool, error) {
	query, args, err := s.sb.Select(resourceColumns...).
		From(resourcesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Resource{}, false, repository.AccessFailure("postgres.Find", err)
	}

	return gateway.Find(ctx, s.gw, func(ctx context.Context, db DB) (model.Resource, bool, error) {
		var out model.Resource
		if err := pgxscan.Get(ctx, db, &out, query, args...); err != nil {
			if pgxscan.NotFound(err) {
				return model.Resource{}, false, nil
			}
			return model.Resource{}, false, mapPgError("postgres.Find", id, err)
		}
		return out, true, nil
	})
}

func (s *resourceStore) Update(ctx context.Context, r model.Resource) (model.Resource, error) {
	if !r.Status.Valid() {
		return model.Resource{}, repository.E(repository.KindInvalid, "postgres.Update", r.ID, nil)
	}
	var out model.Resource
	err := s.gw.Execute(ctx, func(ctx context.Context, db DB) error {
		return withinTx(ctx, db, func(tx pgx.Tx) error {
			current, err := s.lockForWrite(ctx, tx, "postgres.Update", r.ID)
			if err != nil {
				return err
			}

			out = r
			out.Version = current.Version + 1
			out.CreatedAt = current.CreatedAt
			out.UpdatedAt = s.now()
			query, args, err := s.sb.Update(resourcesTable).
				Set("name", out.Name).
				Set("kind", out.Kind).
				Set("status", string(out.Status)).
				Set("attributes", attributesOf(out)).
				Set("version", out.Version).
				Set("updated_at", out.UpdatedAt).
				Where(sq.Eq{"id": r.ID}).
				ToSql()
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, query, args...)
			return mapPgError("postgres.Update", r.ID, err)
		})
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

func (s *resourceStore) Delete(ctx context.Context, id string) error {
	return s.gw.Execute(ctx, func(ctx context.Context, db DB) error {
		return withinTx(ctx, db, func(tx pgx.Tx) error {
			current, err := s.lockForWrite(ctx, tx, "postgres.Delete", id)
			if err != nil {
				return err
			}
			query, args, err := s.sb.Update(resourcesTable).
				Set("status", string(model.StatusDeleted)).
				Set("version", current.Version+1).
				Set("updated_at", s.now()).
				Where(sq.Eq{"id": id}).
				ToSql()
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, query, args...)
			return mapPgError("postgres.Delete", id, err)
		})
	})
}

// lockForWrite loads the row under FOR UPDATE and rejects missing or terminal rows.
func (s *resourceStore) lockForWrite(ctx context.Context, tx pgx.Tx, op, id string) (model.Resource, error) {
	query, args, err := s.sb.Select("status", "version", "created_at").
		From(resourcesTable).
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return model.Resource{}, err
	}

	var current model.Resource
	err = tx.QueryRow(ctx, query, args...).Scan(&current.Status, &current.Version, &current.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Resource{}, repository.E(repository.KindNotFound, op, id, nil)
	case err != nil:
		return model.Resource{}, mapPgError(op, id, err)
	case current.Status.Terminal():
		return model.Resource{}, repository.E(repository.KindInvalid, op, id, nil)
	}
	return current, nil
}

func (s *resourceStore) List(ctx context.Context, req repository.PageRequest) (repository.Envelope[model.Resource], error) {
	w := req.Window()
	countQuery, _, err := s.sb.Select("COUNT(*)").From(resourcesTable).ToSql()
	if err != nil {
		return repository.Envelope[model.Resource]{}, repository.AccessFailure("postgres.List", err)
	}
	pageQuery, pageArgs, err := s.sb.Select(resourceColumns...).
		From(resourcesTable).
		OrderBy("created_at", "id").
		Limit(uint64(w.MaxRows)).
		Offset(uint64(w.Offset())).
		ToSql()
	if err != nil {
		return repository.Envelope[model.Resource]{}, repository.AccessFailure("postgres.List", err)
	}

	var (
		total int
		items []model.Resource
	)
	err = s.gw.Execute(ctx, func(ctx context.Context, db DB) error {
		if err := db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
			return mapPgError("postgres.List", "", err)
		}
		if total == 0 {
			return nil
		}
		return mapPgError("postgres.List", "", pgxscan.Select(ctx, db, &items, pageQuery, pageArgs...))
	})
	if err != nil {
		return repository.Envelope[model.Resource]{}, err
	}
	return repository.Paginate(req, total, items), nil
}

func (s *resourceStore) Ping(ctx context.Context) error {
	return s.gw.Execute(ctx, func(ctx context.Context, db DB) error {
		return db.Ping(ctx)
	})
}

// EnsureSchema applies the Up sections of the embedded migrations. They only use
// IF NOT EXISTS statements, so running it against a migrated database is a no-op.
func (s *resourceStore) EnsureSchema(ctx context.Context) error {
	ddl, err := upSQL()
	if err != nil {
		return repository.AccessFailure("postgres.EnsureSchema", err)
	}
	return s.gw.Execute(ctx, func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, ddl)
		return err
	})
}

// attributesOf never hands a nil map to the JSONB column, which is NOT NULL.
func attributesOf(r model.Resource) map[string]string {
	if r.Attributes == nil {
		return map[string]string{}
	}
	return r.Attributes
}

var _ repository.Store = (*resourceStore)(nil)

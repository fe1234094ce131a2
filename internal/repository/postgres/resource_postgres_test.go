package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*resourceStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	pool := gateway.PoolFuncs[DB]{
		AcquireFunc: func(context.Context) (DB, error) { return mock, nil },
	}
	s := NewResourceStore(gateway.New[DB](backendName, pool)).(*resourceStore)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func resourceRows() *pgxmock.Rows {
	return pgxmock.NewRows(resourceColumns)
}

func sampleResource() model.Resource {
	created := fixedNow.Add(-time.Hour)
	return model.Resource{
		ID:         "r-1",
		Name:       "alpha",
		Kind:       "widget",
		Status:     model.StatusActive,
		Attributes: map[string]string{"color": "red"},
		Version:    1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestCreate_Inserts(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleResource()

	mock.ExpectExec(`INSERT INTO resources \(id,name,kind,status,attributes,version,created_at,updated_at\)`).
		WithArgs(r.ID, r.Name, r.Kind, "active", r.Attributes, r.Version, r.CreatedAt, r.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	got, err := s.Create(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, r, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolationIsAlreadyExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO resources`).
		WithArgs(anyArgs(8)...).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	_, err := s.Create(context.Background(), sampleResource())
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_OtherFailureIsAccessFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO resources`).
		WithArgs(anyArgs(8)...).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation})

	_, err := s.Create(context.Background(), sampleResource())
	assert.ErrorIs(t, err, repository.ErrAccessFailure)

	// the driver error must be the cause, not a mock mismatch
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, pgerrcode.CheckViolation, pgErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_TruncatesToStoredPrecision(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleResource()
	r.CreatedAt = r.CreatedAt.Add(1500 * time.Nanosecond)
	r.UpdatedAt = r.CreatedAt
	stored := r.CreatedAt.Truncate(time.Microsecond)

	mock.ExpectExec(`INSERT INTO resources`).
		WithArgs(r.ID, r.Name, r.Kind, "active", r.Attributes, r.Version, stored, stored).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	got, err := s.Create(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, stored, got.CreatedAt)
	assert.Equal(t, stored, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestFind_Present(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleResource()

	mock.ExpectQuery(`SELECT (.+) FROM resources WHERE id = \$1`).
		WithArgs(r.ID).
		WillReturnRows(resourceRows().AddRow(r.ID, r.Name, r.Kind, "active", r.Attributes, r.Version, r.CreatedAt, r.UpdatedAt))

	got, ok, err := s.Find(context.Background(), r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_NoRowsIsAbsent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM resources WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(resourceRows())

	_, ok, err := s.Find(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFind_UnreachableIsAbsent(t *testing.T) {
	pool := gateway.PoolFuncs[DB]{
		AcquireFunc: func(context.Context) (DB, error) {
			return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
		},
	}
	s := NewResourceStore(gateway.New[DB](backendName, pool))

	_, ok, err := s.Find(context.Background(), "r-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate_BumpsVersion(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleResource()
	r.Name = "beta"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, version, created_at FROM resources WHERE id = \$1 FOR UPDATE`).
		WithArgs(r.ID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "version", "created_at"}).AddRow("active", int64(3), r.CreatedAt))
	mock.ExpectExec(`UPDATE resources SET name = \$1, kind = \$2, status = \$3, attributes = \$4, version = \$5, updated_at = \$6 WHERE id = \$7`).
		WithArgs("beta", r.Kind, "active", r.Attributes, int64(4), fixedNow, r.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	got, err := s.Update(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, fixedNow, got.UpdatedAt)
	assert.Equal(t, r.CreatedAt, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "version", "created_at"}))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), sampleResource())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_TerminalIsInvalid(t *testing.T) {
	for _, status := range []string{"archived", "deleted"} {
		t.Run(status, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectBegin()
			mock.ExpectQuery(`FOR UPDATE`).
				WithArgs("r-1").
				WillReturnRows(pgxmock.NewRows([]string{"status", "version", "created_at"}).AddRow(status, int64(2), fixedNow))
			mock.ExpectRollback()

			_, err := s.Update(context.Background(), sampleResource())
			assert.ErrorIs(t, err, repository.ErrInvalid)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdate_UnknownStatusRejectedUpfront(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleResource()
	r.Status = "frozen"

	_, err := s.Update(context.Background(), r)
	assert.ErrorIs(t, err, repository.ErrInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_SoftDeletes(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "version", "created_at"}).AddRow("active", int64(1), fixedNow))
	mock.ExpectExec(`UPDATE resources SET status = \$1, version = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("deleted", int64(2), fixedNow, "r-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "r-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_AlreadyDeletedIsInvalid(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "version", "created_at"}).AddRow("deleted", int64(2), fixedNow))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.Delete(context.Background(), "r-1"), repository.ErrInvalid)
}

func TestDelete_BeginFailureIsAccessFailure(t *testing.T) {
	s, mock := newMockStore(t)
	cause := errors.New("conn busy")

	mock.ExpectBegin().WillReturnError(cause)

	err := s.Delete(context.Background(), "r-1")
	assert.ErrorIs(t, err, repository.ErrAccessFailure)
	assert.ErrorIs(t, err, cause)
}

func TestList_WindowAndEnvelope(t *testing.T) {
	s, mock := newMockStore(t)
	r := sampleResource()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM resources`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery(`SELECT (.+) FROM resources ORDER BY created_at, id LIMIT 10 OFFSET 20`).
		WillReturnRows(resourceRows().AddRow(r.ID, r.Name, r.Kind, "active", r.Attributes, r.Version, r.CreatedAt, r.UpdatedAt))

	env, err := s.List(context.Background(), repository.PageRequest{Index: 3, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, 25, env.Total)
	assert.Equal(t, 3, env.Index)
	assert.Equal(t, 3, env.Count)
	assert.Equal(t, []model.Resource{r}, env.Resources)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_EmptyTableSkipsPageQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM resources`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	env, err := s.List(context.Background(), repository.PageRequest{Index: 1, Size: 50})
	require.NoError(t, err)
	assert.Equal(t, repository.EmptyEnvelope[model.Resource](1), env)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_RunsEmbeddedDDL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS resources`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpSQL_StripsDownSection(t *testing.T) {
	ddl, err := upSQL()
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS resources")
	assert.NotContains(t, ddl, "DROP TABLE")
	assert.NotContains(t, ddl, "+goose")
}

func TestMapPgError(t *testing.T) {
	assert.NoError(t, mapPgError("op", "k", nil))
	assert.ErrorIs(t, mapPgError("op", "k", &pgconn.PgError{Code: pgerrcode.UniqueViolation}), repository.ErrAlreadyExists)
	assert.ErrorIs(t, mapPgError("op", "k", errors.New("eof")), repository.ErrAccessFailure)

	taxonomy := repository.E(repository.KindInvalid, "op", "k", nil)
	assert.Same(t, taxonomy, mapPgError("op", "k", taxonomy))
}

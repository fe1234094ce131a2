package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

const backendName = "cassandra"

type resourceStore struct {
	gw   *gateway.Gateway[*gocql.Session]
	stmt statements
	now  func() time.Time
}

// NewResourceStore returns the cassandra adapter for keyspace. The replication
// factor is only used by EnsureSchema when the keyspace does not exist yet.
func NewResourceStore(gw *gateway.Gateway[*gocql.Session], keyspace string, replicationFactor int) (repository.Store, error) {
	stmt, err := newStatements(keyspace, replicationFactor)
	if err != nil {
		return nil, err
	}
	return &resourceStore{
		gw:   gw,
		stmt: stmt,
		// cassandra timestamps carry milliseconds
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}, nil
}

func (s *resourceStore) Backend() string { return backendName }

func (s *resourceStore) Create(ctx context.Context, r model.Resource) (model.Resource, error) {
	var out model.Resource
	err := s.gw.Execute(ctx, func(ctx context.Context, session *gocql.Session) error {
		var err error
		out, err = create(ctx, sessionWriter{session: session, stmt: s.stmt}, r)
		return err
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

// createWriter is the set of writes Create needs. The row and its index entry live
// in different partitions, so no batch can make them atomic.
type createWriter interface {
	insertRow(ctx context.Context, r model.Resource) (applied bool, err error)
	insertIndex(ctx context.Context, r model.Resource) error
	deleteRow(ctx context.Context, id string) error
}

// undoTimeout bounds the compensating delete, which runs even if ctx is done.
const undoTimeout = 5 * time.Second

// create inserts the row and then its index entry. When the index write fails the
// row is removed again, so a retry is not rejected as a duplicate of a resource
// List can never show. Timestamps are returned at the millisecond precision
// Cassandra stores.
func create(ctx context.Context, w createWriter, r model.Resource) (model.Resource, error) {
	const op = "cassandra.Create"
	r.CreatedAt = r.CreatedAt.UTC().Truncate(time.Millisecond)
	r.UpdatedAt = r.UpdatedAt.UTC().Truncate(time.Millisecond)

	applied, err := w.insertRow(ctx, r)
	if err != nil {
		return model.Resource{}, repository.AccessFailure(op, err)
	}
	if !applied {
		return model.Resource{}, repository.E(repository.KindAlreadyExists, op, r.ID, nil)
	}
	if err := w.insertIndex(ctx, r); err != nil {
		undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
		defer cancel()
		if derr := w.deleteRow(undoCtx, r.ID); derr != nil {
			err = errors.Join(err, fmt.Errorf("undo insert of %q: %w", r.ID, derr))
		}
		return model.Resource{}, repository.AccessFailure(op, err)
	}
	return r, nil
}

type sessionWriter struct {
	session *gocql.Session
	stmt    statements
}

func (w sessionWriter) insertRow(ctx context.Context, r model.Resource) (bool, error) {
	prev := map[string]any{}
	return w.session.Query(w.stmt.insert,
		r.ID, r.Name, r.Kind, string(r.Status), r.Attributes, r.Version, r.CreatedAt, r.UpdatedAt,
	).WithContext(ctx).MapScanCAS(prev)
}

func (w sessionWriter) insertIndex(ctx context.Context, r model.Resource) error {
	return w.session.Query(w.stmt.insertIndex, timeBucket, r.CreatedAt, r.ID).WithContext(ctx).Exec()
}

func (w sessionWriter) deleteRow(ctx context.Context, id string) error {
	return w.session.Query(w.stmt.deleteOne, id).WithContext(ctx).Exec()
}

func (s *resourceStore) Find(ctx context.Context, id string) (model.Resource, bool, error) {
	return gateway.Find(ctx, s.gw, func(ctx context.Context, session *gocql.Session) (model.Resource, bool, error) {
		var row resourceRow
		err := session.Query(s.stmt.selectOne, id).WithContext(ctx).Scan(row.dest()...)
		if errors.Is(err, gocql.ErrNotFound) {
			return model.Resource{}, false, nil
		}
		if err != nil {
			return model.Resource{}, false, repository.AccessFailure("cassandra.Find", err)
		}
		return row.resource(), true, nil
	})
}

func (s *resourceStore) Update(ctx context.Context, r model.Resource) (model.Resource, error) {
	const op = "cassandra.Update"
	if !r.Status.Valid() {
		return model.Resource{}, repository.E(repository.KindInvalid, op, r.ID, nil)
	}
	var out model.Resource
	err := s.gw.Execute(ctx, func(ctx context.Context, session *gocql.Session) error {
		state, err := s.loadState(ctx, session, op, r.ID)
		if err != nil {
			return err
		}
		out = r
		out.Version = state.version + 1
		out.CreatedAt = state.createdAt
		out.UpdatedAt = s.now()

		prev := map[string]any{}
		applied, err := session.Query(s.stmt.update,
			out.Name, out.Kind, string(out.Status), out.Attributes, out.Version, out.UpdatedAt,
			r.ID, state.version,
		).WithContext(ctx).MapScanCAS(prev)
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		return classifyWrite(op, r.ID, applied, prev)
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

func (s *resourceStore) Delete(ctx context.Context, id string) error {
	const op = "cassandra.Delete"
	return s.gw.Execute(ctx, func(ctx context.Context, session *gocql.Session) error {
		state, err := s.loadState(ctx, session, op, id)
		if err != nil {
			return err
		}
		prev := map[string]any{}
		applied, err := session.Query(s.stmt.softDelete,
			state.version+1, s.now(), id, state.version,
		).WithContext(ctx).MapScanCAS(prev)
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		return classifyWrite(op, id, applied, prev)
	})
}

type writeState struct {
	status    string
	version   int64
	createdAt time.Time
}

// loadState reads what a conditional write needs and rejects missing or terminal rows early.
func (s *resourceStore) loadState(ctx context.Context, session *gocql.Session, op, id string) (writeState, error) {
	var st writeState
	err := session.Query(s.stmt.selectState, id).WithContext(ctx).Scan(&st.status, &st.version, &st.createdAt)
	switch {
	case errors.Is(err, gocql.ErrNotFound):
		return writeState{}, repository.E(repository.KindNotFound, op, id, nil)
	case err != nil:
		return writeState{}, repository.AccessFailure(op, err)
	case model.Status(st.status).Terminal():
		return writeState{}, repository.E(repository.KindInvalid, op, id, nil)
	}
	return st, nil
}

// classifyWrite maps the outcome of an `IF status = 'active' AND version = ?` write.
// A row that vanished is NotFound; a row that is terminal or was changed by a
// concurrent writer is Invalid.
func classifyWrite(op, id string, applied bool, prev map[string]any) error {
	if applied {
		return nil
	}
	status, _ := prev["status"].(string)
	if status == "" {
		return repository.E(repository.KindNotFound, op, id, nil)
	}
	return repository.E(repository.KindInvalid, op, id, nil)
}

func (s *resourceStore) List(ctx context.Context, req repository.PageRequest) (repository.Envelope[model.Resource], error) {
	const op = "cassandra.List"
	w := req.Window()
	var (
		total int64
		items []model.Resource
	)
	err := s.gw.Execute(ctx, func(ctx context.Context, session *gocql.Session) error {
		if err := session.Query(s.stmt.count, timeBucket).WithContext(ctx).Scan(&total); err != nil {
			return repository.AccessFailure(op, err)
		}
		offset := int64(w.Offset())
		if total == 0 || offset >= total {
			return nil
		}

		// the index has no OFFSET, so read up to the end of the window and skip the head
		ids := make([]string, 0, w.MaxRows)
		iter := session.Query(s.stmt.pageIDs, timeBucket, int(offset)+w.MaxRows).
			WithContext(ctx).
			PageSize(w.MaxRows).
			Iter()
		var (
			id   string
			seen int64
		)
		for iter.Scan(&id) {
			if seen >= offset {
				ids = append(ids, id)
			}
			seen++
		}
		if err := iter.Close(); err != nil {
			return repository.AccessFailure(op, err)
		}
		if len(ids) == 0 {
			return nil
		}

		byID := make(map[string]model.Resource, len(ids))
		iter = session.Query(s.stmt.selectMany, ids).WithContext(ctx).Iter()
		var row resourceRow
		for iter.Scan(row.dest()...) {
			byID[row.id] = row.resource()
			row = resourceRow{}
		}
		if err := iter.Close(); err != nil {
			return repository.AccessFailure(op, err)
		}
		items = orderByIDs(ids, byID)
		return nil
	})
	if err != nil {
		return repository.Envelope[model.Resource]{}, err
	}
	return repository.Paginate(req, int(total), items), nil
}

// orderByIDs restores index order; ids without a row are dropped.
func orderByIDs(ids []string, byID map[string]model.Resource) []model.Resource {
	out := make([]model.Resource, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *resourceStore) Ping(ctx context.Context) error {
	return s.gw.Execute(ctx, func(ctx context.Context, session *gocql.Session) error {
		return pingSession(ctx, session)
	})
}

func (s *resourceStore) EnsureSchema(ctx context.Context) error {
	return s.gw.Execute(ctx, func(ctx context.Context, session *gocql.Session) error {
		for _, ddl := range s.stmt.schema() {
			if err := session.Query(ddl).WithContext(ctx).Exec(); err != nil {
				return repository.AccessFailure("cassandra.EnsureSchema", err)
			}
		}
		return nil
	})
}

type resourceRow struct {
	id, name, kind, status string
	attributes             map[string]string
	version                int64
	createdAt, updatedAt   time.Time
}

func (r *resourceRow) dest() []any {
	return []any{&r.id, &r.name, &r.kind, &r.status, &r.attributes, &r.version, &r.createdAt, &r.updatedAt}
}

func (r resourceRow) resource() model.Resource {
	var attrs map[string]string
	if len(r.attributes) > 0 {
		attrs = r.attributes
	}
	return model.Resource{
		ID:         r.id,
		Name:       r.name,
		Kind:       r.kind,
		Status:     model.Status(r.status),
		Attributes: attrs,
		Version:    r.version,
		CreatedAt:  r.createdAt.UTC(),
		UpdatedAt:  r.updatedAt.UTC(),
	}
}

var _ repository.Store = (*resourceStore)(nil)

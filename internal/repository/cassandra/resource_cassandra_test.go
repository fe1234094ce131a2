package cassandra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxviazov/storegate/internal/config"
	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

func TestClassifyWrite(t *testing.T) {
	cases := []struct {
		name    string
		applied bool
		prev    map[string]any
		want    error
	}{
		{name: "applied", applied: true, prev: map[string]any{}, want: nil},
		{name: "row vanished", prev: map[string]any{"status": "", "version": int64(0)}, want: repository.ErrNotFound},
		{name: "no previous columns", prev: map[string]any{}, want: repository.ErrNotFound},
		{name: "archived", prev: map[string]any{"status": "archived", "version": int64(2)}, want: repository.ErrInvalid},
		{name: "deleted", prev: map[string]any{"status": "deleted", "version": int64(2)}, want: repository.ErrInvalid},
		{name: "stale version", prev: map[string]any{"status": "active", "version": int64(9)}, want: repository.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyWrite("cassandra.Update", "k", tc.applied, tc.prev)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewStatements_QualifiesKeyspace(t *testing.T) {
	st, err := newStatements("inventory", 3)
	require.NoError(t, err)

	assert.Contains(t, st.createKeyspace, "CREATE KEYSPACE IF NOT EXISTS inventory")
	assert.Contains(t, st.createKeyspace, "'replication_factor': 3")
	assert.Contains(t, st.createTable, "CREATE TABLE IF NOT EXISTS inventory.resources (")
	assert.Contains(t, st.createIndexTable, "PRIMARY KEY ((bucket), created_at, id)")
	assert.Contains(t, st.insert, "IF NOT EXISTS")
	assert.Contains(t, st.update, "IF status = 'active' AND version = ?")
	assert.Contains(t, st.softDelete, "SET status = 'deleted'")
	assert.Equal(t, "SELECT id FROM inventory.resources_by_time WHERE bucket = ? LIMIT ?", st.pageIDs)
	assert.Equal(t, []string{st.createKeyspace, st.createTable, st.createIndexTable}, st.schema())
}

func TestNewStatements_DefaultsReplication(t *testing.T) {
	st, err := newStatements("ks", 0)
	require.NoError(t, err)
	assert.Contains(t, st.createKeyspace, "'replication_factor': 1")
}

func TestNewStatements_RejectsBadKeyspace(t *testing.T) {
	for _, ks := range []string{"", "1abc", "ks; DROP KEYSPACE x", "with-dash"} {
		_, err := newStatements(ks, 1)
		assert.Error(t, err, ks)
	}
}

func TestNewResourceStore_RejectsBadKeyspace(t *testing.T) {
	gw := gateway.New[*gocql.Session](backendName, NewPool(gocql.NewCluster("127.0.0.1")))
	_, err := NewResourceStore(gw, "bad keyspace", 1)
	assert.Error(t, err)
}

func TestOrderByIDs(t *testing.T) {
	byID := map[string]model.Resource{
		"a": {ID: "a"},
		"c": {ID: "c"},
	}
	got := orderByIDs([]string{"c", "b", "a"}, byID)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestResourceRow_Resource(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	row := resourceRow{
		id: "r", name: "n", kind: "k", status: "archived",
		attributes: map[string]string{},
		version:    4,
		createdAt:  at,
		updatedAt:  at,
	}
	r := row.resource()
	assert.Equal(t, model.StatusArchived, r.Status)
	assert.Nil(t, r.Attributes)
	assert.Equal(t, time.UTC, r.CreatedAt.Location())
	assert.True(t, r.CreatedAt.Equal(at))
	assert.Len(t, row.dest(), 8)
}

func unreachableStore(t *testing.T) repository.Store {
	t.Helper()
	pool := gateway.PoolFuncs[*gocql.Session]{
		AcquireFunc: func(context.Context) (*gocql.Session, error) {
			return nil, errors.New("gocql: unable to create session: unable to discover protocol version")
		},
	}
	s, err := NewResourceStore(gateway.New[*gocql.Session](backendName, pool), "ks", 1)
	require.NoError(t, err)
	return s
}

func TestFind_UnreachableIsAbsent(t *testing.T) {
	_, ok, err := unreachableStore(t).Find(context.Background(), "r-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWrites_UnreachableIsAccessFailure(t *testing.T) {
	s := unreachableStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, model.Resource{ID: "r-1", Status: model.StatusActive})
	assert.ErrorIs(t, err, repository.ErrAccessFailure)
	assert.ErrorIs(t, s.Delete(ctx, "r-1"), repository.ErrAccessFailure)
	assert.ErrorIs(t, s.EnsureSchema(ctx), repository.ErrAccessFailure)
	_, err = s.List(ctx, repository.PageRequest{Index: 1, Size: 10})
	assert.ErrorIs(t, err, repository.ErrAccessFailure)
}

func TestUpdate_UnknownStatusIsInvalid(t *testing.T) {
	_, err := unreachableStore(t).Update(context.Background(), model.Resource{ID: "r-1", Status: "frozen"})
	assert.ErrorIs(t, err, repository.ErrInvalid)
}

func TestPool_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPool(gocql.NewCluster("127.0.0.1")).Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewCluster(t *testing.T) {
	cluster, err := NewCluster(config.CassandraConfig{
		Hosts:       []string{"10.0.0.1", "10.0.0.2"},
		Port:        9142,
		Username:    "svc",
		Password:    "secret",
		Consistency: "local_quorum",
		Timeout:     3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cluster.Hosts)
	assert.Equal(t, 9142, cluster.Port)
	assert.Equal(t, gocql.LocalQuorum, cluster.Consistency)
	assert.Equal(t, 3*time.Second, cluster.Timeout)
	assert.Equal(t, 10*time.Second, cluster.ConnectTimeout)
	assert.Empty(t, cluster.Keyspace)
	assert.Equal(t, gocql.PasswordAuthenticator{Username: "svc", Password: "secret"}, cluster.Authenticator)
}

func TestNewCluster_BadConsistency(t *testing.T) {
	_, err := NewCluster(config.CassandraConfig{Hosts: []string{"h"}, Consistency: "most"})
	assert.Error(t, err)
}

type fakeWriter struct {
	applied  bool
	rowErr   error
	indexErr error
	undoErr  error

	indexed    []string
	deleted    []string
	undoCtxErr error
}

func (f *fakeWriter) insertRow(context.Context, model.Resource) (bool, error) {
	return f.applied, f.rowErr
}

func (f *fakeWriter) insertIndex(_ context.Context, r model.Resource) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, r.ID)
	return nil
}

func (f *fakeWriter) deleteRow(ctx context.Context, id string) error {
	f.undoCtxErr = ctx.Err()
	f.deleted = append(f.deleted, id)
	return f.undoErr
}

func newResource(id string) model.Resource {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return model.Resource{ID: id, Name: "alpha", Kind: "k", Status: model.StatusActive, Version: 1, CreatedAt: now, UpdatedAt: now}
}

func TestCreate_WritesRowThenIndex(t *testing.T) {
	w := &fakeWriter{applied: true}
	_, err := create(context.Background(), w, newResource("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, w.indexed)
	assert.Empty(t, w.deleted)
}

func TestCreate_ReturnsStoredPrecision(t *testing.T) {
	r := newResource("a")
	r.CreatedAt = r.CreatedAt.Add(1234567 * time.Nanosecond)
	r.UpdatedAt = r.CreatedAt

	got, err := create(context.Background(), &fakeWriter{applied: true}, r)
	require.NoError(t, err)
	want := newResource("a").CreatedAt.Add(time.Millisecond)
	assert.Equal(t, want, got.CreatedAt)
	assert.Equal(t, want, got.UpdatedAt)
}

func TestCreate_DuplicateSkipsIndex(t *testing.T) {
	w := &fakeWriter{applied: false}
	_, err := create(context.Background(), w, newResource("a"))
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	assert.Empty(t, w.indexed)
	assert.Empty(t, w.deleted)
}

func TestCreate_RowFailureIsAccessFailure(t *testing.T) {
	w := &fakeWriter{rowErr: gocql.ErrTimeoutNoResponse}
	_, err := create(context.Background(), w, newResource("a"))
	assert.ErrorIs(t, err, repository.ErrAccessFailure)
	assert.Empty(t, w.deleted)
}

func TestCreate_IndexFailureRemovesRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &fakeWriter{applied: true, indexErr: gocql.ErrTimeoutNoResponse}

	_, err := create(ctx, w, newResource("a"))
	assert.ErrorIs(t, err, repository.ErrAccessFailure)
	assert.ErrorIs(t, err, gocql.ErrTimeoutNoResponse)
	assert.Equal(t, []string{"a"}, w.deleted)
	// the undo must run even when the caller gave up
	assert.NoError(t, w.undoCtxErr)
}

func TestCreate_UndoFailureIsReported(t *testing.T) {
	undo := errors.New("unavailable")
	w := &fakeWriter{applied: true, indexErr: gocql.ErrTimeoutNoResponse, undoErr: undo}

	_, err := create(context.Background(), w, newResource("a"))
	assert.ErrorIs(t, err, repository.ErrAccessFailure)
	assert.ErrorIs(t, err, gocql.ErrTimeoutNoResponse)
	assert.ErrorIs(t, err, undo)
}

func TestNewStatements_DeleteOneIsConditional(t *testing.T) {
	st, err := newStatements("inventory", 1)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM inventory.resources WHERE id = ? IF EXISTS", st.deleteOne)
}

// Package memory is an in-process store for development runs and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

const backendName = "memory"

// table is the handle: every call sees the same guarded map.
type table struct {
	mu   sync.RWMutex
	rows map[string]model.Resource
}

type resourceStore struct {
	gw  *gateway.Gateway[*table]
	now func() time.Time
}

// Option tunes the store's gateway.
type Option func(*[]gateway.Option[*table])

// WithStrictFind makes Find report an unusable store instead of "absent".
func WithStrictFind(strict bool) Option {
	return func(opts *[]gateway.Option[*table]) {
		if strict {
			*opts = append(*opts, gateway.WithStrictFind[*table]())
		}
	}
}

// NewResourceStore returns an empty in-memory store. observer may be nil.
func NewResourceStore(logger zerolog.Logger, observer gateway.Observer, opts ...Option) repository.Store {
	t := &table{rows: map[string]model.Resource{}}
	pool := gateway.PoolFuncs[*table]{
		AcquireFunc: func(ctx context.Context) (*table, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return t, nil
		},
	}
	gwOpts := []gateway.Option[*table]{
		gateway.WithLogger[*table](logger),
		gateway.WithObserver[*table](observer),
	}
	for _, opt := range opts {
		opt(&gwOpts)
	}
	return &resourceStore{
		gw:  gateway.New[*table](backendName, pool, gwOpts...),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *resourceStore) Backend() string { return backendName }

func (s *resourceStore) Create(ctx context.Context, r model.Resource) (model.Resource, error) {
	err := s.gw.Execute(ctx, func(_ context.Context, t *table) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.rows[r.ID]; ok {
			return repository.E(repository.KindAlreadyExists, "memory.Create", r.ID, nil)
		}
		t.rows[r.ID] = clone(r)
		return nil
	})
	if err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

func (s *resourceStore) Find(ctx context.Context, id string) (model.Resource, bool, error) {
	return gateway.Find(ctx, s.gw, func(_ context.Context, t *table) (model.Resource, bool, error) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		r, ok := t.rows[id]
		return clone(r), ok, nil
	})
}

func (s *resourceStore) Update(ctx context.Context, r model.Resource) (model.Resource, error) {
	if !r.Status.Valid() {
		return model.Resource{}, repository.E(repository.KindInvalid, "memory.Update", r.ID, nil)
	}
	return s.write(ctx, "memory.Update", r.ID, func(current model.Resource) model.Resource {
		next := clone(r)
		next.CreatedAt = current.CreatedAt
		return next
	})
}

func (s *resourceStore) Delete(ctx context.Context, id string) error {
	_, err := s.write(ctx, "memory.Delete", id, func(current model.Resource) model.Resource {
		current.Status = model.StatusDeleted
		return current
	})
	return err
}

func (s *resourceStore) write(ctx context.Context, op, id string, mutate func(model.Resource) model.Resource) (model.Resource, error) {
	var out model.Resource
	err := s.gw.Execute(ctx, func(_ context.Context, t *table) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		current, ok := t.rows[id]
		if !ok {
			return repository.E(repository.KindNotFound, op, id, nil)
		}
		if current.Status.Terminal() {
			return repository.E(repository.KindInvalid, op, id, nil)
		}
		out = mutate(current)
		out.ID = id
		out.Version = current.Version + 1
		out.UpdatedAt = s.now()
		t.rows[id] = clone(out)
		return nil
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

func (s *resourceStore) List(ctx context.Context, req repository.PageRequest) (repository.Envelope[model.Resource], error) {
	w := req.Window()
	var (
		total int
		items []model.Resource
	)
	err := s.gw.Execute(ctx, func(_ context.Context, t *table) error {
		t.mu.RLock()
		all := make([]model.Resource, 0, len(t.rows))
		for _, r := range t.rows {
			all = append(all, clone(r))
		}
		t.mu.RUnlock()

		sort.Slice(all, func(i, j int) bool {
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.Before(all[j].CreatedAt)
			}
			return all[i].ID < all[j].ID
		})
		total = len(all)
		if start := w.Offset(); start < total {
			items = all[start:min(total, start+w.MaxRows)]
		}
		return nil
	})
	if err != nil {
		return repository.Envelope[model.Resource]{}, err
	}
	return repository.Paginate(req, total, items), nil
}

func (s *resourceStore) Ping(ctx context.Context) error {
	return s.gw.Execute(ctx, func(context.Context, *table) error { return nil })
}

func (s *resourceStore) EnsureSchema(ctx context.Context) error {
	return s.gw.Execute(ctx, func(context.Context, *table) error { return nil })
}

// clone copies the attributes map so callers cannot mutate stored rows.
func clone(r model.Resource) model.Resource {
	if r.Attributes != nil {
		attrs := make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		r.Attributes = attrs
	}
	return r
}

var _ repository.Store = (*resourceStore)(nil)

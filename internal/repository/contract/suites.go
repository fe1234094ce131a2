package contract

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

// StoreFactory returns a fresh, empty store and a cleanup func.
type StoreFactory func(t *testing.T) (repository.Store, func())

// PingerFactory returns a pinger and a cleanup func.
type PingerFactory func(t *testing.T) (repository.Pinger, func())

var base = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// NewResource builds an active resource created offset seconds after a fixed instant.
func NewResource(id string, offset int) model.Resource {
	at := base.Add(time.Duration(offset) * time.Second)
	return model.Resource{
		ID:         id,
		Name:       "resource " + id,
		Kind:       "widget",
		Status:     model.StatusActive,
		Attributes: map[string]string{"owner": "team-" + id},
		Version:    1,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func RunResourceRepositoryContract(t *testing.T, makeStore StoreFactory) {
	t.Helper()

	t.Run("create_and_find", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		in := NewResource("a1", 0)
		if _, err := s.Create(ctx, in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		got, ok, err := s.Find(ctx, in.ID)
		if err != nil || !ok {
			t.Fatalf("find failed: ok=%v err=%v", ok, err)
		}
		assertSameResource(t, in, got)
	})

	t.Run("create_duplicate", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		if _, err := s.Create(ctx, NewResource("dup", 0)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		_, err := s.Create(ctx, NewResource("dup", 1))
		if !errors.Is(err, repository.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("find_missing_is_absent", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		_, ok, err := s.Find(context.Background(), "nope")
		if err != nil || ok {
			t.Fatalf("expected absent without error, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("update_bumps_version", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		in := NewResource("u1", 0)
		if _, err := s.Create(ctx, in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		in.Name = "renamed"
		in.Attributes = map[string]string{"owner": "someone-else"}
		out, err := s.Update(ctx, in)
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if out.Version != in.Version+1 || out.Name != "renamed" {
			t.Fatalf("unexpected update result: %+v", out)
		}
		if !out.CreatedAt.Equal(in.CreatedAt) || !out.UpdatedAt.After(in.UpdatedAt) {
			t.Fatalf("timestamps not maintained: %+v", out)
		}
		got, ok, err := s.Find(ctx, in.ID)
		if err != nil || !ok {
			t.Fatalf("find failed: ok=%v err=%v", ok, err)
		}
		if got.Version != out.Version || got.Attributes["owner"] != "someone-else" {
			t.Fatalf("update not persisted: %+v", got)
		}
	})

	t.Run("update_missing", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		_, err := s.Update(context.Background(), NewResource("ghost", 0))
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete_missing", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		err := s.Delete(context.Background(), "ghost")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete_is_soft_and_terminal", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		in := NewResource("d1", 0)
		if _, err := s.Create(ctx, in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := s.Delete(ctx, in.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		got, ok, err := s.Find(ctx, in.ID)
		if err != nil || !ok || got.Status != model.StatusDeleted {
			t.Fatalf("expected soft-deleted row, got ok=%v err=%v status=%q", ok, err, got.Status)
		}
		if err := s.Delete(ctx, in.ID); !errors.Is(err, repository.ErrInvalid) {
			t.Fatalf("second delete: expected ErrInvalid, got %v", err)
		}
		if _, err := s.Update(ctx, in); !errors.Is(err, repository.ErrInvalid) {
			t.Fatalf("update after delete: expected ErrInvalid, got %v", err)
		}
	})

	t.Run("archived_is_terminal", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		in := NewResource("ar1", 0)
		if _, err := s.Create(ctx, in); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		in.Status = model.StatusArchived
		if _, err := s.Update(ctx, in); err != nil {
			t.Fatalf("archive failed: %v", err)
		}
		in.Status = model.StatusActive
		if _, err := s.Update(ctx, in); !errors.Is(err, repository.ErrInvalid) {
			t.Fatalf("update archived: expected ErrInvalid, got %v", err)
		}
	})

	t.Run("list_pagination_total", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		for i := 0; i < 25; i++ {
			if _, err := s.Create(ctx, NewResource(fmt.Sprintf("p%02d", i), i)); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}

		first, err := s.List(ctx, repository.PageRequest{Index: 1, Size: 10})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if first.Total != 25 || first.Count != 3 || first.Index != 1 || len(first.Resources) != 10 {
			t.Fatalf("unexpected first page: total=%d count=%d index=%d len=%d",
				first.Total, first.Count, first.Index, len(first.Resources))
		}
		if first.Resources[0].ID != "p00" || first.Resources[9].ID != "p09" {
			t.Fatalf("first page not ordered by creation: %s..%s", first.Resources[0].ID, first.Resources[9].ID)
		}

		last, err := s.List(ctx, repository.PageRequest{Index: 3, Size: 10})
		if err != nil {
			t.Fatalf("list last: %v", err)
		}
		if len(last.Resources) != 5 || last.Resources[0].ID != "p20" {
			t.Fatalf("unexpected last page: len=%d", len(last.Resources))
		}

		past, err := s.List(ctx, repository.PageRequest{Index: 9, Size: 10})
		if err != nil {
			t.Fatalf("list past end: %v", err)
		}
		if past.Total != 25 || len(past.Resources) != 0 || past.Resources == nil {
			t.Fatalf("unexpected page past end: %+v", past)
		}
	})

	t.Run("list_clamps_page_size", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		for i := 0; i < 12; i++ {
			if _, err := s.Create(ctx, NewResource(fmt.Sprintf("c%02d", i), i)); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		env, err := s.List(ctx, repository.PageRequest{Index: 0, Size: 1})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(env.Resources) != repository.MinPageSize || env.Index != 1 || env.Count != 2 {
			t.Fatalf("size not clamped: len=%d index=%d count=%d", len(env.Resources), env.Index, env.Count)
		}
	})

	t.Run("list_empty", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		env, err := s.List(context.Background(), repository.PageRequest{Index: 1, Size: 20})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if env.Total != 0 || env.Count != 0 || env.Resources == nil || len(env.Resources) != 0 {
			t.Fatalf("unexpected empty envelope: %+v", env)
		}
	})

	t.Run("ensure_schema_idempotent", func(t *testing.T) {
		s, cleanup := makeStore(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			if err := s.EnsureSchema(ctx); err != nil {
				t.Fatalf("ensure schema #%d: %v", i+1, err)
			}
		}
	})
}

func RunPingerContract(t *testing.T, makePinger PingerFactory) {
	t.Helper()
	t.Run("ping_ok", func(t *testing.T) {
		p, cleanup := makePinger(t)
		t.Cleanup(cleanup)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	})
}

func assertSameResource(t *testing.T, want, got model.Resource) {
	t.Helper()
	if got.ID != want.ID || got.Name != want.Name || got.Kind != want.Kind ||
		got.Status != want.Status || got.Version != want.Version {
		t.Fatalf("mismatch: want %+v, got %+v", want, got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamps mismatch: want %v/%v, got %v/%v", want.CreatedAt, want.UpdatedAt, got.CreatedAt, got.UpdatedAt)
	}
	if len(got.Attributes) != len(want.Attributes) {
		t.Fatalf("attributes mismatch: want %v, got %v", want.Attributes, got.Attributes)
	}
	for k, v := range want.Attributes {
		if got.Attributes[k] != v {
			t.Fatalf("attribute %q: want %q, got %q", k, v, got.Attributes[k])
		}
	}
}

package service

import (
	"fmt"
	"sort"

	"github.com/maxviazov/storegate/internal/repository"
)

// Registry maps backend names to wired stores. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	stores map[string]repository.Store
}

// NewRegistry indexes stores by their Backend name. A later store with the same
// name replaces an earlier one.
func NewRegistry(stores ...repository.Store) *Registry {
	r := &Registry{stores: make(map[string]repository.Store, len(stores))}
	for _, s := range stores {
		r.stores[s.Backend()] = s
	}
	return r
}

// Store returns the store registered under name.
func (r *Registry) Store(name string) (repository.Store, error) {
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return s, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pingers returns every store as a named readiness probe.
func (r *Registry) Pingers() map[string]repository.Pinger {
	out := make(map[string]repository.Pinger, len(r.stores))
	for name, s := range r.stores {
		out[name] = s
	}
	return out
}

// Stores returns the registered stores in name order.
func (r *Registry) Stores() []repository.Store {
	out := make([]repository.Store, 0, len(r.stores))
	for _, name := range r.Names() {
		out = append(out, r.stores[name])
	}
	return out
}

package repository

import (
	"context"

	"github.com/maxviazov/storegate/internal/model"
)

// Pinger represents a minimal readiness probe capability.
// I use it to decouple health checks from storage implementation details.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ResourceRepository is the backend-agnostic contract every store adapter implements.
// Implementations return only errors from errors.go; backend-native errors stay inside.
type ResourceRepository interface {
	// Create persists r as given. A duplicate ID yields KindAlreadyExists.
	Create(ctx context.Context, r model.Resource) (model.Resource, error)
	// Find reports found=false for a missing key, and also when the store could not
	// be reached. It never returns KindNotFound.
	Find(ctx context.Context, id string) (model.Resource, bool, error)
	// Update replaces name, kind, status and attributes, bumping the version.
	// Missing keys yield KindNotFound, terminal resources KindInvalid.
	Update(ctx context.Context, r model.Resource) (model.Resource, error)
	// Delete soft-deletes the resource with the same error mapping as Update.
	Delete(ctx context.Context, id string) error
	// List returns one page ordered by creation time.
	List(ctx context.Context, req PageRequest) (Envelope[model.Resource], error)
}

// SchemaManager creates whatever tables/indexes an adapter needs. It is idempotent.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// Store is a fully wired adapter as the service layer sees it.
type Store interface {
	ResourceRepository
	SchemaManager
	Pinger
	// Backend is the configuration name of the store ("postgres", "redis", ...).
	Backend() string
}

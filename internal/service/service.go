// Package service holds business logic orchestration across repositories and handlers.
// Kept intentionally lean: only use-case coordination, validation and domain error shaping.
package service

import (
	"context"
	"errors"

	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

// ErrInvalidInput is the marker error for aggregated validation failures (maps to HTTP 400).
// Field-level details are retrieved via FieldErrors(err).
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownBackend is returned when a request names a store that is not configured.
var ErrUnknownBackend = errors.New("unknown backend")

// FieldError describes a single invalid field in a client request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// invalidInputError aggregates multiple FieldError instances and unwraps to ErrInvalidInput.
type invalidInputError struct {
	fields []FieldError
}

func (e *invalidInputError) Error() string        { return ErrInvalidInput.Error() }
func (e *invalidInputError) Unwrap() error        { return ErrInvalidInput }
func (e *invalidInputError) Fields() []FieldError { return e.fields }

func newInvalidInput(fe []FieldError) error {
	if len(fe) == 0 {
		return nil
	}
	return &invalidInputError{fields: fe}
}

// FieldErrors extracts field errors from an aggregated validation error.
func FieldErrors(err error) []FieldError {
	var ie *invalidInputError
	if errors.As(err, &ie) {
		return ie.Fields()
	}
	return nil
}

// ResourceService is the backend-agnostic resource use-case surface.
// backend names a store from the Registry ("postgres", "redis", ...).
type ResourceService interface {
	Create(ctx context.Context, backend string, in model.CreateResourceInput) (model.Resource, error)
	Get(ctx context.Context, backend, id string) (model.Resource, error)
	Update(ctx context.Context, backend, id string, in model.UpdateResourceInput) (model.Resource, error)
	Delete(ctx context.Context, backend, id string) error
	List(ctx context.Context, backend string, page repository.PageRequest) (repository.Envelope[model.Resource], error)
	Backends() []string
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

// resourceService holds resource use-case logic: validation + orchestration, no store details.
type resourceService struct {
	stores *Registry
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewResourceService(stores *Registry, logger zerolog.Logger) ResourceService {
	l := logger.With().Str("module", "service").Str("component", "resource").Logger()
	return &resourceService{
		stores: stores,
		log:    l,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *resourceService) Backends() []string { return s.stores.Names() }

func (s *resourceService) Create(ctx context.Context, backend string, in model.CreateResourceInput) (model.Resource, error) {
	start := time.Now()
	store, err := s.stores.Store(backend)
	if err != nil {
		return model.Resource{}, err
	}
	in.Name, in.Kind = trimInput(in.Name, in.Kind)
	if err := validateStruct(in); err != nil {
		s.log.Debug().Str("backend", backend).Interface("field_errors", FieldErrors(err)).Msg("resource validation failed")
		return model.Resource{}, err
	}

	now := s.now()
	r := model.Resource{
		ID:         in.ID,
		Name:       in.Name,
		Kind:       in.Kind,
		Status:     model.StatusActive,
		Attributes: in.Attributes,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if r.ID == "" {
		r.ID = s.newID()
	}

	out, err := store.Create(ctx, r)
	if err != nil {
		// Stores surface taxonomy errors already, do not wrap.
		s.log.Error().Err(err).Str("backend", backend).Str("id", r.ID).Msg("create resource failed")
		return model.Resource{}, err
	}
	s.log.Info().Dur("took", time.Since(start)).Str("backend", backend).Str("id", out.ID).Msg("resource created")
	return out, nil
}

// Get turns an absent resource into ErrNotFound: at this boundary the caller asked
// for something specific and must learn it is not there.
func (s *resourceService) Get(ctx context.Context, backend, id string) (model.Resource, error) {
	store, err := s.stores.Store(backend)
	if err != nil {
		return model.Resource{}, err
	}
	if id == "" {
		return model.Resource{}, newInvalidInput([]FieldError{{Field: "id", Message: "must not be empty"}})
	}
	r, ok, err := store.Find(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("backend", backend).Str("id", id).Msg("find resource failed")
		return model.Resource{}, err
	}
	if !ok {
		return model.Resource{}, repository.E(repository.KindNotFound, "service.Get", id, nil)
	}
	return r, nil
}

func (s *resourceService) Update(ctx context.Context, backend, id string, in model.UpdateResourceInput) (model.Resource, error) {
	store, err := s.stores.Store(backend)
	if err != nil {
		return model.Resource{}, err
	}
	in.Name, in.Kind = trimInput(in.Name, in.Kind)
	if err := validateStruct(in); err != nil {
		return model.Resource{}, err
	}
	if id == "" {
		return model.Resource{}, newInvalidInput([]FieldError{{Field: "id", Message: "must not be empty"}})
	}

	out, err := store.Update(ctx, model.Resource{
		ID:         id,
		Name:       in.Name,
		Kind:       in.Kind,
		Status:     in.Status,
		Attributes: in.Attributes,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("backend", backend).Str("id", id).Msg("update resource failed")
		return model.Resource{}, err
	}
	s.log.Info().Str("backend", backend).Str("id", id).Int64("version", out.Version).Msg("resource updated")
	return out, nil
}

func (s *resourceService) Delete(ctx context.Context, backend, id string) error {
	store, err := s.stores.Store(backend)
	if err != nil {
		return err
	}
	if id == "" {
		return newInvalidInput([]FieldError{{Field: "id", Message: "must not be empty"}})
	}
	if err := store.Delete(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("backend", backend).Str("id", id).Msg("delete resource failed")
		return err
	}
	s.log.Info().Str("backend", backend).Str("id", id).Msg("resource deleted")
	return nil
}

// List passes the raw page request through; stores clamp it with the paging calculator.
func (s *resourceService) List(ctx context.Context, backend string, page repository.PageRequest) (repository.Envelope[model.Resource], error) {
	store, err := s.stores.Store(backend)
	if err != nil {
		return repository.Envelope[model.Resource]{}, err
	}
	res, err := store.List(ctx, page)
	if err != nil {
		s.log.Error().Err(err).Str("backend", backend).Int("page", page.Index).Int("size", page.Size).Msg("list resources failed")
		return repository.Envelope[model.Resource]{}, err
	}
	return res, nil
}

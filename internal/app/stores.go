// Package app assembles the configured stores behind their gateways.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maxviazov/storegate/internal/config"
	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/repository"
	"github.com/maxviazov/storegate/internal/repository/cassandra"
	"github.com/maxviazov/storegate/internal/repository/elasticsearch"
	"github.com/maxviazov/storegate/internal/repository/memory"
	"github.com/maxviazov/storegate/internal/repository/postgres"
	redisrepo "github.com/maxviazov/storegate/internal/repository/redis"
)

// Stores owns every opened store plus the clients behind them.
type Stores struct {
	List    []repository.Store
	closers []func()
	// migrations run before EnsureSchema in Migrate
	migrations []func(context.Context) error
}

// Close releases backend clients in reverse open order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// EnsureSchema prepares every store; failures are joined so one broken backend
// does not hide another.
func (s *Stores) EnsureSchema(ctx context.Context, logger zerolog.Logger) error {
	var errs []error
	for _, st := range s.List {
		if err := st.EnsureSchema(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Backend(), err))
			continue
		}
		logger.Info().Str("backend", st.Backend()).Msg("schema ready")
	}
	return errors.Join(errs...)
}

// Migrate applies versioned migrations where a backend has them, then
// EnsureSchema everywhere.
func (s *Stores) Migrate(ctx context.Context, logger zerolog.Logger) error {
	for _, m := range s.migrations {
		if err := m(ctx); err != nil {
			return err
		}
	}
	return s.EnsureSchema(ctx, logger)
}

// Open connects every enabled backend. The memory store is always present.
// On error everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, observer gateway.Observer) (*Stores, error) {
	s := &Stores{}
	s.List = append(s.List, memory.NewResourceStore(logger, observer, memory.WithStrictFind(cfg.Gateway.StrictFind)))

	if cfg.Postgres.Enabled {
		pool, err := postgres.Connect(ctx, cfg.Postgres, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.migrations = append(s.migrations, func(ctx context.Context) error { return postgres.Migrate(ctx, pool) })
		gw := gateway.New("postgres", postgres.NewPool(pool), gatewayOptions[postgres.DB](cfg.Gateway, logger, observer)...)
		s.List = append(s.List, postgres.NewResourceStore(gw))
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		gw := gateway.New("redis", redisrepo.NewPool(client), gatewayOptions[*goredis.Conn](cfg.Gateway, logger, observer)...)
		s.List = append(s.List, redisrepo.NewResourceStore(gw, cfg.Redis.KeyPrefix))
	}

	if cfg.Cassandra.Enabled {
		cluster, err := cassandra.Connect(ctx, cfg.Cassandra, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		gw := gateway.New("cassandra", cassandra.NewPool(cluster), gatewayOptions[*gocql.Session](cfg.Gateway, logger, observer)...)
		store, err := cassandra.NewResourceStore(gw, cfg.Cassandra.Keyspace, cfg.Cassandra.ReplicationFactor)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.List = append(s.List, store)
	}

	if cfg.Elasticsearch.Enabled {
		pool, err := elasticsearch.Connect(ctx, cfg.Elasticsearch, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		gw := gateway.New("elasticsearch", pool, gatewayOptions[*elasticsearch.Conn](cfg.Gateway, logger, observer)...)
		s.List = append(s.List, elasticsearch.NewResourceStore(gw, cfg.Elasticsearch.Index))
	}

	names := make([]string, 0, len(s.List))
	for _, st := range s.List {
		names = append(names, st.Backend())
	}
	logger.Info().Strs("backends", names).Msg("stores opened")
	return s, nil
}

func gatewayOptions[H any](cfg config.GatewayConfig, logger zerolog.Logger, observer gateway.Observer) []gateway.Option[H] {
	opts := []gateway.Option[H]{
		gateway.WithLogger[H](logger),
		gateway.WithObserver[H](observer),
	}
	if cfg.StrictFind {
		opts = append(opts, gateway.WithStrictFind[H]())
	}
	return opts
}

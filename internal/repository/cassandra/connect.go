package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/maxviazov/storegate/internal/config"
)

// NewCluster turns cfg into a gocql cluster config. The keyspace is left unset on
// purpose: sessions must be able to run CREATE KEYSPACE, so every statement
// qualifies its table with the keyspace instead.
func NewCluster(cfg config.CassandraConfig) (*gocql.ClusterConfig, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.Consistency = gocql.Quorum
	if cfg.Consistency != "" {
		c, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("invalid cassandra consistency: %w", err)
		}
		cluster.Consistency = c
	}

	cluster.Timeout = 10 * time.Second
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	cluster.ConnectTimeout = 10 * time.Second
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	return cluster, nil
}

// Connect verifies the cluster is reachable by opening a throwaway session.
// Stores open their own sessions per call through NewPool.
func Connect(ctx context.Context, cfg config.CassandraConfig, logger zerolog.Logger) (*gocql.ClusterConfig, error) {
	cluster, err := NewCluster(cfg)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		session, err := cluster.CreateSession()
		if err != nil {
			return retry.RetryableError(err)
		}
		defer session.Close()
		if err := pingSession(ctx, session); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra: %w", err)
	}

	logger.Info().
		Strs("hosts", cfg.Hosts).
		Str("keyspace", cfg.Keyspace).
		Str("consistency", cluster.Consistency.String()).
		Msg("connected to Cassandra")
	return cluster, nil
}

func pingSession(ctx context.Context, session *gocql.Session) error {
	var version string
	return session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&version)
}

package cassandra

import (
	"context"

	"github.com/gocql/gocql"

	"github.com/maxviazov/storegate/internal/gateway"
)

type sessionPool struct{ cluster *gocql.ClusterConfig }

// NewPool opens a fresh session for every call and closes it on release.
// The session never outlives the operation it was opened for.
func NewPool(cluster *gocql.ClusterConfig) gateway.Pool[*gocql.Session] {
	return &sessionPool{cluster: cluster}
}

func (p *sessionPool) Acquire(ctx context.Context) (*gocql.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.cluster.CreateSession()
}

func (p *sessionPool) Release(session *gocql.Session) error {
	session.Close()
	return nil
}

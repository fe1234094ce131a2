package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/maxviazov/storegate/internal/gateway"
)

type connPool struct{ client *goredis.Client }

// NewPool hands out one dedicated connection per call. Acquire verifies it with
// PING so a dead server is reported before the operation runs.
func NewPool(client *goredis.Client) gateway.Pool[*goredis.Conn] {
	return &connPool{client: client}
}

func (p *connPool) Acquire(ctx context.Context) (*goredis.Conn, error) {
	conn := p.client.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (p *connPool) Release(conn *goredis.Conn) error {
	return conn.Close()
}

package elasticsearch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/maxviazov/storegate/internal/config"
	"github.com/maxviazov/storegate/internal/gateway"
)

// Conn is the per-call handle: a client bound to a transport nobody else uses.
type Conn struct {
	*elasticsearch.Client
	transport *http.Transport
}

type clientPool struct{ cfg config.ElasticsearchConfig }

// NewPool builds a client on a fresh transport for every call and checks it with
// HEAD / before handing it out. Release drops the transport's idle connections.
func NewPool(cfg config.ElasticsearchConfig) gateway.Pool[*Conn] {
	return &clientPool{cfg: cfg}
}

func (p *clientPool) Acquire(ctx context.Context) (*Conn, error) {
	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   2,
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: p.cfg.Addresses,
		Username:  p.cfg.Username,
		Password:  p.cfg.Password,
		Transport: tr,
	})
	if err != nil {
		return nil, err
	}

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		tr.CloseIdleConnections()
		return nil, err
	}
	res.Body.Close()
	if res.IsError() {
		tr.CloseIdleConnections()
		return nil, fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return &Conn{Client: client, transport: tr}, nil
}

func (p *clientPool) Release(c *Conn) error {
	c.transport.CloseIdleConnections()
	return nil
}

// Connect waits until the cluster answers a ping and returns the per-call pool.
func Connect(ctx context.Context, cfg config.ElasticsearchConfig, logger zerolog.Logger) (gateway.Pool[*Conn], error) {
	pool := NewPool(cfg)
	backoff := retry.WithMaxRetries(4, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		return pool.Release(c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}

	logger.Info().
		Strs("addresses", cfg.Addresses).
		Str("index", cfg.Index).
		Msg("connected to Elasticsearch")
	return pool, nil
}

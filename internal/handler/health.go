package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Pinger is the minimal contract I need from a store to check readiness.
// I keep it local to the handler package to avoid coupling and simplify tests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// readinessTimeout bounds the whole readiness probe, all stores included.
const readinessTimeout = 3 * time.Second

// HealthHandler exposes liveness and readiness endpoints.
type HealthHandler struct {
	stores map[string]Pinger
}

// NewHealthHandler wires a health handler over the configured stores, keyed by backend name.
func NewHealthHandler(stores map[string]Pinger) *HealthHandler {
	return &HealthHandler{stores: stores}
}

// Liveness responds OK if the process is up; it doesn't check dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Readiness pings every store concurrently. One failing store makes the whole
// service unavailable, and every store's state is reported.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.stores))
		g      errgroup.Group
	)
	for name, p := range h.stores {
		g.Go(func() error {
			err := p.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[name] = "unavailable"
				return err
			}
			checks[name] = "ok"
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"stores": checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "stores": checks})
}

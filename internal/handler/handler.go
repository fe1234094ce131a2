package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maxviazov/storegate/internal/service"
)

// Deps is everything the HTTP layer needs. Metrics is optional.
type Deps struct {
	Resources service.ResourceService
	Pingers   map[string]Pinger
	Metrics   MetricsExporter
}

// MetricsExporter is the slice of the metrics package the router uses.
type MetricsExporter interface {
	Handler() http.Handler
	Middleware() gin.HandlerFunc
}

// Register mounts all public routes on the given engine.
func Register(r *gin.Engine, d Deps) {
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET(MetricsPath, gin.WrapH(d.Metrics.Handler()))
	}

	h := NewHealthHandler(d.Pingers)

	// Health probes
	r.GET("/live", h.Liveness)
	r.GET("/ready", h.Readiness)

	api := r.Group(APIV1Prefix)
	{
		health := api.Group("/health")
		{
			health.GET("/live", h.Liveness)
			health.GET("/ready", h.Readiness)
		}
		NewResourceHandler(d.Resources).Register(api)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/maxviazov/storegate/internal/app"
	"github.com/maxviazov/storegate/internal/handler"
	"github.com/maxviazov/storegate/internal/metrics"
	"github.com/maxviazov/storegate/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			stores, err := app.Open(ctx, cfg, log, m)
			if err != nil {
				return err
			}
			defer stores.Close()
			if err := stores.EnsureSchema(ctx, log); err != nil {
				return err
			}

			registry := service.NewRegistry(stores.List...)
			pingers := make(map[string]handler.Pinger)
			for name, p := range registry.Pingers() {
				pingers[name] = p
			}

			gin.SetMode(gin.ReleaseMode)
			r := gin.New()
			r.Use(gin.Recovery())
			handler.Register(r, handler.Deps{
				Resources: service.NewResourceService(registry, log),
				Pingers:   pingers,
				Metrics:   m,
			})

			srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: r}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr).Strs("backends", registry.Names()).Msg("service started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

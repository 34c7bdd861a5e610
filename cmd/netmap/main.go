// Command netmap serves the network map page, the rendered diagrams and the position
// updates sent by the page controller.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netmap/internal/config"
	"netmap/internal/db"
	"netmap/internal/httpapi"
	"netmap/internal/metrics"
	"netmap/internal/render"
)

func main() {
	cfg, err := config.Load(os.Getenv("NETMAP_CONFIG"), os.Getenv)
	if err != nil {
		bootLogger := httpapi.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := httpapi.NewLoggerFromConfig(cfg.Log, "netmap")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *db.Pool
	if cfg.DatabaseURL != "" {
		p, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		if err := p.Migrate(ctx, cfg.DefaultMap); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
		pool = p
	} else {
		logger.Warn().Msg("DATABASE_URL not set; map endpoints will return 503")
	}

	h := httpapi.NewHandler(logger, pool, httpapi.Options{
		Config:   cfg,
		Renderer: render.NewGraphviz(cfg.Render.DotPath),
		Metrics:  metrics.New(),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("map", cfg.DefaultMap).Msg("netmap listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

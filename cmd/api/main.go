package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/catalogetl/internal/api"
	"github.com/timmy/catalogetl/internal/api/handler"
	"github.com/timmy/catalogetl/internal/app"
	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/logger"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	log := app.InitLogger(cfg, "catalog-api")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	router := api.SetupRouter(a.Ingest, a.Search, api.RouterConfig{
		Mode:           cfg.Server.Mode,
		AllowedOrigins: cfg.Server.CORSOrigins,
		HealthChecks:   map[string]handler.HealthCheck{"database": a.Ping},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// The memory queue provider has no separate worker process.
	if cfg.Queue.Provider == "memory" {
		go func() {
			if err := a.RunWorkers(ctx); err != nil {
				log.WithError(err).Error("In-process workers stopped")
			}
		}()
	}

	go func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server exited")
}

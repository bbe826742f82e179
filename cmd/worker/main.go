package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/timmy/catalogetl/internal/app"
	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	log := app.InitLogger(cfg, "catalog-worker")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	log.WithFields(logger.Fields{
		"provider":    cfg.Queue.Provider,
		"concurrency": cfg.Queue.Concurrency,
	}).Info("Starting queue workers")

	if err := a.RunWorkers(ctx); err != nil {
		log.WithError(err).Error("Workers stopped")
		return
	}
	log.Info("Workers exited")
}

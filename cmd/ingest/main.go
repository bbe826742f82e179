package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/catalogetl/internal/app"
	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/service"
)

func main() {
	sourceName := flag.String("source", "", "Catalog source name recorded on the job")
	revision := flag.String("revision", "", "Optional revision tag recorded on the job")
	mode := flag.String("mode", "stream", "stream: enqueue the first chunk; file: process the whole file in-process")
	configPath := flag.String("config", "", "Path to config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] object-key...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 || *sourceName == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	log := app.InitLogger(cfg, "catalog-ingest")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer a.Close()

	reqs := make([]service.StartRequest, 0, flag.NArg())
	for _, key := range flag.Args() {
		reqs = append(reqs, service.StartRequest{Source: *sourceName, ObjectKey: key, RevisionTag: *revision})
	}

	switch *mode {
	case "stream":
		jobs, err := a.Ingest.StartJobs(ctx, reqs)
		if err != nil {
			log.WithError(err).Fatal("Failed to start jobs")
		}
		for _, job := range jobs {
			log.WithFields(logger.Fields{
				logger.FieldJobID:     job.ID,
				logger.FieldObjectKey: job.Filename,
			}).Info("Job started")
		}
	case "file":
		failed := false
		for _, req := range reqs {
			job, err := a.Ingest.IngestFile(ctx, req)
			if err != nil {
				log.WithError(err).WithField(logger.FieldObjectKey, req.ObjectKey).Error("Ingestion failed")
				failed = true
				continue
			}
			log.WithFields(logger.Fields{
				logger.FieldJobID:     job.ID,
				logger.FieldObjectKey: job.Filename,
				logger.FieldStatus:    job.Status,
				logger.FieldValid:     job.Valid(),
				logger.FieldInvalid:   job.Invalid(),
			}).Info("Ingestion completed")
		}
		if failed {
			logger.Sync()
			os.Exit(1)
		}
	default:
		log.WithField("mode", *mode).Fatal("Unknown mode")
	}
}

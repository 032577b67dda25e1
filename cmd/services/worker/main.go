package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/modelmanager"
	"github.com/soltixdb/forecaster/internal/preprocess"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/services"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/soltixdb/forecaster/internal/tracing"
	"github.com/soltixdb/forecaster/internal/worker"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Worker service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Tracing and metrics
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName + "-worker",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()
	metrics.MustRegister()

	// 5. Storage and job store
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("Failed to create data directories", "error", err)
	}
	store, err := storage.NewLocalStore(cfg.Storage.DataDir, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", "error", err)
	}

	jobStore, err := metadata.NewStore(ctx, cfg.Metadata, logger)
	if err != nil {
		logger.Fatal("Failed to open job store", "error", err)
	}
	defer func() { _ = jobStore.Close() }()
	tracker := metadata.NewTracker(jobStore)

	// 6. Storage timezone for naive timestamps in uploads
	loc := cfg.Storage.GetStorageTimezone()
	logger.Info("Using storage timezone", "timezone", loc.String())

	// 7. Forecast service
	manager, err := modelmanager.NewFromConfig(cfg.Forecast, logger)
	if err != nil {
		logger.Fatal("Invalid forecast configuration", "error", err)
	}
	forecastService := services.NewForecastService(logger, store, tracker, manager,
		preprocess.NewPreparer(loc, logger), cfg.Forecast)

	// 8. Queue subscription
	logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
	queueClient, err := queue.NewQueue(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Queue", "error", err)
	}
	defer func() { _ = queueClient.Close() }()

	w := worker.New(logger, queueClient, forecastService, cfg.Queue.Subject, cfg.Worker)
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start worker", "error", err)
	}

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	if err := w.Stop(); err != nil {
		logger.Error("Failed to stop worker", "error", err)
	}
	logger.Info("Worker exited")
}

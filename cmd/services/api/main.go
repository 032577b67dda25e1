package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/handlers"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/modelmanager"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/router"
	"github.com/soltixdb/forecaster/internal/services"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/soltixdb/forecaster/internal/tracing"
	"github.com/soltixdb/forecaster/internal/utils"
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

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("API service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("Failed to create data directories", "error", err)
	}

	// Tracing
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName + "-api",
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

	// Artifact storage
	store, err := storage.NewLocalStore(cfg.Storage.DataDir, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", "error", err, "data_dir", cfg.Storage.DataDir)
	}

	// Job metadata store
	logger.Info("Opening job store", "backend", cfg.Metadata.Backend)
	jobStore, err := metadata.NewStore(ctx, cfg.Metadata, logger)
	if err != nil {
		logger.Fatal("Failed to open job store", "error", err)
	}
	defer func() { _ = jobStore.Close() }()
	tracker := metadata.NewTracker(jobStore)

	// Connect to Queue (configurable backend)
	logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
	queueClient, err := queue.NewQueue(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Queue", "error", err)
	}
	defer func() { _ = queueClient.Close() }()
	logger.Info("Queue connection established")

	// Log authentication status
	if cfg.Auth.Enabled {
		logger.Info("API key authentication enabled", "num_keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("API key authentication DISABLED - all requests will be allowed")
	}

	// Services and handlers
	manager, err := modelmanager.NewFromConfig(cfg.Forecast, logger)
	if err != nil {
		logger.Fatal("Invalid forecast configuration", "error", err)
	}
	uploadService := services.NewUploadService(logger, store)
	jobService := services.NewJobService(logger, uploadService, store, tracker, queueClient,
		cfg.Queue.Subject, cfg.Forecast, manager.Names())

	h := handlers.New(logger, uploadService, jobService, Version)
	h.AddHealthCheck("metadata", func(ctx context.Context) error {
		_, err := tracker.List(ctx, 1, 0)
		return err
	})

	app := router.New(logger, h, *cfg)

	// Start server in goroutine
	go func() {
		addr := cfg.GetServerAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), utils.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

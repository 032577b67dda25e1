package handlers

import (
	"context"

	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/services"
)

// HealthCheck probes one dependency of the API process.
type HealthCheck func(ctx context.Context) error

// Handler contains all HTTP handlers
type Handler struct {
	logger  *logging.Logger
	version string
	checks  map[string]HealthCheck
	// Services
	uploadService *services.UploadService
	jobService    *services.JobService
}

// New creates a new handler instance
func New(logger *logging.Logger, uploadService *services.UploadService, jobService *services.JobService, version string) *Handler {
	if logger == nil {
		logger = logging.Global()
	}
	return &Handler{
		logger:        logger.With("component", "handlers"),
		version:       version,
		checks:        make(map[string]HealthCheck),
		uploadService: uploadService,
		jobService:    jobService,
	}
}

// AddHealthCheck registers a dependency probe reported by /health.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

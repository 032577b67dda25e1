package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/storage"
	"github.com/soltixdb/forecaster/internal/utils"
)

// SubmitRequest asks for a forecast of one upload.
type SubmitRequest struct {
	UploadID     string
	TimeColumn   string
	TargetColumn string
	Exogenous    []string
	Horizon      int
	Model        string
}

// JobResult is the outcome document of a finished job.
type JobResult struct {
	Status  metadata.Status
	Record  *ForecastRecord
	Failure *FailureRecord
}

// JobService accepts forecast submissions and answers job lookups.
type JobService struct {
	logger    *logging.Logger
	uploads   *UploadService
	store     storage.Store
	tracker   *metadata.Tracker
	publisher queue.Publisher
	subject   string
	cfg       config.ForecastConfig
	models    []string
}

// NewJobService creates a new JobService. models lists the selectable
// model names besides auto.
func NewJobService(
	logger *logging.Logger,
	uploads *UploadService,
	store storage.Store,
	tracker *metadata.Tracker,
	publisher queue.Publisher,
	subject string,
	cfg config.ForecastConfig,
	models []string,
) *JobService {
	if logger == nil {
		logger = logging.Global()
	}
	return &JobService{
		logger:    logger.With("component", "job_service"),
		uploads:   uploads,
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		subject:   subject,
		cfg:       cfg,
		models:    models,
	}
}

// Submit validates req, creates a pending job and enqueues it.
func (s *JobService) Submit(ctx context.Context, req *SubmitRequest) (*metadata.Job, error) {
	jobCfg, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	job := &metadata.Job{
		ID:       uuid.NewString(),
		UploadID: req.UploadID,
		Config:   *jobCfg,
	}
	metaCtx, cancel := context.WithTimeout(ctx, utils.MetadataTimeout)
	defer cancel()
	if err := s.tracker.Create(metaCtx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msg, err := queue.JobMessage{JobID: job.ID, UploadID: job.UploadID, SubmittedAt: job.CreatedAt}.Encode()
	if err != nil {
		return nil, err
	}
	pubCtx, cancelPub := context.WithTimeout(ctx, utils.PublishTimeout)
	defer cancelPub()
	err = s.publisher.Publish(pubCtx, s.subject, msg)
	metrics.ObserveQueue("publish", err)
	if err != nil {
		s.logger.Error("Failed to enqueue job", "job_id", job.ID, "error", err)
		return nil, NewServiceErrorWithDetails(CodeQueueUnavailable, "Failed to enqueue forecast job", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}

	metrics.JobSubmitted()
	s.logger.Info("Forecast job submitted",
		"job_id", job.ID,
		"upload_id", job.UploadID,
		"model", job.Config.Model,
		"horizon", job.Config.Horizon)
	return job, nil
}

func (s *JobService) validate(ctx context.Context, req *SubmitRequest) (*metadata.JobConfig, error) {
	if req.UploadID == "" || !utils.IsValidID(req.UploadID) {
		return nil, NewServiceError(CodeInvalidRequest, "Invalid uploadId format: only alphanumeric characters, '-' and '_' are allowed")
	}
	if req.TimeColumn == "" || req.TargetColumn == "" {
		return nil, NewServiceError(CodeInvalidRequest, "timeColumn and targetColumn are required")
	}

	columns := append([]string{req.TimeColumn, req.TargetColumn}, req.Exogenous...)
	for _, col := range columns {
		if !utils.IsValidColumnName(col) {
			return nil, NewServiceErrorWithDetails(CodeInvalidRequest, fmt.Sprintf("Invalid column name: %q", col), map[string]interface{}{
				"column": col,
			})
		}
	}

	horizon := req.Horizon
	if horizon == 0 {
		horizon = s.cfg.DefaultHorizon
	}
	if horizon < 1 || horizon > s.cfg.MaxHorizon {
		return nil, NewServiceErrorWithDetails(CodeInvalidRequest, fmt.Sprintf("horizon must be between 1 and %d", s.cfg.MaxHorizon), map[string]interface{}{
			"horizon": req.Horizon,
		})
	}

	model := strings.ToLower(strings.TrimSpace(req.Model))
	if model == "" {
		model = utils.ModelAuto
	}
	if model != utils.ModelAuto && !contains(s.models, model) {
		return nil, NewServiceErrorWithDetails(CodeInvalidRequest, fmt.Sprintf("Unsupported model: %s", req.Model), map[string]interface{}{
			"available_models": append([]string{utils.ModelAuto}, s.models...),
		})
	}

	upload, err := s.uploads.Get(ctx, req.UploadID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, col := range columns {
		if !upload.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, NewServiceErrorWithDetails(CodeInvalidRequest, fmt.Sprintf("Columns not found in upload: %s", strings.Join(missing, ", ")), map[string]interface{}{
			"missing":   missing,
			"available": upload.Columns,
		})
	}

	return &metadata.JobConfig{
		TimeColumn:   req.TimeColumn,
		TargetColumn: req.TargetColumn,
		Exogenous:    req.Exogenous,
		Horizon:      horizon,
		Model:        model,
	}, nil
}

// Get returns a job by id.
func (s *JobService) Get(ctx context.Context, jobID string) (*metadata.Job, error) {
	if !utils.IsValidID(jobID) {
		return nil, NewServiceError(CodeInvalidRequest, "Invalid job id format")
	}
	ctx, cancel := context.WithTimeout(ctx, utils.MetadataTimeout)
	defer cancel()

	job, err := s.tracker.Get(ctx, jobID)
	if errors.Is(err, metadata.ErrJobNotFound) {
		return nil, NewServiceError(CodeJobNotFound, fmt.Sprintf("Job not found: %s", jobID))
	}
	return job, err
}

// ClampLimit applies the list page size default and maximum.
func (s *JobService) ClampLimit(limit int) int {
	if limit <= 0 {
		return utils.DefaultListLimit
	}
	return min(limit, utils.MaxListLimit)
}

// List returns jobs newest first. limit is clamped by ClampLimit.
func (s *JobService) List(ctx context.Context, limit, offset int) ([]*metadata.Job, error) {
	limit = s.ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, utils.MetadataTimeout)
	defer cancel()
	return s.tracker.List(ctx, limit, offset)
}

// Result returns the record of a completed job or the failure of a failed
// one. Unfinished jobs yield RESULT_NOT_READY.
func (s *JobService) Result(ctx context.Context, jobID string) (*JobResult, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case metadata.StatusCompleted:
		var record ForecastRecord
		if err := s.store.ReadJSON(job.ID, utils.ResultsFile, &record); err != nil {
			return nil, fmt.Errorf("failed to read forecast record: %w", err)
		}
		return &JobResult{Status: job.Status, Record: &record}, nil
	case metadata.StatusFailed:
		var failure FailureRecord
		if err := s.store.ReadJSON(job.ID, utils.ErrorFile, &failure); err != nil {
			// The job store still knows why it failed.
			failure = FailureRecord{
				Status:   string(metadata.StatusFailed),
				JobID:    job.ID,
				UploadID: job.UploadID,
				Error:    job.Error,
				FailedAt: completedAt(job),
			}
		}
		return &JobResult{Status: job.Status, Failure: &failure}, nil
	default:
		return nil, NewServiceErrorWithDetails(CodeResultNotReady, fmt.Sprintf("Job %s is %s", job.ID, job.Status), map[string]interface{}{
			"status": job.Status,
		})
	}
}

// downloadable artifacts
var artifactNames = map[string]bool{
	utils.ForecastCSV: true,
	utils.ForecastPNG: true,
}

// ArtifactPath returns the path of a downloadable artifact of a completed job.
func (s *JobService) ArtifactPath(ctx context.Context, jobID, name string) (string, error) {
	if !artifactNames[name] {
		return "", NewServiceError(CodeInvalidRequest, fmt.Sprintf("Unknown file: %s", name))
	}
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != metadata.StatusCompleted {
		return "", NewServiceError(CodeResultNotReady, fmt.Sprintf("Job %s is %s", job.ID, job.Status))
	}
	path, err := s.store.ArtifactPath(job.ID, name)
	if errors.Is(err, storage.ErrNotFound) {
		return "", NewServiceError(CodeFileNotFound, fmt.Sprintf("File not found: %s", name))
	}
	return path, err
}

func completedAt(job *metadata.Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.UpdatedAt
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

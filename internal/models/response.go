package models

import (
	"time"

	"github.com/soltixdb/forecaster/internal/metadata"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// TimeCandidate is a column that looks like it holds timestamps
type TimeCandidate struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// UploadResponse represents upload response
type UploadResponse struct {
	UploadID       string              `json:"uploadId"`
	Filename       string              `json:"filename"`
	Columns        []string            `json:"columns"`
	TimeCandidates []TimeCandidate     `json:"timeCandidates"`
	Preview        []map[string]string `json:"preview"`
	CreatedAt      string              `json:"createdAt"`
}

// SubmitForecastResponse represents create forecast job response
type SubmitForecastResponse struct {
	JobID    string `json:"jobId"`
	UploadID string `json:"uploadId"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// JobResponse represents forecast job status response
type JobResponse struct {
	JobID        string   `json:"jobId"`
	UploadID     string   `json:"uploadId"`
	Status       string   `json:"status"`
	TimeColumn   string   `json:"timeColumn"`
	TargetColumn string   `json:"targetColumn"`
	Exogenous    []string `json:"exogenous,omitempty"`
	Horizon      int      `json:"horizon"`
	Model        string   `json:"model"`
	Error        string   `json:"error,omitempty"`
	Attempts     int      `json:"attempts"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
	StartedAt    *string  `json:"startedAt,omitempty"`
	CompletedAt  *string  `json:"completedAt,omitempty"`
}

// JobListResponse represents list forecast jobs response
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Count  int           `json:"count"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// NewJobResponse converts a job record to its API view.
func NewJobResponse(job *metadata.Job) JobResponse {
	return JobResponse{
		JobID:        job.ID,
		UploadID:     job.UploadID,
		Status:       string(job.Status),
		TimeColumn:   job.Config.TimeColumn,
		TargetColumn: job.Config.TargetColumn,
		Exogenous:    job.Config.Exogenous,
		Horizon:      job.Config.Horizon,
		Model:        job.Config.Model,
		Error:        job.Error,
		Attempts:     job.Attempts,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
		StartedAt:    formatOptional(job.StartedAt),
		CompletedAt:  formatOptional(job.CompletedAt),
	}
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

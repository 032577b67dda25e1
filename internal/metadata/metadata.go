// Package metadata stores forecast job records and enforces their status
// lifecycle: pending -> processing -> completed | failed.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose id is taken.
	ErrJobExists = errors.New("job already exists")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is allowed. processing ->
// processing covers a redelivered job whose previous worker died.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// JobConfig is the immutable forecast configuration of a job.
type JobConfig struct {
	TimeColumn   string   `json:"timeColumn"`
	TargetColumn string   `json:"targetColumn"`
	Exogenous    []string `json:"exogenous,omitempty"`
	Horizon      int      `json:"horizon"`
	Model        string   `json:"model"`
}

// Job is the externally visible record of one forecast job.
type Job struct {
	ID          string     `json:"jobId"`
	UploadID    string     `json:"uploadId"`
	Config      JobConfig  `json:"config"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ResultPath  string     `json:"resultPath,omitempty"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	c := *j
	if j.Config.Exogenous != nil {
		c.Config.Exogenous = append([]string(nil), j.Config.Exogenous...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// UpdateFunc mutates a job inside a store's atomic update. Returning an
// error aborts the update.
type UpdateFunc func(job *Job) error

// Store is a job record backend. Update must apply fn atomically with
// respect to concurrent updates of the same job.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns jobs newest first
	List(ctx context.Context, limit, offset int) ([]*Job, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error)
	Close() error
}

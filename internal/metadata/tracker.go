package metadata

import (
	"context"
	"time"
)

// Tracker drives job status through the lifecycle on top of a Store.
// Every transition is checked inside the store's atomic update, so two
// workers cannot both finish a job.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker creates a tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Store returns the underlying store.
func (t *Tracker) Store() Store {
	return t.store
}

// Create stores a new pending job.
func (t *Tracker) Create(ctx context.Context, job *Job) error {
	now := t.now()
	job.Status = StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	return t.store.Create(ctx, job)
}

// Get returns a job by id.
func (t *Tracker) Get(ctx context.Context, id string) (*Job, error) {
	return t.store.Get(ctx, id)
}

// List returns jobs newest first.
func (t *Tracker) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	return t.store.List(ctx, limit, offset)
}

// MarkProcessing moves a job to processing and counts the attempt.
func (t *Tracker) MarkProcessing(ctx context.Context, id string) (*Job, error) {
	return t.store.Update(ctx, id, func(job *Job) error {
		if err := checkTransition(job.Status, StatusProcessing); err != nil {
			return err
		}
		now := t.now()
		job.Status = StatusProcessing
		job.StartedAt = &now
		job.UpdatedAt = now
		job.Attempts++
		return nil
	})
}

// MarkCompleted records the result location and finishes the job.
func (t *Tracker) MarkCompleted(ctx context.Context, id, resultPath string) (*Job, error) {
	return t.store.Update(ctx, id, func(job *Job) error {
		if err := checkTransition(job.Status, StatusCompleted); err != nil {
			return err
		}
		now := t.now()
		job.Status = StatusCompleted
		job.ResultPath = resultPath
		job.Error = ""
		job.CompletedAt = &now
		job.UpdatedAt = now
		return nil
	})
}

// MarkFailed records the failure message and finishes the job.
func (t *Tracker) MarkFailed(ctx context.Context, id, message, resultPath string) (*Job, error) {
	return t.store.Update(ctx, id, func(job *Job) error {
		if err := checkTransition(job.Status, StatusFailed); err != nil {
			return err
		}
		now := t.now()
		job.Status = StatusFailed
		job.Error = message
		job.ResultPath = resultPath
		job.CompletedAt = &now
		job.UpdatedAt = now
		return nil
	})
}

// Close closes the store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

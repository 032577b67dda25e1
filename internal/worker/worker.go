// Package worker consumes forecast job messages from the queue and runs
// them through the forecast service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/soltixdb/forecaster/internal/config"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/metadata"
	"github.com/soltixdb/forecaster/internal/metrics"
	"github.com/soltixdb/forecaster/internal/queue"
	"github.com/soltixdb/forecaster/internal/services"
	"github.com/soltixdb/forecaster/internal/utils"
)

// Runner runs one forecast job.
type Runner interface {
	Run(ctx context.Context, jobID string) (*services.RunResult, error)
}

// Stats counts deliveries handled by a worker.
type Stats struct {
	Received  int64
	Completed int64
	Failed    int64
	Skipped   int64
	Retried   int64
}

// Worker subscribes to the job subject and runs every delivered job.
type Worker struct {
	logger      *logging.Logger
	subscriber  queue.Subscriber
	runner      Runner
	subject     string
	concurrency int
	jobTimeout  time.Duration

	received  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	retried   atomic.Int64
}

// New creates a worker for subject.
func New(logger *logging.Logger, subscriber queue.Subscriber, runner Runner, subject string, cfg config.WorkerConfig) *Worker {
	if logger == nil {
		logger = logging.Global()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = utils.DefaultJobTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		logger:      logger.With("component", "worker"),
		subscriber:  subscriber,
		runner:      runner,
		subject:     subject,
		concurrency: concurrency,
		jobTimeout:  timeout,
	}
}

// Start subscribes to the job subject. Deliveries run until ctx is done or
// Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.subscriber.Subscribe(ctx, w.subject, w.concurrency, w.handle); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.subject, err)
	}
	w.logger.Info("Worker started",
		"subject", w.subject,
		"concurrency", w.concurrency,
		"job_timeout", w.jobTimeout.String())
	return nil
}

// Stop unsubscribes and waits for in-flight deliveries.
func (w *Worker) Stop() error {
	err := w.subscriber.Unsubscribe(w.subject)
	w.logger.Info("Worker stopped",
		"received", w.received.Load(),
		"completed", w.completed.Load(),
		"failed", w.failed.Load())
	return err
}

// Stats returns a snapshot of the delivery counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Received:  w.received.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
		Retried:   w.retried.Load(),
	}
}

// handle runs one delivery. A nil return acknowledges the message; an
// error asks the queue to redeliver it.
func (w *Worker) handle(ctx context.Context, data []byte) error {
	w.received.Add(1)

	msg, err := queue.DecodeJobMessage(data)
	if err != nil {
		// Redelivering a malformed message cannot help.
		w.logger.Error("Dropping malformed job message", "error", err, "size", len(data))
		metrics.ObserveQueue("consume", err)
		w.skipped.Add(1)
		return nil
	}

	ctx = logging.WithJobID(ctx, msg.JobID)
	logger := w.logger.WithContext(ctx)
	if !msg.SubmittedAt.IsZero() {
		logger.Debug("Job dequeued", "queue_wait_ms", time.Since(msg.SubmittedAt).Milliseconds())
	}

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.runner.Run(runCtx, msg.JobID)
	switch {
	case errors.Is(err, services.ErrJobFinished):
		w.skipped.Add(1)
		metrics.ObserveQueue("consume", nil)
		return nil
	case errors.Is(err, metadata.ErrJobNotFound):
		logger.Warn("Dropping message for unknown job")
		w.skipped.Add(1)
		metrics.ObserveQueue("consume", err)
		return nil
	case err != nil:
		logger.Error("Job run interrupted, requesting redelivery", "error", err)
		w.retried.Add(1)
		metrics.ObserveQueue("consume", err)
		return err
	}

	metrics.ObserveQueue("consume", nil)
	if result.Status == metadata.StatusCompleted {
		w.completed.Add(1)
	} else {
		w.failed.Add(1)
	}
	return nil
}

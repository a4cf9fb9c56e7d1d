package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/storage"
)

// JobTracker keeps the processing job ledger honest. Each stage of each
// document gets one row per attempt set; retries update the row rather
// than appending new ones.
type JobTracker struct {
	jobs   storage.JobStore
	logger *slog.Logger
}

// NewJobTracker creates a tracker over the job store.
func NewJobTracker(jobs storage.JobStore) *JobTracker {
	return &JobTracker{
		jobs:   jobs,
		logger: slog.Default().With("component", "pipeline"),
	}
}

// Begin returns the running job row for a stage. The latest row is
// reused while its attempt set is still open (running after a crash, or
// failed with retry budget left); otherwise a fresh row starts a new
// attempt set.
func (t *JobTracker) Begin(ctx context.Context, docID core.ID, stage core.Stage, maxRetries int) (*core.ProcessingJob, error) {
	latest, err := t.jobs.LatestJob(ctx, docID, stage)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if latest != nil && latest.Status != core.JobCompleted && !exhausted(latest) {
		if latest.Status == core.JobPending {
			latest.MaxRetries = maxRetries
		}
		latest.Status = core.JobRunning
		return t.jobs.UpdateJob(ctx, latest)
	}
	return t.jobs.AddJob(ctx, &core.ProcessingJob{
		DocumentId: docID,
		Stage:      stage,
		Status:     core.JobRunning,
		MaxRetries: maxRetries,
	})
}

// Complete marks the job finished with a result summary.
func (t *JobTracker) Complete(ctx context.Context, job *core.ProcessingJob, result string) error {
	job.Status = core.JobCompleted
	job.Result = result
	job.ErrorMessage = ""
	job.FinishedAt = time.Now().UTC()
	_, err := t.jobs.UpdateJob(ctx, job)
	return err
}

// RecordRetry counts one failed attempt that is being retried without
// leaving the running state. The embedding batcher reports its internal
// retries through this.
func (t *JobTracker) RecordRetry(ctx context.Context, job *core.ProcessingJob, cause error) error {
	job.RetryCount++
	job.ErrorMessage = cause.Error()
	_, err := t.jobs.UpdateJob(ctx, job)
	return err
}

// Fail records a failed attempt. When the failure is retryable and the
// attempt budget is not exhausted, the retry count is advanced and true
// is returned; otherwise the row goes terminal.
func (t *JobTracker) Fail(ctx context.Context, job *core.ProcessingJob, cause error, retryable bool) (bool, error) {
	job.ErrorMessage = cause.Error()
	if retryable && job.RetryCount < job.MaxRetries-1 {
		job.RetryCount++
		t.logger.Warn("stage attempt failed, will retry",
			"document", job.DocumentId,
			"stage", job.Stage.String(),
			"retryCount", job.RetryCount,
			"error", cause)
		_, err := t.jobs.UpdateJob(ctx, job)
		return true, err
	}

	job.Status = core.JobFailed
	job.FinishedAt = time.Now().UTC()
	t.logger.Error("stage failed",
		"document", job.DocumentId,
		"stage", job.Stage.String(),
		"retryCount", job.RetryCount,
		"error", cause)
	_, err := t.jobs.UpdateJob(ctx, job)
	return false, err
}

// exhausted reports whether a failed row has no retry budget left.
func exhausted(job *core.ProcessingJob) bool {
	return job.Status == core.JobFailed && job.RetryCount >= job.MaxRetries-1
}

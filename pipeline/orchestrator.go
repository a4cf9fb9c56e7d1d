// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/docvault/blob"
	"github.com/poiesic/docvault/chunk"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/embed"
	"github.com/poiesic/docvault/extract"
	"github.com/poiesic/docvault/storage"
)

const workflowType = "document_processing"

// pipelineStages is the fixed stage order of a run.
var pipelineStages = []core.Stage{
	core.StageExtract,
	core.StageChunk,
	core.StageEmbed,
	core.StageStore,
}

// Dependencies are the collaborators an Orchestrator needs.
// Extractor may be nil; the built-in registry is used then.
type Dependencies struct {
	Documents storage.DocumentStore
	Chunks    storage.ChunkStore
	Jobs      storage.JobStore
	Workflows storage.WorkflowStore
	Blobs     blob.Store
	Extractor *extract.Registry
	Chunker   *chunk.Engine
	Batcher   *embed.Batcher
}

// Orchestrator drives documents through the processing pipeline.
// Runs execute on a bounded worker pool; Process runs inline for
// callers that want the result.
type Orchestrator struct {
	docs      storage.DocumentStore
	chunks    storage.ChunkStore
	jobs      storage.JobStore
	workflows storage.WorkflowStore
	blobs     blob.Store
	extractor *extract.Registry
	chunker   *chunk.Engine
	batcher   *embed.Batcher
	tracker   *JobTracker

	pool         *ants.Pool
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	stageTimeout time.Duration
	textBucket   string
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets the worker pool size for concurrent document runs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithMaxRetries sets the attempt budget per stage.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) error {
		if n > 0 {
			o.maxRetries = n
		}
		return nil
	}
}

// WithBackoff sets the exponential backoff bounds between stage attempts.
func WithBackoff(base, max time.Duration) Option {
	return func(o *Orchestrator) error {
		o.baseDelay = base
		o.maxDelay = max
		return nil
	}
}

// WithStageTimeout bounds each stage attempt. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.stageTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Documents == nil:
		return nil, ErrDocumentStoreRequired
	case deps.Chunks == nil:
		return nil, ErrChunkStoreRequired
	case deps.Jobs == nil:
		return nil, ErrJobStoreRequired
	case deps.Workflows == nil:
		return nil, ErrWorkflowStoreRequired
	case deps.Blobs == nil:
		return nil, ErrBlobStoreRequired
	case deps.Chunker == nil:
		return nil, ErrChunkerRequired
	case deps.Batcher == nil:
		return nil, ErrBatcherRequired
	}

	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.NewRegistry()
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		docs:       deps.Documents,
		chunks:     deps.Chunks,
		jobs:       deps.Jobs,
		workflows:  deps.Workflows,
		blobs:      deps.Blobs,
		extractor:  extractor,
		chunker:    deps.Chunker,
		batcher:    deps.Batcher,
		tracker:    NewJobTracker(deps.Jobs),
		pool:       pool,
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   30 * time.Second,
		textBucket: "extracted",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}
	return o, nil
}

// Start queues a processing run and returns its workflow identifier
// immediately. Returns storage.ErrActiveExecution while a previous run
// of the document is still in flight.
func (o *Orchestrator) Start(ctx context.Context, docID core.ID) (string, error) {
	exec, err := o.beginExecution(ctx, docID)
	if err != nil {
		return "", err
	}
	o.submit(exec)
	return exec.WorkflowId, nil
}

// Process runs a document through the pipeline synchronously.
func (o *Orchestrator) Process(ctx context.Context, docID core.ID) error {
	exec, err := o.beginExecution(ctx, docID)
	if err != nil {
		return err
	}
	return o.run(ctx, exec)
}

// Cancel requests cooperative cancellation of the document's active
// run. The run stops at the next stage boundary. The flag is written
// with read-modify-write so a concurrent stage transition cannot
// clobber it.
func (o *Orchestrator) Cancel(ctx context.Context, docID core.ID) error {
	for {
		exec, err := o.workflows.LatestExecution(ctx, docID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNoActiveExecution
			}
			return err
		}
		if exec.Status.Terminal() {
			return ErrNoActiveExecution
		}
		exec.CancelRequested = true
		if _, err := o.workflows.UpdateExecution(ctx, exec); err != nil {
			if errors.Is(err, storage.ErrTxnConflict) {
				continue
			}
			return err
		}
		return nil
	}
}

// Recover resubmits every execution left in the running state by a
// previous process. Completed stages are skipped, so recovered runs
// pick up where they stopped. Returns how many runs were resubmitted.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	running, err := o.workflows.ListRunning(ctx)
	if err != nil {
		return 0, err
	}
	for _, exec := range running {
		o.logger.Info("recovering interrupted run",
			"workflowId", exec.WorkflowId, "document", exec.DocumentId)
		o.submit(exec)
	}
	return len(running), nil
}

// Wait blocks until all queued runs have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Release waits for in-flight runs and shuts the worker pool down.
// The orchestrator must not be used afterwards.
func (o *Orchestrator) Release() {
	o.wg.Wait()
	if o.pool != nil {
		o.pool.Release()
	}
}

func (o *Orchestrator) submit(exec *core.WorkflowExecution) {
	o.wg.Add(1)
	err := o.pool.Submit(func() {
		defer o.wg.Done()
		if runErr := o.run(context.Background(), exec); runErr != nil {
			o.logger.Error("processing run failed",
				"workflowId", exec.WorkflowId,
				"document", exec.DocumentId,
				"error", runErr)
		}
	})
	if err != nil {
		o.wg.Done()
		o.logger.Error("failed to submit run", "workflowId", exec.WorkflowId, "error", err)
	}
}

// beginExecution validates the document and records a new running
// execution for it.
func (o *Orchestrator) beginExecution(ctx context.Context, docID core.ID) (*core.WorkflowExecution, error) {
	doc, err := o.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.UploadStatus != core.UploadCompleted {
		return nil, ErrUploadIncomplete
	}

	exec := &core.WorkflowExecution{
		WorkflowId: "docproc-" + uuid.NewString(),
		RunId:      uuid.NewString(),
		Type:       workflowType,
		DocumentId: docID,
		Status:     core.ExecutionRunning,
	}
	exec, err = o.workflows.AddExecution(ctx, exec)
	if err != nil {
		return nil, err
	}

	doc.ProcessingStatus = core.ProcessingQueued
	doc.ErrorMessage = ""
	if _, err := o.docs.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return exec, nil
}

// run executes the pipeline for one execution, resuming from the first
// stage without a completed job.
func (o *Orchestrator) run(ctx context.Context, exec *core.WorkflowExecution) error {
	logger := o.logger.With("workflowId", exec.WorkflowId, "document", exec.DocumentId)

	doc, err := o.docs.GetDocument(ctx, exec.DocumentId)
	if err != nil {
		return o.finishFailed(ctx, nil, exec, err)
	}
	doc.ProcessingStatus = core.ProcessingInProgress
	if _, err := o.docs.UpdateDocument(ctx, doc); err != nil {
		return o.finishFailed(ctx, doc, exec, err)
	}

	pipelineJob, err := o.tracker.Begin(ctx, doc.Id, core.StageFullPipeline, o.maxRetries)
	if err != nil {
		return o.finishFailed(ctx, doc, exec, err)
	}

	start, err := o.firstIncompleteStage(ctx, doc.Id)
	if err != nil {
		return o.finishFailed(ctx, doc, exec, err)
	}
	if start > 0 {
		logger.Info("resuming run", "stage", pipelineStages[start].String())
	}

	for _, stage := range pipelineStages[start:] {
		var cancelled bool
		exec, cancelled, err = o.enterStage(ctx, exec, stage)
		if err != nil {
			return o.finishFailed(ctx, doc, exec, err)
		}
		if cancelled {
			_, _ = o.tracker.Fail(ctx, pipelineJob, ErrCancelled, false)
			return o.finishCancelled(ctx, doc, exec)
		}

		logger.Info("running stage", "stage", stage.String())
		if err := o.runStage(ctx, doc, exec, stage); err != nil {
			if errors.Is(err, ErrCancelled) {
				_, _ = o.tracker.Fail(ctx, pipelineJob, ErrCancelled, false)
				return o.finishCancelled(ctx, doc, exec)
			}
			_, _ = o.tracker.Fail(ctx, pipelineJob, err, false)
			return o.finishFailed(ctx, doc, exec, err)
		}
	}

	if err := o.tracker.Complete(ctx, pipelineJob, "pipeline completed"); err != nil {
		return o.finishFailed(ctx, doc, exec, err)
	}
	return o.finishCompleted(ctx, doc, exec)
}

// runStage executes one stage with the tracker's retry budget.
func (o *Orchestrator) runStage(ctx context.Context, doc *core.Document, exec *core.WorkflowExecution, stage core.Stage) error {
	job, err := o.tracker.Begin(ctx, doc.Id, stage, o.maxRetries)
	if err != nil {
		return err
	}

	for {
		result, runErr := o.runAttempt(ctx, doc, exec, stage, job)
		if runErr == nil {
			return o.tracker.Complete(ctx, job, result)
		}
		if ctx.Err() != nil {
			_, _ = o.tracker.Fail(ctx, job, runErr, false)
			return runErr
		}

		retryable := core.IsTransient(runErr) && !errors.Is(runErr, embed.ErrRetriesExhausted)
		again, trackErr := o.tracker.Fail(ctx, job, runErr, retryable)
		if trackErr != nil {
			return trackErr
		}
		if !again {
			return runErr
		}
		stageRetries.Inc()

		if err := o.backoff(ctx, job.RetryCount); err != nil {
			return err
		}
		cancelled, err := o.cancelRequested(ctx, exec)
		if err != nil {
			return err
		}
		if cancelled {
			_, _ = o.tracker.Fail(ctx, job, ErrCancelled, false)
			return ErrCancelled
		}
	}
}

func (o *Orchestrator) runAttempt(ctx context.Context, doc *core.Document, exec *core.WorkflowExecution, stage core.Stage, job *core.ProcessingJob) (string, error) {
	attemptCtx := ctx
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	switch stage {
	case core.StageExtract:
		return o.runExtract(attemptCtx, doc)
	case core.StageChunk:
		return o.runChunk(attemptCtx, doc)
	case core.StageEmbed:
		return o.runEmbed(attemptCtx, doc, job)
	case core.StageStore:
		return o.runStore(attemptCtx, doc)
	}
	return "", fmt.Errorf("unknown stage %d", stage)
}

// firstIncompleteStage finds where a run should begin: the first stage
// whose latest job is not completed.
func (o *Orchestrator) firstIncompleteStage(ctx context.Context, docID core.ID) (int, error) {
	for i, stage := range pipelineStages {
		latest, err := o.jobs.LatestJob(ctx, docID, stage)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return i, nil
			}
			return 0, err
		}
		if latest.Status != core.JobCompleted {
			return i, nil
		}
	}
	return len(pipelineStages), nil
}

// cancelRequested re-reads the execution and reports the cancel flag.
func (o *Orchestrator) cancelRequested(ctx context.Context, exec *core.WorkflowExecution) (bool, error) {
	current, err := o.workflows.GetExecution(ctx, exec.Id)
	if err != nil {
		return false, err
	}
	exec.CancelRequested = current.CancelRequested
	return current.CancelRequested, nil
}

// enterStage records the stage transition with read-modify-write: the
// execution is re-read so a concurrently set cancel flag is honored
// rather than overwritten, and a conflicting write retries.
func (o *Orchestrator) enterStage(ctx context.Context, exec *core.WorkflowExecution, stage core.Stage) (*core.WorkflowExecution, bool, error) {
	for {
		current, err := o.workflows.GetExecution(ctx, exec.Id)
		if err != nil {
			return exec, false, err
		}
		if current.CancelRequested {
			return current, true, nil
		}
		current.CurrentStage = stage
		updated, err := o.workflows.UpdateExecution(ctx, current)
		if err != nil {
			if errors.Is(err, storage.ErrTxnConflict) {
				continue
			}
			return exec, false, err
		}
		return updated, false, nil
	}
}

func (o *Orchestrator) finishCompleted(ctx context.Context, doc *core.Document, exec *core.WorkflowExecution) error {
	doc.ProcessingStatus = core.ProcessingCompleted
	doc.ErrorMessage = ""
	if _, err := o.docs.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	exec.Status = core.ExecutionCompleted
	exec.Result = fmt.Sprintf("%d chunks", doc.ChunkCount)
	exec.FinishedAt = time.Now().UTC()
	if _, err := o.workflows.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	documentsCompleted.Inc()
	o.logger.Info("processing completed",
		"workflowId", exec.WorkflowId, "document", doc.Id, "chunks", doc.ChunkCount)
	return nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, doc *core.Document, exec *core.WorkflowExecution, cause error) error {
	if doc != nil {
		doc.ProcessingStatus = core.ProcessingFailed
		doc.ErrorMessage = cause.Error()
		if _, err := o.docs.UpdateDocument(ctx, doc); err != nil {
			o.logger.Error("failed to mark document failed", "document", doc.Id, "error", err)
		}
	}

	exec.Status = core.ExecutionFailed
	exec.ErrorMessage = cause.Error()
	exec.FinishedAt = time.Now().UTC()
	if _, err := o.workflows.UpdateExecution(ctx, exec); err != nil {
		o.logger.Error("failed to mark execution failed", "workflowId", exec.WorkflowId, "error", err)
	}
	documentsFailed.Inc()
	return cause
}

func (o *Orchestrator) finishCancelled(ctx context.Context, doc *core.Document, exec *core.WorkflowExecution) error {
	doc.ProcessingStatus = core.ProcessingFailed
	doc.ErrorMessage = ErrCancelled.Error()
	if _, err := o.docs.UpdateDocument(ctx, doc); err != nil {
		o.logger.Error("failed to mark document cancelled", "document", doc.Id, "error", err)
	}

	exec.Status = core.ExecutionCancelled
	exec.Result = "cancelled"
	exec.FinishedAt = time.Now().UTC()
	if _, err := o.workflows.UpdateExecution(ctx, exec); err != nil {
		o.logger.Error("failed to mark execution cancelled", "workflowId", exec.WorkflowId, "error", err)
	}
	documentsFailed.Inc()
	o.logger.Info("processing cancelled", "workflowId", exec.WorkflowId, "document", doc.Id)
	return ErrCancelled
}

func (o *Orchestrator) backoff(ctx context.Context, retry int) error {
	if retry < 1 || o.baseDelay <= 0 {
		return ctx.Err()
	}
	delay := o.baseDelay << (retry - 1)
	if o.maxDelay > 0 && delay > o.maxDelay {
		delay = o.maxDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docvault/ai"
	"github.com/poiesic/docvault/ai/mock"
	"github.com/poiesic/docvault/blob"
	"github.com/poiesic/docvault/chunk"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/embed"
	"github.com/poiesic/docvault/storage"
	badgerstore "github.com/poiesic/docvault/storage/badger"
)

type testEnv struct {
	orch     *Orchestrator
	stores   *badgerstore.Stores
	blobs    blob.Store
	embedder *mock.MockEmbedder
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	return newTestEnvBatcher(t, nil, opts...)
}

func newTestEnvBatcher(t *testing.T, batcherOpts []embed.BatcherOption, opts ...Option) *testEnv {
	t.Helper()

	stores, backend, err := badgerstore.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	blobs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	engine, err := chunk.NewEngine(chunk.WordTokenizer{},
		chunk.WithTokenBounds(10, 40),
		chunk.WithOverlap(2, 5))
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 8
	batcherOpts = append([]embed.BatcherOption{
		embed.WithDimensions(8),
		embed.WithMaxRetries(3),
		embed.WithBackoff(time.Millisecond, 5*time.Millisecond),
	}, batcherOpts...)
	batcher, err := embed.NewBatcher(embedder, batcherOpts...)
	require.NoError(t, err)

	opts = append([]Option{
		WithMaxRetries(3),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	}, opts...)
	orch, err := NewOrchestrator(Dependencies{
		Documents: stores.Documents,
		Chunks:    stores.Chunks,
		Jobs:      stores.Jobs,
		Workflows: stores.Workflows,
		Blobs:     blobs,
		Chunker:   engine,
		Batcher:   batcher,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	return &testEnv{orch: orch, stores: stores, blobs: blobs, embedder: embedder}
}

// addDocument stores the raw text in the blob store and registers a
// completed upload for it.
func (env *testEnv) addDocument(t *testing.T, externalID, text string) *core.Document {
	t.Helper()
	ctx := context.Background()

	_, err := env.blobs.Put(ctx, "uploads", externalID, strings.NewReader(text))
	require.NoError(t, err)

	doc, err := env.stores.Documents.AddDocument(ctx, &core.Document{
		ExternalId:   externalID,
		Filename:     externalID + ".txt",
		Bucket:       "uploads",
		Key:          externalID,
		SizeBytes:    int64(len(text)),
		ContentType:  "text/plain",
		UploadStatus: core.UploadCompleted,
	})
	require.NoError(t, err)
	return doc
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestProcessHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "report-1", words(60)+"\n\n"+words(25))

	require.NoError(t, env.orch.Process(ctx, doc.Id))

	doc, err := env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, doc.ProcessingStatus)
	assert.Empty(t, doc.ErrorMessage)
	require.Greater(t, doc.ChunkCount, 0)

	chunks, err := env.stores.Chunks.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, doc.ChunkCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.True(t, c.Embedded())
		assert.Len(t, c.Vector, 8)
	}

	exec, err := env.stores.Workflows.LatestExecution(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ExecutionCompleted, exec.Status)
	assert.True(t, strings.HasPrefix(exec.WorkflowId, "docproc-"))
	assert.False(t, exec.FinishedAt.IsZero())

	for _, stage := range []core.Stage{
		core.StageExtract, core.StageChunk, core.StageEmbed,
		core.StageStore, core.StageFullPipeline,
	} {
		job, err := env.stores.Jobs.LatestJob(ctx, doc.Id, stage)
		require.NoError(t, err, stage.String())
		assert.Equal(t, core.JobCompleted, job.Status, stage.String())
		assert.Zero(t, job.RetryCount, stage.String())
	}
}

func TestProcessRejectsIncompleteUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.stores.Documents.AddDocument(ctx, &core.Document{
		ExternalId:   "pending-1",
		Bucket:       "uploads",
		Key:          "pending-1",
		ContentType:  "text/plain",
		UploadStatus: core.UploadInProgress,
	})
	require.NoError(t, err)

	err = env.orch.Process(ctx, doc.Id)
	require.ErrorIs(t, err, ErrUploadIncomplete)
}

func TestProcessEmbeddingRetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "flaky-1", words(20))

	calls := 0
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls <= 2 {
			return nil, ai.ErrRateLimited
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, 8)
		}
		return vectors, nil
	}

	require.NoError(t, env.orch.Process(ctx, doc.Id))

	job, err := env.stores.Jobs.LatestJob(ctx, doc.Id, core.StageEmbed)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 2, job.RetryCount)

	doc, err = env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, doc.ProcessingStatus)
}

func TestProcessParallelBatchRetriesAllRecorded(t *testing.T) {
	// single-chunk batches with concurrency force the retry observer to
	// fire from several goroutines at once; every attempt must land on
	// the embed job's retry count, none lost to racing writers
	env := newTestEnvBatcher(t, []embed.BatcherOption{
		embed.WithBatchSize(1),
		embed.WithConcurrency(4),
	})
	ctx := context.Background()

	// distinct paragraphs too large to merge, so each becomes a chunk
	paras := make([]string, 6)
	for i := range paras {
		word := fmt.Sprintf("p%d", i)
		paras[i] = strings.TrimSpace(strings.Repeat(word+" ", 25))
	}
	doc := env.addDocument(t, "parallel-1", strings.Join(paras, "\n\n"))

	var mu sync.Mutex
	failed := make(map[string]bool)
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		first := !failed[texts[0]]
		failed[texts[0]] = true
		mu.Unlock()
		if first {
			return nil, ai.ErrRateLimited
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, 8)
		}
		return vectors, nil
	}

	require.NoError(t, env.orch.Process(ctx, doc.Id))

	doc, err := env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, doc.ProcessingStatus)
	require.GreaterOrEqual(t, doc.ChunkCount, 4, "need several batches in flight")

	job, err := env.stores.Jobs.LatestJob(ctx, doc.Id, core.StageEmbed)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, doc.ChunkCount, job.RetryCount,
		"one retry per batch, every one recorded")
}

func TestProcessEmbeddingExhaustsRetries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "doomed-1", words(20))

	calls := 0
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, ai.ErrRateLimited
	}

	err := env.orch.Process(ctx, doc.Id)
	require.ErrorIs(t, err, embed.ErrRetriesExhausted)
	assert.Equal(t, 3, calls)

	job, jobErr := env.stores.Jobs.LatestJob(ctx, doc.Id, core.StageEmbed)
	require.NoError(t, jobErr)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Equal(t, 2, job.RetryCount)

	doc, docErr := env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, docErr)
	assert.Equal(t, core.ProcessingFailed, doc.ProcessingStatus)
	assert.Contains(t, doc.ErrorMessage, "exhausted")

	exec, execErr := env.stores.Workflows.LatestExecution(ctx, doc.Id)
	require.NoError(t, execErr)
	assert.Equal(t, core.ExecutionFailed, exec.Status)
}

func TestProcessFatalErrorFailsWithoutRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.blobs.Put(ctx, "uploads", "image-1", strings.NewReader("\x89PNG"))
	require.NoError(t, err)
	doc, err := env.stores.Documents.AddDocument(ctx, &core.Document{
		ExternalId:   "image-1",
		Bucket:       "uploads",
		Key:          "image-1",
		ContentType:  "image/png",
		UploadStatus: core.UploadCompleted,
	})
	require.NoError(t, err)

	err = env.orch.Process(ctx, doc.Id)
	require.Error(t, err)

	job, jobErr := env.stores.Jobs.LatestJob(ctx, doc.Id, core.StageExtract)
	require.NoError(t, jobErr)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Zero(t, job.RetryCount)
	assert.Zero(t, env.embedder.CallCount())

	doc, docErr := env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, docErr)
	assert.Equal(t, core.ProcessingFailed, doc.ProcessingStatus)
}

func TestProcessResumesAfterCompletedExtract(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The raw upload is deliberately absent; only the spooled text and a
	// completed extract job exist, as they would after a crash between
	// extract and chunk. Processing must not touch the raw object again.
	doc, err := env.stores.Documents.AddDocument(ctx, &core.Document{
		ExternalId:   "crashed-1",
		Bucket:       "uploads",
		Key:          "missing",
		ContentType:  "text/plain",
		UploadStatus: core.UploadCompleted,
	})
	require.NoError(t, err)

	_, err = env.blobs.Put(ctx, "extracted", extractedKey(doc.Id), strings.NewReader(words(30)))
	require.NoError(t, err)
	_, err = env.stores.Jobs.AddJob(ctx, &core.ProcessingJob{
		DocumentId: doc.Id,
		Stage:      core.StageExtract,
		Status:     core.JobCompleted,
		MaxRetries: 3,
	})
	require.NoError(t, err)

	require.NoError(t, env.orch.Process(ctx, doc.Id))

	doc, err = env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, doc.ProcessingStatus)
	assert.Greater(t, doc.ChunkCount, 0)
}

func TestRecoverResubmitsRunningExecutions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "orphan-1", words(20))

	_, err := env.stores.Workflows.AddExecution(ctx, &core.WorkflowExecution{
		WorkflowId: "docproc-orphan",
		RunId:      "run-orphan",
		Type:       "document_processing",
		DocumentId: doc.Id,
		Status:     core.ExecutionRunning,
	})
	require.NoError(t, err)

	n, err := env.orch.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	env.orch.Wait()

	doc, err = env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, doc.ProcessingStatus)

	exec, err := env.stores.Workflows.LatestExecution(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ExecutionCompleted, exec.Status)
}

func TestCancelWithoutActiveExecution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "idle-1", words(20))

	err := env.orch.Cancel(ctx, doc.Id)
	require.ErrorIs(t, err, ErrNoActiveExecution)

	require.NoError(t, env.orch.Process(ctx, doc.Id))
	err = env.orch.Cancel(ctx, doc.Id)
	require.ErrorIs(t, err, ErrNoActiveExecution)
}

func TestCancelRequestedStopsRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "cancel-1", words(20))

	exec, err := env.stores.Workflows.AddExecution(ctx, &core.WorkflowExecution{
		WorkflowId: "docproc-cancel",
		RunId:      "run-cancel",
		Type:       "document_processing",
		DocumentId: doc.Id,
		Status:     core.ExecutionRunning,
	})
	require.NoError(t, err)

	require.NoError(t, env.orch.Cancel(ctx, doc.Id))

	err = env.orch.run(ctx, exec)
	require.ErrorIs(t, err, ErrCancelled)

	doc, err = env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingFailed, doc.ProcessingStatus)
	assert.Equal(t, "processing cancelled", doc.ErrorMessage)

	exec, err = env.stores.Workflows.GetExecution(ctx, exec.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ExecutionCancelled, exec.Status)
	assert.Zero(t, env.embedder.CallCount())
}

func TestEnterStageSeesConcurrentCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "boundary-1", words(20))

	exec, err := env.stores.Workflows.AddExecution(ctx, &core.WorkflowExecution{
		WorkflowId: "docproc-boundary",
		RunId:      "run-boundary",
		Type:       "document_processing",
		DocumentId: doc.Id,
		Status:     core.ExecutionRunning,
	})
	require.NoError(t, err)

	// the run holds an in-memory copy predating the cancel; the stage
	// transition must re-read the record instead of writing over it
	stale := *exec
	require.NoError(t, env.orch.Cancel(ctx, doc.Id))

	current, cancelled, err := env.orch.enterStage(ctx, &stale, core.StageChunk)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.True(t, current.CancelRequested)

	got, err := env.stores.Workflows.GetExecution(ctx, exec.Id)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested, "cancel flag must survive the stage boundary")
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "busy-1", words(20))

	_, err := env.stores.Workflows.AddExecution(ctx, &core.WorkflowExecution{
		WorkflowId: "docproc-busy",
		RunId:      "run-busy",
		Type:       "document_processing",
		DocumentId: doc.Id,
		Status:     core.ExecutionRunning,
	})
	require.NoError(t, err)

	_, err = env.orch.Start(ctx, doc.Id)
	require.ErrorIs(t, err, storage.ErrActiveExecution)
}

func TestStoreVerificationFailsOnMissingChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.stores.Documents.AddDocument(ctx, &core.Document{
		ExternalId:   "torn-1",
		Bucket:       "uploads",
		Key:          "torn-1",
		ContentType:  "text/plain",
		UploadStatus: core.UploadCompleted,
		ChunkCount:   5,
	})
	require.NoError(t, err)

	for _, stage := range []core.Stage{core.StageExtract, core.StageChunk, core.StageEmbed} {
		_, err = env.stores.Jobs.AddJob(ctx, &core.ProcessingJob{
			DocumentId: doc.Id,
			Stage:      stage,
			Status:     core.JobCompleted,
			MaxRetries: 3,
		})
		require.NoError(t, err)
	}

	err = env.orch.Process(ctx, doc.Id)
	require.ErrorIs(t, err, ErrChunkVerification)

	job, jobErr := env.stores.Jobs.LatestJob(ctx, doc.Id, core.StageStore)
	require.NoError(t, jobErr)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Zero(t, job.RetryCount)
}

func TestStartRunsAsynchronously(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.addDocument(t, "async-1", words(20))

	workflowID, err := env.orch.Start(ctx, doc.Id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(workflowID, "docproc-"))
	env.orch.Wait()

	exec, err := env.stores.Workflows.GetExecutionByWorkflowId(ctx, workflowID)
	require.NoError(t, err)
	assert.Equal(t, core.ExecutionCompleted, exec.Status)

	doc, err = env.stores.Documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, doc.ProcessingStatus)
}

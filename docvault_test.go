package docvault

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docvault/ai"
	"github.com/poiesic/docvault/ai/mock"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/storage"
)

func newTestService(t *testing.T) (*Service, *mock.MockEmbedder) {
	t.Helper()

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 8
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 0, 0, 0, 0, 0, 0, 0}
		}
		return vectors, nil
	}

	svc, err := NewService(t.TempDir(),
		WithEmbedder(embedder),
		WithWordTokenizer(),
		WithAIConfig(ai.NewConfig(ai.WithDimensions(8))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, embedder
}

func repeatWords(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestServiceEndToEnd(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, "guide-1", "guide.txt", "text/plain",
		strings.NewReader(repeatWords(30)))
	require.NoError(t, err)
	assert.Equal(t, core.UploadCompleted, doc.UploadStatus)
	assert.Equal(t, int64(len(repeatWords(30))), doc.SizeBytes)

	require.NoError(t, svc.Process(ctx, doc.Id))

	status, err := svc.Status(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, status.Document.ProcessingStatus)
	require.NotNil(t, status.Execution)
	assert.Equal(t, core.ExecutionCompleted, status.Execution.Status)
	assert.NotEmpty(t, status.Jobs)

	gotDoc, chunks, err := svc.GetDocumentWithChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, doc.Id, gotDoc.Id)
	require.Len(t, chunks, gotDoc.ChunkCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.True(t, c.Embedded())
	}

	results, err := svc.Search(ctx, "where are the words")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, doc.Id, results[0].Document.Id)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	usage := svc.Usage()
	assert.Greater(t, usage.Requests, uint64(0))
	assert.Greater(t, usage.Chunks, uint64(0))
}

func TestAddDocumentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddDocument(ctx, "", "a.txt", "text/plain", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrExternalIDRequired)

	_, err = svc.AddDocument(ctx, "a", "a.txt", "", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrContentTypeRequired)

	_, err = svc.AddDocument(ctx, "a", "a.txt", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = svc.AddDocument(ctx, "a", "a.txt", "text/plain", strings.NewReader("y"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestReprocessRunsFromExtraction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, "guide-2", "guide.txt", "text/plain",
		strings.NewReader(repeatWords(20)))
	require.NoError(t, err)
	require.NoError(t, svc.Process(ctx, doc.Id))

	firstStatus, err := svc.Status(ctx, doc.Id)
	require.NoError(t, err)
	firstJobs := len(firstStatus.Jobs)

	workflowID, err := svc.Reprocess(ctx, doc.Id)
	require.NoError(t, err)
	assert.NotEqual(t, firstStatus.Execution.WorkflowId, workflowID)
	svc.Wait()

	status, err := svc.Status(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProcessingCompleted, status.Document.ProcessingStatus)
	assert.Equal(t, core.ExecutionCompleted, status.Execution.Status)
	assert.Greater(t, len(status.Jobs), firstJobs)
}

func TestReprocessRejectsActiveRun(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, "guide-3", "guide.txt", "text/plain",
		strings.NewReader(repeatWords(20)))
	require.NoError(t, err)

	_, err = svc.stores.Workflows.AddExecution(ctx, &core.WorkflowExecution{
		WorkflowId: "docproc-busy",
		RunId:      "run-busy",
		Type:       "document_processing",
		DocumentId: doc.Id,
		Status:     core.ExecutionRunning,
	})
	require.NoError(t, err)

	_, err = svc.Reprocess(ctx, doc.Id)
	require.ErrorIs(t, err, ErrDocumentNotTerminal)
}

func TestDeleteDocumentRemovesBlobs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, "guide-4", "guide.txt", "text/plain",
		strings.NewReader(repeatWords(20)))
	require.NoError(t, err)
	require.NoError(t, svc.Process(ctx, doc.Id))

	require.NoError(t, svc.DeleteDocument(ctx, doc.Id))

	_, err = svc.GetDocument(ctx, doc.Id)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = svc.blobs.Stat(ctx, uploadBucket, doc.Key)
	require.Error(t, err)

	results, err := svc.Search(ctx, "words")
	require.NoError(t, err)
	assert.Empty(t, results)
}

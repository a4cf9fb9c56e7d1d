package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := Document{
		Id:               IDFromContent("doc-1"),
		ExternalId:       "doc-1",
		Filename:         "handbook.md",
		Bucket:           "document-uploads",
		Key:              "doc-1/handbook.md",
		SizeBytes:        4096,
		ContentType:      "text/markdown",
		UploadStatus:     UploadCompleted,
		ProcessingStatus: ProcessingQueued,
		ChunkCount:       3,
		Metadata:         map[string]string{"team": "platform"},
		ErrorMessage:     "",
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	bs := make([]byte, DocumentMUS.Size(doc))
	n := DocumentMUS.Marshal(doc, bs)
	require.Equal(t, len(bs), n, "marshal must fill the sized buffer exactly")

	got, n, err := DocumentMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, len(bs), n)
	assert.Equal(t, doc, got)
}

func TestChunkMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	chunk := Chunk{
		DocumentId: 42,
		Index:      7,
		Text:       "The rate limiter refills continuously.",
		TokenCount: 8,
		Vector:     []float32{0.25, -0.5, 0.75, 1.0},
		Metadata:   map[string]string{"heading": "Limits"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	bs := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, bs)

	got, _, err := ChunkMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)
}

func TestChunkMUS_EmptyVector(t *testing.T) {
	chunk := Chunk{DocumentId: 1, Index: 0, Text: "unembedded"}

	bs := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, bs)

	got, _, err := ChunkMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Nil(t, got.Vector)
	assert.False(t, got.Embedded())
}

func TestProcessingJobMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	job := ProcessingJob{
		Id:           9,
		DocumentId:   42,
		Stage:        StageEmbed,
		Status:       JobRunning,
		RetryCount:   2,
		MaxRetries:   3,
		ErrorMessage: "rate limited",
		StartedAt:    now,
		UpdatedAt:    now,
		// FinishedAt stays zero while running
	}

	bs := make([]byte, ProcessingJobMUS.Size(job))
	ProcessingJobMUS.Marshal(job, bs)

	got, _, err := ProcessingJobMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, job, got)
	assert.True(t, got.FinishedAt.IsZero(), "zero FinishedAt must round-trip as zero")
}

func TestWorkflowExecutionMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	exec := WorkflowExecution{
		Id:              11,
		WorkflowId:      "wf-3a9c",
		RunId:           "run-0001",
		Type:            "document_processing",
		DocumentId:      42,
		Status:          ExecutionRunning,
		CurrentStage:    StageChunk,
		CancelRequested: true,
		StartedAt:       now,
		UpdatedAt:       now,
	}

	bs := make([]byte, WorkflowExecutionMUS.Size(exec))
	WorkflowExecutionMUS.Marshal(exec, bs)

	got, _, err := WorkflowExecutionMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, exec, got)
}

func TestDocumentMUS_NilMetadata(t *testing.T) {
	doc := Document{Id: 1, ExternalId: "x", Bucket: "b", Key: "k", ContentType: "text/plain"}

	bs := make([]byte, DocumentMUS.Size(doc))
	DocumentMUS.Marshal(doc, bs)

	got, _, err := DocumentMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Nil(t, got.Metadata, "empty metadata round-trips as nil")
}

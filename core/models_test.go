package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent_Deterministic(t *testing.T) {
	id1 := IDFromContent("3f1c2a0e-upload")
	id2 := IDFromContent("3f1c2a0e-upload")
	assert.Equal(t, id1, id2, "identical content must produce identical IDs")

	id3 := IDFromContent("3f1c2a0e-other")
	assert.NotEqual(t, id1, id3, "different content should produce different IDs")
}

func TestIDFromContent_NonZero(t *testing.T) {
	require.NotZero(t, IDFromContent("a"))
	require.NotZero(t, IDFromContent(""))
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "pending", UploadPending.String())
	assert.Equal(t, "uploading", UploadInProgress.String())
	assert.Equal(t, "completed", UploadCompleted.String())
	assert.Equal(t, "failed", UploadFailed.String())

	assert.Equal(t, "queued", ProcessingQueued.String())
	assert.Equal(t, "processing", ProcessingInProgress.String())
	assert.Equal(t, "completed", ProcessingCompleted.String())
	assert.Equal(t, "failed", ProcessingFailed.String())
	assert.Equal(t, "unknown", ProcessingStatus(0).String())
}

func TestStageStrings(t *testing.T) {
	assert.Equal(t, "extract", StageExtract.String())
	assert.Equal(t, "chunk", StageChunk.String())
	assert.Equal(t, "embed", StageEmbed.String())
	assert.Equal(t, "store", StageStore.String())
	assert.Equal(t, "full_pipeline", StageFullPipeline.String())
}

func TestProcessingStatus_Terminal(t *testing.T) {
	assert.False(t, ProcessingQueued.Terminal())
	assert.False(t, ProcessingInProgress.Terminal())
	assert.True(t, ProcessingCompleted.Terminal())
	assert.True(t, ProcessingFailed.Terminal())
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, ExecutionRunning.Terminal())
	assert.True(t, ExecutionCompleted.Terminal())
	assert.True(t, ExecutionFailed.Terminal())
	assert.True(t, ExecutionCancelled.Terminal())
}

func TestChunk_Embedded(t *testing.T) {
	chunk := &Chunk{DocumentId: 1, Index: 0, Text: "hello"}
	assert.False(t, chunk.Embedded())

	chunk.Vector = []float32{0.1, 0.2}
	assert.True(t, chunk.Embedded())
}

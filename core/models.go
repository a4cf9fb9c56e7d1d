package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs; external document
// identifiers map to the same internal ID on every run.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// UploadStatus tracks the transfer of raw document bytes into the blob store.
type UploadStatus int

const (
	// UploadPending means the upload has been announced but no bytes received.
	UploadPending UploadStatus = iota + 1
	// UploadInProgress means bytes are being transferred.
	UploadInProgress
	// UploadCompleted means the raw bytes are durably stored.
	UploadCompleted
	// UploadFailed means the transfer was aborted.
	UploadFailed
)

func (s UploadStatus) String() string {
	switch s {
	case UploadPending:
		return "pending"
	case UploadInProgress:
		return "uploading"
	case UploadCompleted:
		return "completed"
	case UploadFailed:
		return "failed"
	}
	return "unknown"
}

// ProcessingStatus tracks the document through the processing pipeline.
type ProcessingStatus int

const (
	// ProcessingQueued means the document is waiting for a pipeline worker.
	ProcessingQueued ProcessingStatus = iota + 1
	// ProcessingInProgress means a pipeline execution is running.
	ProcessingInProgress
	// ProcessingCompleted means every chunk is stored with an embedding.
	ProcessingCompleted
	// ProcessingFailed means the pipeline gave up on the document.
	ProcessingFailed
)

func (s ProcessingStatus) String() string {
	switch s {
	case ProcessingQueued:
		return "queued"
	case ProcessingInProgress:
		return "processing"
	case ProcessingCompleted:
		return "completed"
	case ProcessingFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the status is a terminal pipeline state.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

// Stage identifies one discrete step of the processing pipeline.
type Stage int

const (
	// StageExtract converts raw bytes into plain text.
	StageExtract Stage = iota + 1
	// StageChunk splits extracted text into overlapping segments.
	StageChunk
	// StageEmbed generates embedding vectors for chunks.
	StageEmbed
	// StageStore verifies persisted chunks and finalizes the document.
	StageStore
	// StageFullPipeline is the bookkeeping record covering a whole execution.
	StageFullPipeline
)

func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageChunk:
		return "chunk"
	case StageEmbed:
		return "embed"
	case StageStore:
		return "store"
	case StageFullPipeline:
		return "full_pipeline"
	}
	return "unknown"
}

// JobStatus is the lifecycle status of a ProcessingJob.
type JobStatus int

const (
	JobPending JobStatus = iota + 1
	JobRunning
	JobCompleted
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	}
	return "unknown"
}

// ExecutionStatus is the lifecycle status of a WorkflowExecution.
type ExecutionStatus int

const (
	ExecutionRunning ExecutionStatus = iota + 1
	ExecutionCompleted
	ExecutionFailed
	ExecutionCancelled
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionRunning:
		return "running"
	case ExecutionCompleted:
		return "completed"
	case ExecutionFailed:
		return "failed"
	case ExecutionCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the execution reached a terminal state.
// A new execution for the same document may only start after the previous
// one is terminal.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Document is an uploaded file tracked through extraction, chunking,
// embedding, and storage. Mutated only by the pipeline orchestrator.
type Document struct {
	Id               ID
	ExternalId       string // opaque identifier supplied by the upload collaborator
	Filename         string
	Bucket           string // blob store bucket holding the raw bytes
	Key              string // blob store key holding the raw bytes
	SizeBytes        int64
	ContentType      string
	UploadStatus     UploadStatus
	ProcessingStatus ProcessingStatus
	ChunkCount       int // assigned by the chunking stage; indices run 0..ChunkCount-1
	Metadata         map[string]string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Chunk is a bounded span of a document's text with its embedding vector.
// Chunks are keyed by (DocumentId, Index); indices form a contiguous
// 0..N-1 sequence once processing completes.
type Chunk struct {
	DocumentId ID
	Index      int
	Text       string
	TokenCount int
	Vector     []float32 // empty until the embedding stage runs
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Embedded reports whether the chunk has a vector attached.
func (c *Chunk) Embedded() bool {
	return len(c.Vector) > 0
}

// ChunkDraft is the chunking engine's output before persistence: a chunk
// without document identity or vector.
type ChunkDraft struct {
	Index      int
	Text       string
	TokenCount int
	Metadata   map[string]string
}

// ProcessingJob is one ledger row per (document, stage) attempt set.
// Retries update the same row; a row is never mutated after terminal
// success or failure except by explicit reprocessing.
type ProcessingJob struct {
	Id           ID
	DocumentId   ID
	Stage        Stage
	Status       JobStatus
	RetryCount   int
	MaxRetries   int
	Result       string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
	UpdatedAt    time.Time
}

// WorkflowExecution links a document to one orchestration run.
// At most one non-terminal execution exists per document.
type WorkflowExecution struct {
	Id              ID
	WorkflowId      string // externally visible execution identifier
	RunId           string
	Type            string
	DocumentId      ID
	Status          ExecutionStatus
	CurrentStage    Stage // last stage entered; zero before extraction starts
	CancelRequested bool
	Result          string
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      time.Time
	UpdatedAt       time.Time
}

// ChunkMatch is a chunk returned from vector similarity search.
type ChunkMatch struct {
	Chunk *Chunk
	Score float32
}

// SearchResult is a search hit with source attribution.
type SearchResult struct {
	Document *Document
	Chunk    *Chunk
	Score    float32
}

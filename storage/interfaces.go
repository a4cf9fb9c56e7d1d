package storage

import (
	"context"

	"github.com/poiesic/docvault/core"
)

// DocumentStore provides operations for managing documents.
type DocumentStore interface {
	// AddDocument stores a new document. A zero Id is derived from the
	// ExternalId with content hashing, so the same external identifier
	// always maps to the same document. Sets CreatedAt/UpdatedAt if unset.
	// Returns ErrDuplicateKey if the document already exists.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument replaces an existing document record.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns up to limit documents; limit <= 0 means all.
	ListDocuments(ctx context.Context, limit int) ([]*core.Document, error)

	// DeleteDocument removes a document together with its chunks, jobs,
	// and workflow executions. Returns ErrNotFound if it doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// Close releases resources held by the store.
	Close() error
}

// ChunkStore provides operations for managing chunks and their vectors.
type ChunkStore interface {
	// UpsertChunks stores chunks keyed by (DocumentId, Index), replacing
	// any existing chunk at the same position. All chunks in one call are
	// written in a single transaction. Preserves CreatedAt on replace.
	UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunks retrieves all chunks of a document ordered by index.
	GetChunks(ctx context.Context, docID core.ID) ([]*core.Chunk, error)

	// GetChunkRange retrieves up to limit chunks of a document with
	// Index >= fromIndex, ordered by index. Paging through the range
	// keeps memory bounded per page instead of per document.
	GetChunkRange(ctx context.Context, docID core.ID, fromIndex, limit int) ([]*core.Chunk, error)

	// CountChunks returns the number of stored chunks for a document.
	CountChunks(ctx context.Context, docID core.ID) (int, error)

	// DeleteChunksFrom removes every chunk of the document with
	// Index >= fromIndex. Re-chunking uses it to keep indices contiguous
	// when a document shrinks.
	DeleteChunksFrom(ctx context.Context, docID core.ID, fromIndex int) error

	// FindSimilar finds chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results,
	// ordered by similarity score (highest first). Chunks without a vector
	// are skipped.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error)

	// Close releases resources held by the store.
	Close() error
}

// JobStore provides the processing job ledger.
type JobStore interface {
	// AddJob appends a job row, generating its ID from a sequence and
	// setting StartedAt/UpdatedAt if unset.
	AddJob(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, error)

	// UpdateJob replaces an existing job row.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, error)

	// GetJob retrieves a job by ID. Returns ErrNotFound if absent.
	GetJob(ctx context.Context, id core.ID) (*core.ProcessingJob, error)

	// LatestJob returns the most recent job for a document and stage.
	// Returns ErrNotFound when the stage has never run.
	LatestJob(ctx context.Context, docID core.ID, stage core.Stage) (*core.ProcessingJob, error)

	// ListJobs retrieves all jobs for a document, oldest first.
	ListJobs(ctx context.Context, docID core.ID) ([]*core.ProcessingJob, error)

	// Close releases resources held by the store.
	Close() error
}

// WorkflowStore tracks orchestration runs.
type WorkflowStore interface {
	// AddExecution records a new execution, generating its ID from a
	// sequence. Returns ErrActiveExecution if the document already has a
	// non-terminal execution.
	AddExecution(ctx context.Context, exec *core.WorkflowExecution) (*core.WorkflowExecution, error)

	// UpdateExecution replaces an existing execution record.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the execution doesn't exist, and
	// ErrTxnConflict when a concurrent writer updated the same record
	// first; callers re-read and retry.
	UpdateExecution(ctx context.Context, exec *core.WorkflowExecution) (*core.WorkflowExecution, error)

	// GetExecution retrieves an execution by ID. Returns ErrNotFound if absent.
	GetExecution(ctx context.Context, id core.ID) (*core.WorkflowExecution, error)

	// GetExecutionByWorkflowId retrieves an execution by its externally
	// visible workflow identifier. Returns ErrNotFound if absent.
	GetExecutionByWorkflowId(ctx context.Context, workflowID string) (*core.WorkflowExecution, error)

	// LatestExecution returns the most recently started execution for a
	// document. Returns ErrNotFound when the document has never run.
	LatestExecution(ctx context.Context, docID core.ID) (*core.WorkflowExecution, error)

	// ListRunning returns every execution still in the running state.
	// Crash recovery resubmits these on startup.
	ListRunning(ctx context.Context) ([]*core.WorkflowExecution, error)

	// Close releases resources held by the store.
	Close() error
}

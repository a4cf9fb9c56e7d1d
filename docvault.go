// Package docvault turns uploaded documents into searchable, embedded
// chunks backed by embedded storage.
//
// The Service facade owns the full stack: a Badger-backed store for
// documents, chunks, jobs, and workflow executions; a filesystem blob
// store for raw and extracted bytes; the processing pipeline; and
// vector search. Callers add documents, start processing, and query.
package docvault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/poiesic/docvault/ai"
	"github.com/poiesic/docvault/ai/openai"
	"github.com/poiesic/docvault/blob"
	"github.com/poiesic/docvault/chunk"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/embed"
	"github.com/poiesic/docvault/pipeline"
	"github.com/poiesic/docvault/search"
	"github.com/poiesic/docvault/storage"
	badgerstore "github.com/poiesic/docvault/storage/badger"
)

const (
	uploadBucket = "uploads"

	// maxUploadBytes bounds a single document upload at 10 GiB.
	maxUploadBytes = int64(10) << 30
)

// Service is the top-level entry point. Safe for concurrent use.
type Service struct {
	backend *badgerstore.Backend
	stores  *badgerstore.Stores
	blobs   blob.Store
	batcher *embed.Batcher
	orch    *pipeline.Orchestrator
	search  *search.Searcher
	logger  *slog.Logger
}

type serviceConfig struct {
	aiConfig      *ai.Config
	embedder      ai.Embedder
	rateRequests  int
	rateWindow    time.Duration
	chunkOptions  []chunk.Option
	pipelineOpts  []pipeline.Option
	logger        *slog.Logger
	wordTokenizer bool
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceConfig)

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) ServiceOption {
	return func(c *serviceConfig) {
		if cfg != nil {
			c.aiConfig = cfg
		}
	}
}

// WithEmbedder injects an embedder directly, bypassing the OpenAI
// client. Vector dimensionality still comes from the AI config.
func WithEmbedder(e ai.Embedder) ServiceOption {
	return func(c *serviceConfig) {
		c.embedder = e
	}
}

// WithRateLimit caps embedding requests per window across document
// processing and queries. Zero requests means unlimited.
func WithRateLimit(requests int, window time.Duration) ServiceOption {
	return func(c *serviceConfig) {
		c.rateRequests = requests
		c.rateWindow = window
	}
}

// WithChunkOptions forwards options to the chunking engine.
func WithChunkOptions(opts ...chunk.Option) ServiceOption {
	return func(c *serviceConfig) {
		c.chunkOptions = append(c.chunkOptions, opts...)
	}
}

// WithPipelineOptions forwards options to the orchestrator.
func WithPipelineOptions(opts ...pipeline.Option) ServiceOption {
	return func(c *serviceConfig) {
		c.pipelineOpts = append(c.pipelineOpts, opts...)
	}
}

// WithWordTokenizer swaps the BPE tokenizer for whitespace word
// counting. Intended for tests; token bounds then count words.
func WithWordTokenizer() ServiceOption {
	return func(c *serviceConfig) {
		c.wordTokenizer = true
	}
}

// WithServiceLogger sets a custom logger. Default is slog.Default().
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(c *serviceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewService opens (or creates) a docvault instance rooted at dataDir.
// The directory holds the Badger database under db/ and blobs under
// blobs/.
func NewService(dataDir string, opts ...ServiceOption) (*Service, error) {
	if dataDir == "" {
		return nil, ErrDataDirRequired
	}

	cfg := &serviceConfig{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	backend, err := badgerstore.OpenBackend(filepath.Join(dataDir, "db"), false)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	stores, err := badgerstore.NewStores(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	blobs, err := blob.NewFSStore(filepath.Join(dataDir, "blobs"))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	embedder := cfg.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(cfg.aiConfig)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
	}

	batcherOpts := []embed.BatcherOption{
		embed.WithDimensions(cfg.aiConfig.Dimensions),
	}
	if cfg.rateRequests > 0 {
		batcherOpts = append(batcherOpts,
			embed.WithLimiter(embed.NewRateLimiter(cfg.rateRequests, cfg.rateWindow)))
	}
	batcher, err := embed.NewBatcher(embedder, batcherOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	var tokenizer chunk.Tokenizer
	if cfg.wordTokenizer {
		tokenizer = chunk.WordTokenizer{}
	} else {
		tokenizer, err = chunk.NewTiktokenTokenizer()
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("loading tokenizer: %w", err)
		}
	}
	engine, err := chunk.NewEngine(tokenizer, cfg.chunkOptions...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Dependencies{
		Documents: stores.Documents,
		Chunks:    stores.Chunks,
		Jobs:      stores.Jobs,
		Workflows: stores.Workflows,
		Blobs:     blobs,
		Chunker:   engine,
		Batcher:   batcher,
	}, cfg.pipelineOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(stores.Documents, stores.Chunks, batcher)
	if err != nil {
		orch.Release()
		backend.Close()
		return nil, err
	}

	return &Service{
		backend: backend,
		stores:  stores,
		blobs:   blobs,
		batcher: batcher,
		orch:    orch,
		search:  searcher,
		logger:  cfg.logger,
	}, nil
}

// AddDocument streams an upload into the blob store and registers the
// document. The same external identifier always maps to the same
// document; adding it twice returns storage.ErrDuplicateKey.
func (s *Service) AddDocument(ctx context.Context, externalID, filename, contentType string, r io.Reader) (*core.Document, error) {
	if externalID == "" {
		return nil, ErrExternalIDRequired
	}
	if contentType == "" {
		return nil, ErrContentTypeRequired
	}

	docID := core.IDFromContent(externalID)
	if _, err := s.stores.Documents.GetDocument(ctx, docID); err == nil {
		return nil, fmt.Errorf("%w: external id %q", storage.ErrDuplicateKey, externalID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	key := fmt.Sprintf("%016x", uint64(docID))
	n, err := s.blobs.Put(ctx, uploadBucket, key, io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	if n > maxUploadBytes {
		if delErr := s.blobs.Delete(ctx, uploadBucket, key); delErr != nil {
			s.logger.Error("failed to remove oversized upload", "key", key, "error", delErr)
		}
		return nil, ErrDocumentTooLarge
	}

	doc, err := s.stores.Documents.AddDocument(ctx, &core.Document{
		Id:           docID,
		ExternalId:   externalID,
		Filename:     filename,
		Bucket:       uploadBucket,
		Key:          key,
		SizeBytes:    n,
		ContentType:  contentType,
		UploadStatus: core.UploadCompleted,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("document added",
		"document", doc.Id, "externalId", externalID, "bytes", n)
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Service) GetDocument(ctx context.Context, docID core.ID) (*core.Document, error) {
	return s.stores.Documents.GetDocument(ctx, docID)
}

// GetDocumentWithChunks retrieves a document together with all of its
// chunks ordered by index. A document without chunks returns an empty
// slice.
func (s *Service) GetDocumentWithChunks(ctx context.Context, docID core.ID) (*core.Document, []*core.Chunk, error) {
	doc, err := s.stores.Documents.GetDocument(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := s.stores.Chunks.GetChunks(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

// ListDocuments returns up to limit documents; limit <= 0 means all.
func (s *Service) ListDocuments(ctx context.Context, limit int) ([]*core.Document, error) {
	return s.stores.Documents.ListDocuments(ctx, limit)
}

// DeleteDocument removes the document record with its chunks, jobs, and
// executions, then deletes the raw and extracted blobs.
func (s *Service) DeleteDocument(ctx context.Context, docID core.ID) error {
	doc, err := s.stores.Documents.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.stores.Documents.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.Bucket, doc.Key); err != nil {
		s.logger.Error("failed to delete raw blob", "document", docID, "error", err)
	}
	if err := s.blobs.Delete(ctx, "extracted", fmt.Sprintf("%016x.txt", uint64(docID))); err != nil {
		s.logger.Error("failed to delete extracted blob", "document", docID, "error", err)
	}
	return nil
}

// Process runs the document through the pipeline synchronously.
func (s *Service) Process(ctx context.Context, docID core.ID) error {
	return s.orch.Process(ctx, docID)
}

// Start queues processing and returns the workflow identifier.
func (s *Service) Start(ctx context.Context, docID core.ID) (string, error) {
	return s.orch.Start(ctx, docID)
}

// Cancel requests cooperative cancellation of the document's active run.
func (s *Service) Cancel(ctx context.Context, docID core.ID) error {
	return s.orch.Cancel(ctx, docID)
}

// Reprocess invalidates the document's stage history and queues a fresh
// run from extraction. The previous run must be terminal.
func (s *Service) Reprocess(ctx context.Context, docID core.ID) (string, error) {
	doc, err := s.stores.Documents.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc.UploadStatus != core.UploadCompleted {
		return "", pipeline.ErrUploadIncomplete
	}
	if latest, err := s.stores.Workflows.LatestExecution(ctx, docID); err == nil {
		if !latest.Status.Terminal() {
			return "", ErrDocumentNotTerminal
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	// A pending row per stage makes the latest job non-complete, so the
	// next run starts from extraction instead of resuming.
	stages := []core.Stage{
		core.StageExtract, core.StageChunk, core.StageEmbed,
		core.StageStore, core.StageFullPipeline,
	}
	for _, stage := range stages {
		_, err := s.stores.Jobs.AddJob(ctx, &core.ProcessingJob{
			DocumentId: docID,
			Stage:      stage,
			Status:     core.JobPending,
			MaxRetries: 3,
		})
		if err != nil {
			return "", err
		}
	}
	return s.orch.Start(ctx, docID)
}

// Recover resubmits runs interrupted by a crash. Call once on startup.
func (s *Service) Recover(ctx context.Context) (int, error) {
	return s.orch.Recover(ctx)
}

// Status aggregates everything known about a document's processing.
type Status struct {
	Document  *core.Document
	Execution *core.WorkflowExecution // nil when the document never ran
	Jobs      []*core.ProcessingJob
}

// Status returns the document with its latest execution and job ledger.
func (s *Service) Status(ctx context.Context, docID core.ID) (*Status, error) {
	doc, err := s.stores.Documents.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	status := &Status{Document: doc}

	exec, err := s.stores.Workflows.LatestExecution(ctx, docID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	status.Execution = exec

	jobs, err := s.stores.Jobs.ListJobs(ctx, docID)
	if err != nil {
		return nil, err
	}
	status.Jobs = jobs
	return status, nil
}

// Search runs a similarity query with default threshold and limit.
func (s *Service) Search(ctx context.Context, query string) ([]*core.SearchResult, error) {
	return s.search.Search(ctx, query)
}

// SearchWith runs a similarity query with explicit threshold and limit.
func (s *Service) SearchWith(ctx context.Context, query string, threshold float32, limit int) ([]*core.SearchResult, error) {
	return s.search.SearchWith(ctx, query, threshold, limit)
}

// Usage reports cumulative embedding usage counters.
func (s *Service) Usage() embed.Usage {
	return s.batcher.Usage()
}

// Wait blocks until queued processing runs finish.
func (s *Service) Wait() {
	s.orch.Wait()
}

// Close waits for in-flight runs and releases all resources.
func (s *Service) Close() error {
	s.orch.Release()
	return s.backend.Close()
}

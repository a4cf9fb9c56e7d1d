package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/embed"
	"github.com/poiesic/docvault/storage"
)

const (
	// DefaultThreshold is the minimum similarity for Search.
	DefaultThreshold = 0.7
	// DefaultLimit is the maximum result count for Search.
	DefaultLimit = 10
)

// Searcher embeds queries and matches them against stored chunk vectors.
type Searcher struct {
	docs    storage.DocumentStore
	chunks  storage.ChunkStore
	batcher *embed.Batcher
	logger  *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a searcher. The batcher must share the embedding
// model used during document processing, or scores are meaningless.
func NewSearcher(docs storage.DocumentStore, chunks storage.ChunkStore, batcher *embed.Batcher, opts ...Option) (*Searcher, error) {
	switch {
	case docs == nil:
		return nil, ErrDocumentStoreRequired
	case chunks == nil:
		return nil, ErrChunkStoreRequired
	case batcher == nil:
		return nil, ErrBatcherRequired
	}
	s := &Searcher{
		docs:    docs,
		chunks:  chunks,
		batcher: batcher,
		logger:  slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search runs the query with the default threshold and limit.
func (s *Searcher) Search(ctx context.Context, query string) ([]*core.SearchResult, error) {
	return s.SearchWith(ctx, query, DefaultThreshold, DefaultLimit)
}

// SearchWith runs the query returning up to limit chunks with
// similarity >= threshold, best first. A limit <= 0 falls back to the
// default. A threshold above the similarity range simply matches
// nothing.
func (s *Searcher) SearchWith(ctx context.Context, query string, threshold float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := s.batcher.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.chunks.FindSimilar(ctx, vector, threshold, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(matches))
	docCache := make(map[core.ID]*core.Document)
	for _, match := range matches {
		doc, ok := docCache[match.Chunk.DocumentId]
		if !ok {
			doc, err = s.docs.GetDocument(ctx, match.Chunk.DocumentId)
			if err != nil {
				// A chunk can outlive its document for the duration of a
				// cascade delete; skip rather than fail the whole query.
				if errors.Is(err, storage.ErrNotFound) {
					s.logger.Warn("chunk references missing document",
						"document", match.Chunk.DocumentId)
					continue
				}
				return nil, err
			}
			docCache[match.Chunk.DocumentId] = doc
		}
		results = append(results, &core.SearchResult{
			Document: doc,
			Chunk:    match.Chunk,
			Score:    match.Score,
		})
	}

	s.logger.Debug("search completed",
		"results", len(results), "threshold", threshold, "limit", limit)
	return results, nil
}

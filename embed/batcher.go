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


package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/docvault/ai"
	"github.com/poiesic/docvault/core"
)

// PersistFunc stores an embedded batch. It is called once per
// successful batch so earlier batches survive a later failure. It may
// be called from multiple goroutines.
type PersistFunc func(ctx context.Context, chunks []*core.Chunk) error

// Batcher embeds chunks in batches with rate limiting and transient
// retry. Vectors are normalized to unit length before the persist
// callback runs.
type Batcher struct {
	embedder    ai.Embedder
	limiter     *RateLimiter
	batchSize   int
	concurrency int
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	dimensions  int
	onRetry     func(err error)
	usage       *usageCounters
	logger      *slog.Logger
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithLimiter shares a rate limiter across embedding callers.
func WithLimiter(l *RateLimiter) BatcherOption {
	return func(b *Batcher) { b.limiter = l }
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithConcurrency bounds how many batches are in flight at once.
func WithConcurrency(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithMaxRetries sets the total attempt budget per batch.
func WithMaxRetries(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.maxRetries = n
		}
	}
}

// WithBackoff sets the exponential backoff bounds between attempts.
func WithBackoff(base, max time.Duration) BatcherOption {
	return func(b *Batcher) {
		b.baseDelay = base
		b.maxDelay = max
	}
}

// WithDimensions enforces vector dimensionality on every response.
func WithDimensions(dims int) BatcherOption {
	return func(b *Batcher) { b.dimensions = dims }
}

// WithRetryObserver is called once per failed attempt that will be
// retried, before the backoff sleep. The pipeline uses it to keep the
// job ledger's retry count honest.
func WithRetryObserver(fn func(err error)) BatcherOption {
	return func(b *Batcher) { b.onRetry = fn }
}

// NewBatcher creates a batcher. Defaults: batch size 100, 4 concurrent
// batches, 3 attempts per batch, 500ms..10s backoff.
func NewBatcher(embedder ai.Embedder, options ...BatcherOption) (*Batcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	b := &Batcher{
		embedder:    embedder,
		batchSize:   100,
		concurrency: 4,
		maxRetries:  3,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    10 * time.Second,
		usage:       &usageCounters{},
		logger:      slog.Default().With("component", "embed"),
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Usage returns a snapshot of this batcher's embedding activity.
func (b *Batcher) Usage() Usage {
	return b.usage.snapshot()
}

// WithObserver returns a view of the batcher with a different retry
// observer. The view shares the limiter, usage counters, and every
// other setting; the pipeline uses it to bind retries of one run to
// that run's job row.
func (b *Batcher) WithObserver(fn func(err error)) *Batcher {
	clone := *b
	clone.onRetry = fn
	return &clone
}

// EmbedChunks embeds every chunk that does not yet carry a vector and
// persists each batch as it completes. Chunks already embedded are
// skipped, which makes re-runs after a crash cheap.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []*core.Chunk, persist PersistFunc) error {
	var todo []*core.Chunk
	for _, c := range chunks {
		if !c.Embedded() {
			todo = append(todo, c)
		}
	}
	if len(todo) == 0 {
		return nil
	}
	b.logger.Info("embedding chunks", "total", len(chunks), "pending", len(todo))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(todo); start += b.batchSize {
		batch := todo[start:min(start+b.batchSize, len(todo))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := b.embedBatch(ctx, texts)
			if err != nil {
				return err
			}
			var tokens uint64
			for i, c := range batch {
				c.Vector = core.NormalizeVector(vectors[i])
				tokens += uint64(c.TokenCount)
			}
			b.usage.chunks.Add(uint64(len(batch)))
			b.usage.tokens.Add(tokens)
			chunksEmbedded.Add(float64(len(batch)))
			tokensEmbedded.Add(float64(tokens))
			if persist != nil {
				return persist(ctx, batch)
			}
			return nil
		})
	}
	return g.Wait()
}

// EmbedQuery embeds one query string through the same limiter and retry
// path as document chunks. The returned vector is unit length.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	vectors, err := b.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return core.NormalizeVector(vectors[0]), nil
}

// embedBatch issues one embedding request with the full retry budget.
// Fatal errors and context cancellation end the attempt loop
// immediately; only transient failures are retried.
func (b *Batcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if attempt > 0 {
			if err := b.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		b.usage.requests.Add(1)
		embeddingRequests.Inc()
		vectors, err := b.embedder.EmbedTexts(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, core.MarkFatal(fmt.Errorf("%w: want %d, got %d",
					ErrVectorCountMismatch, len(texts), len(vectors)))
			}
			if err := b.checkDimensions(vectors); err != nil {
				return nil, err
			}
			return vectors, nil
		}
		if !core.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt < b.maxRetries-1 {
			b.usage.retries.Add(1)
			embeddingRetries.Inc()
			b.logger.Warn("embedding attempt failed, retrying",
				"attempt", attempt+1, "error", err)
			if b.onRetry != nil {
				b.onRetry(err)
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, b.maxRetries, lastErr)
}

func (b *Batcher) checkDimensions(vectors [][]float32) error {
	if b.dimensions <= 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != b.dimensions {
			return core.MarkFatal(&ai.DimensionMismatchError{Want: b.dimensions, Got: len(v)})
		}
	}
	return nil
}

func (b *Batcher) backoff(ctx context.Context, attempt int) error {
	delay := b.baseDelay << (attempt - 1)
	if b.maxDelay > 0 && delay > b.maxDelay {
		delay = b.maxDelay
	}
	if delay <= 0 {
		return ctx.Err()
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

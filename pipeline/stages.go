package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/docvault/core"
)

// chunkWriteBatch bounds how many chunks go into one storage transaction
// during the chunking stage. chunkReadPage bounds how many chunks the
// embed and store stages hold in memory at once.
const (
	chunkWriteBatch = 64
	chunkReadPage   = 256
)

// extractedKey is the blob key holding a document's extracted text.
func extractedKey(docID core.ID) string {
	return fmt.Sprintf("%016x.txt", uint64(docID))
}

// runExtract converts the raw upload into plain text and spools it to
// the text bucket. The spooled text is what later stages read, so a
// resumed run never needs the extractor again.
func (o *Orchestrator) runExtract(ctx context.Context, doc *core.Document) (string, error) {
	raw, err := o.blobs.Get(ctx, doc.Bucket, doc.Key)
	if err != nil {
		return "", fmt.Errorf("reading raw document: %w", err)
	}
	defer raw.Close()

	text, err := o.extractor.Extract(ctx, doc.ContentType, raw)
	if err != nil {
		return "", err
	}
	defer text.Close()

	n, err := o.blobs.Put(ctx, o.textBucket, extractedKey(doc.Id), text)
	if err != nil {
		return "", fmt.Errorf("spooling extracted text: %w", err)
	}
	return fmt.Sprintf("extracted %d bytes", n), nil
}

// runChunk streams the extracted text through the chunking engine and
// persists the drafts in order. Stale chunks past the new count are
// removed so indices stay contiguous when a document shrinks.
func (o *Orchestrator) runChunk(ctx context.Context, doc *core.Document) (string, error) {
	text, err := o.blobs.Get(ctx, o.textBucket, extractedKey(doc.Id))
	if err != nil {
		return "", fmt.Errorf("reading extracted text: %w", err)
	}
	defer text.Close()

	now := time.Now().UTC()
	stream := o.chunker.Stream(text)
	batch := make([]*core.Chunk, 0, chunkWriteBatch)
	count := 0
	for {
		draft, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("chunking: %w", err)
		}
		batch = append(batch, &core.Chunk{
			DocumentId: doc.Id,
			Index:      draft.Index,
			Text:       draft.Text,
			TokenCount: draft.TokenCount,
			Metadata:   draft.Metadata,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		count++
		if len(batch) == chunkWriteBatch {
			if err := o.chunks.UpsertChunks(ctx, batch...); err != nil {
				return "", err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := o.chunks.UpsertChunks(ctx, batch...); err != nil {
			return "", err
		}
	}

	if err := o.chunks.DeleteChunksFrom(ctx, doc.Id, count); err != nil {
		return "", err
	}

	doc.ChunkCount = count
	if _, err := o.docs.UpdateDocument(ctx, doc); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d chunks", count), nil
}

// runEmbed generates vectors for every chunk that lacks one, paging
// through the stored range so memory stays bounded per page, not per
// document. The batcher's internal retries are recorded on the embed
// job row; the observer is serialized because the batcher retries from
// concurrent goroutines and the ledger row has a single writer.
func (o *Orchestrator) runEmbed(ctx context.Context, doc *core.Document, job *core.ProcessingJob) (string, error) {
	var mu sync.Mutex
	batcher := o.batcher.WithObserver(func(cause error) {
		mu.Lock()
		defer mu.Unlock()
		if trackErr := o.tracker.RecordRetry(ctx, job, cause); trackErr != nil {
			o.logger.Error("failed to record embedding retry",
				"document", doc.Id, "error", trackErr)
		}
	})
	persist := func(ctx context.Context, chunks []*core.Chunk) error {
		return o.chunks.UpsertChunks(ctx, chunks...)
	}

	total := 0
	for from := 0; ; {
		page, err := o.chunks.GetChunkRange(ctx, doc.Id, from, chunkReadPage)
		if err != nil {
			return "", err
		}
		if len(page) == 0 {
			break
		}
		if err := batcher.EmbedChunks(ctx, page, persist); err != nil {
			return "", err
		}
		total += len(page)
		from = page[len(page)-1].Index + 1
	}
	return fmt.Sprintf("%d chunks embedded", total), nil
}

// runStore verifies the persisted chunks before the document is
// finalized: the count matches the document, indices are contiguous
// from zero, and every chunk carries a vector. Verification pages
// through the range like the embed stage. A violation is fatal because
// retrying cannot repair stored data.
func (o *Orchestrator) runStore(ctx context.Context, doc *core.Document) (string, error) {
	next := 0
	for {
		page, err := o.chunks.GetChunkRange(ctx, doc.Id, next, chunkReadPage)
		if err != nil {
			return "", err
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			if c.Index != next {
				return "", core.MarkFatal(fmt.Errorf("%w: index %d at position %d",
					ErrChunkVerification, c.Index, next))
			}
			if !c.Embedded() {
				return "", core.MarkFatal(fmt.Errorf("%w: chunk %d has no vector",
					ErrChunkVerification, c.Index))
			}
			next++
		}
	}
	if next != doc.ChunkCount {
		return "", core.MarkFatal(fmt.Errorf("%w: have %d chunks, document records %d",
			ErrChunkVerification, next, doc.ChunkCount))
	}
	return fmt.Sprintf("%d chunks verified", next), nil
}

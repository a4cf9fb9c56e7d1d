package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/storage"
)

// ChunkStore implements storage.ChunkStore for BadgerDB.
type ChunkStore struct {
	backend *Backend
}

var _ storage.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(backend *Backend) (storage.ChunkStore, error) {
	return &ChunkStore{backend: backend}, nil
}

// Close releases resources. The backend itself is closed by its owner.
func (s *ChunkStore) Close() error {
	return nil
}

// UpsertChunks stores chunks keyed by (DocumentId, Index) in one
// transaction. Replacing a chunk keeps its original CreatedAt.
func (s *ChunkStore) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.DocumentId, chunk.Index)

			old, err := readChunk(tx, key)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if old != nil {
				chunk.CreatedAt = old.CreatedAt
			} else if chunk.CreatedAt.IsZero() {
				chunk.CreatedAt = now
			}
			chunk.UpdatedAt = now

			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetChunks retrieves all chunks of a document ordered by index. Key
// order under the document prefix is index order, so no sort is needed.
func (s *ChunkStore) GetChunks(ctx context.Context, docID core.ID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunkRange retrieves up to limit chunks with Index >= fromIndex,
// ordered by index. Seeking to the encoded start key avoids scanning
// the skipped prefix.
func (s *ChunkStore) GetChunkRange(ctx context.Context, docID core.ID, fromIndex, limit int) ([]*core.Chunk, error) {
	if fromIndex < 0 || limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	var chunks []*core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeChunkKey(docID, fromIndex)); iter.Valid() && len(chunks) < limit; iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// CountChunks returns the number of stored chunks for a document.
func (s *ChunkStore) CountChunks(ctx context.Context, docID core.ID) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(docID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteChunksFrom removes every chunk with Index >= fromIndex. The
// keys are deleted through a write batch so a large document cannot
// exceed the transaction size limit.
func (s *ChunkStore) DeleteChunksFrom(ctx context.Context, docID core.ID, fromIndex int) error {
	var keys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(docID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeChunkKey(docID, max(fromIndex, 0))); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	return s.backend.DeleteKeys(keys)
}

// FindSimilar scans all stored chunks and scores them against the query
// vector. Chunks without an embedding are skipped. Vectors are unit
// length at write time, so the score is the dot product.
func (s *ChunkStore) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	var matches []*core.ChunkMatch
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if !chunk.Embedded() {
				continue
			}
			score := core.DotProduct(vector, chunk.Vector)
			if score >= minSimilarity {
				matches = append(matches, &core.ChunkMatch{Chunk: chunk, Score: score})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b *core.ChunkMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// readChunk reads a chunk inside a transaction, nil error mapping to
// storage.ErrNotFound when absent.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

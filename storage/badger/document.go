package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/storage"
)

// DocumentStore implements storage.DocumentStore for BadgerDB.
type DocumentStore struct {
	backend *Backend
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(backend *Backend) (storage.DocumentStore, error) {
	return &DocumentStore{backend: backend}, nil
}

// Close releases resources. The backend itself is closed by its owner.
func (s *DocumentStore) Close() error {
	return nil
}

// AddDocument stores a new document.
func (s *DocumentStore) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	if doc.Id == 0 {
		doc.Id = core.IDFromContent(doc.ExternalId)
	}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.Id)
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument replaces an existing document record.
func (s *DocumentStore) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.Id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = storage.UnmarshalDocument(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns up to limit documents; limit <= 0 means all.
func (s *DocumentStore) ListDocuments(ctx context.Context, limit int) ([]*core.Document, error) {
	var docs []*core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(docs) >= limit {
				break
			}
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes a document and everything derived from it:
// chunks, job rows with their index entries, and workflow executions.
// Keys are collected in a read transaction and deleted through a write
// batch, so a document with many chunks never exceeds the transaction
// size limit.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id core.ID) error {
	var keys [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		keys = append(keys, key)

		chunkKeys, err := collectKeysByPrefix(tx, makePartialChunkKey(id))
		if err != nil {
			return err
		}
		keys = append(keys, chunkKeys...)

		jobKeys, err := s.collectJobKeys(tx, id)
		if err != nil {
			return err
		}
		keys = append(keys, jobKeys...)

		execKeys, err := s.collectExecutionKeys(tx, id)
		if err != nil {
			return err
		}
		keys = append(keys, execKeys...)
		return nil
	}, false)
	if err != nil {
		return err
	}
	return s.backend.DeleteKeys(keys)
}

func (s *DocumentStore) collectJobKeys(tx *badger.Txn, docID core.ID) ([][]byte, error) {
	jobIDs, err := collectIndexedIDs(tx, makeDocJobsPrefix(docID))
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		keys = append(keys, makeJobKey(jobID))
	}
	indexKeys, err := collectKeysByPrefix(tx, makeDocJobsPrefix(docID))
	if err != nil {
		return nil, err
	}
	return append(keys, indexKeys...), nil
}

func (s *DocumentStore) collectExecutionKeys(tx *badger.Txn, docID core.ID) ([][]byte, error) {
	execIDs, err := collectIndexedIDs(tx, makePartialExecDocKey(docID))
	if err != nil {
		return nil, err
	}
	var keys [][]byte
	for _, execID := range execIDs {
		exec, err := readExecution(tx, execID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if exec != nil {
			keys = append(keys, makeExecWidKey(exec.WorkflowId))
		}
		keys = append(keys, makeExecutionKey(execID))
	}
	indexKeys, err := collectKeysByPrefix(tx, makePartialExecDocKey(docID))
	if err != nil {
		return nil, err
	}
	return append(keys, indexKeys...), nil
}

// collectIndexedIDs reads every ID value stored under an index prefix.
func collectIndexedIDs(tx *badger.Txn, prefix []byte) ([]core.ID, error) {
	var ids []core.ID
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		err := iter.Item().Value(func(val []byte) error {
			id, err := storage.UnmarshalID(val)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// collectKeysByPrefix returns a copy of every key under a prefix.
func collectKeysByPrefix(tx *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys, nil
}

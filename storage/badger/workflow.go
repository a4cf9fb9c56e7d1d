package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/storage"
)

// WorkflowStore implements storage.WorkflowStore for BadgerDB.
type WorkflowStore struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.WorkflowStore = (*WorkflowStore)(nil)

// NewWorkflowStore creates a new WorkflowStore.
func NewWorkflowStore(backend *Backend) (storage.WorkflowStore, error) {
	idSeq, err := backend.GetSequence(execIDSeq)
	if err != nil {
		return nil, err
	}
	return &WorkflowStore{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (s *WorkflowStore) Close() error {
	return s.idSeq.Release()
}

// AddExecution records a new execution. A document may have at most one
// non-terminal execution; violating that returns ErrActiveExecution.
func (s *WorkflowStore) AddExecution(ctx context.Context, exec *core.WorkflowExecution) (*core.WorkflowExecution, error) {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		latest, err := latestExecutionTx(tx, exec.DocumentId)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if latest != nil && !latest.Status.Terminal() {
			return storage.ErrActiveExecution
		}

		nextID, err := s.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			nextID, err = s.idSeq.Next()
			if err != nil {
				return err
			}
		}
		exec.Id = core.ID(nextID)

		now := time.Now().UTC()
		if exec.StartedAt.IsZero() {
			exec.StartedAt = now
		}
		exec.UpdatedAt = now

		if err := tx.Set(makeExecutionKey(exec.Id), storage.MarshalExecution(exec)); err != nil {
			return err
		}
		indexKey := makeExecDocKey(exec.DocumentId, exec.Id)
		if err := tx.Set(indexKey, storage.MarshalID(exec.Id)); err != nil {
			return err
		}
		if exec.WorkflowId != "" {
			if err := tx.Set(makeExecWidKey(exec.WorkflowId), storage.MarshalID(exec.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// UpdateExecution replaces an existing execution record. A concurrent
// writer of the same record surfaces as storage.ErrTxnConflict so the
// caller can re-read and retry instead of losing the other update.
func (s *WorkflowStore) UpdateExecution(ctx context.Context, exec *core.WorkflowExecution) (*core.WorkflowExecution, error) {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeExecutionKey(exec.Id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		exec.UpdatedAt = time.Now().UTC()
		if err := tx.Set(key, storage.MarshalExecution(exec)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return nil, storage.ErrTxnConflict
		}
		return nil, err
	}
	return exec, nil
}

// GetExecution retrieves an execution by ID.
func (s *WorkflowStore) GetExecution(ctx context.Context, id core.ID) (*core.WorkflowExecution, error) {
	var exec *core.WorkflowExecution
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		exec, err = readExecution(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// GetExecutionByWorkflowId retrieves an execution by workflow identifier.
func (s *WorkflowStore) GetExecutionByWorkflowId(ctx context.Context, workflowID string) (*core.WorkflowExecution, error) {
	var exec *core.WorkflowExecution
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeExecWidKey(workflowID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var id core.ID
		err = item.Value(func(val []byte) error {
			id, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			return err
		}
		exec, err = readExecution(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// LatestExecution returns the most recently started execution for a
// document.
func (s *WorkflowStore) LatestExecution(ctx context.Context, docID core.ID) (*core.WorkflowExecution, error) {
	var exec *core.WorkflowExecution
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		exec, err = latestExecutionTx(tx, docID)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// ListRunning returns every execution still in the running state.
func (s *WorkflowStore) ListRunning(ctx context.Context) ([]*core.WorkflowExecution, error) {
	var running []*core.WorkflowExecution
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(execPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var exec *core.WorkflowExecution
			err := iter.Item().Value(func(val []byte) error {
				var err error
				exec, err = storage.UnmarshalExecution(val)
				return err
			})
			if err != nil {
				return err
			}
			if exec.Status == core.ExecutionRunning {
				running = append(running, exec)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return running, nil
}

// latestExecutionTx finds the highest execution ID under the document's
// index prefix. Execution IDs are monotonic, so that is the latest run.
func latestExecutionTx(tx *badger.Txn, docID core.ID) (*core.WorkflowExecution, error) {
	var latestID core.ID
	found := false

	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialExecDocKey(docID)
	iter := tx.NewIterator(opts)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		err := iter.Item().Value(func(val []byte) error {
			id, err := storage.UnmarshalID(val)
			if err != nil {
				return err
			}
			latestID = id
			found = true
			return nil
		})
		if err != nil {
			iter.Close()
			return nil, err
		}
	}
	iter.Close()

	if !found {
		return nil, storage.ErrNotFound
	}
	return readExecution(tx, latestID)
}

func readExecution(tx *badger.Txn, id core.ID) (*core.WorkflowExecution, error) {
	item, err := tx.Get(makeExecutionKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var exec *core.WorkflowExecution
	err = item.Value(func(val []byte) error {
		exec, err = storage.UnmarshalExecution(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

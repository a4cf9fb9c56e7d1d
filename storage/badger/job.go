package badger

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docvault/core"
	"github.com/poiesic/docvault/storage"
)

// JobStore implements storage.JobStore for BadgerDB.
type JobStore struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.JobStore = (*JobStore)(nil)

// NewJobStore creates a new JobStore.
func NewJobStore(backend *Backend) (storage.JobStore, error) {
	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}
	return &JobStore{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (s *JobStore) Close() error {
	return s.idSeq.Release()
}

// AddJob appends a job row to the ledger.
func (s *JobStore) AddJob(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, error) {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
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
		job.Id = core.ID(nextID)

		now := time.Now().UTC()
		if job.StartedAt.IsZero() {
			job.StartedAt = now
		}
		job.UpdatedAt = now

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		indexKey := makeJobDocKey(job.DocumentId, job.Stage, job.Id)
		if err := tx.Set(indexKey, storage.MarshalID(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob replaces an existing job row.
func (s *JobStore) UpdateJob(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, error) {
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id core.ID) (*core.ProcessingJob, error) {
	var job *core.ProcessingJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// LatestJob returns the most recent job for a document and stage. Job
// IDs are monotonic, so the highest key under the (document, stage)
// index prefix is the latest.
func (s *JobStore) LatestJob(ctx context.Context, docID core.ID, stage core.Stage) (*core.ProcessingJob, error) {
	var latestID core.ID
	found := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialJobDocKey(docID, stage)
		iter := tx.NewIterator(opts)
		defer iter.Close()

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
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return s.GetJob(ctx, latestID)
}

// ListJobs retrieves all jobs for a document, oldest first.
func (s *JobStore) ListJobs(ctx context.Context, docID core.ID) ([]*core.ProcessingJob, error) {
	var jobs []*core.ProcessingJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := collectIndexedIDs(tx, makeDocJobsPrefix(docID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			job, err := readJob(tx, id)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	// index order is (stage, id); the ledger reads better chronologically
	slices.SortFunc(jobs, func(a, b *core.ProcessingJob) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return jobs, nil
}

func readJob(tx *badger.Txn, id core.ID) (*core.ProcessingJob, error) {
	item, err := tx.Get(makeJobKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var job *core.ProcessingJob
	err = item.Value(func(val []byte) error {
		job, err = storage.UnmarshalJob(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

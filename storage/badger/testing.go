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


package badger

import "github.com/poiesic/docvault/storage"

// Stores bundles the four repositories sharing one backend.
type Stores struct {
	Documents storage.DocumentStore
	Chunks    storage.ChunkStore
	Jobs      storage.JobStore
	Workflows storage.WorkflowStore
}

// Close releases every store. The backend is closed by its owner.
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{s.Documents, s.Chunks, s.Jobs, s.Workflows} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewStores creates all repositories on a shared backend.
func NewStores(backend *Backend) (*Stores, error) {
	docs, err := NewDocumentStore(backend)
	if err != nil {
		return nil, err
	}
	chunks, err := NewChunkStore(backend)
	if err != nil {
		docs.Close()
		return nil, err
	}
	jobs, err := NewJobStore(backend)
	if err != nil {
		chunks.Close()
		docs.Close()
		return nil, err
	}
	workflows, err := NewWorkflowStore(backend)
	if err != nil {
		jobs.Close()
		chunks.Close()
		docs.Close()
		return nil, err
	}
	return &Stores{Documents: docs, Chunks: chunks, Jobs: jobs, Workflows: workflows}, nil
}

// NewMemoryStores creates in-memory repositories for testing.
// Caller must close the stores and then the backend when done.
func NewMemoryStores() (*Stores, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, err
	}
	stores, err := NewStores(backend)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return stores, backend, nil
}

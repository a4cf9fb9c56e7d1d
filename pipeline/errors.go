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


package pipeline

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrChunkStoreRequired is returned when a chunk store is not provided.
	ErrChunkStoreRequired = errors.New("chunk store required")

	// ErrJobStoreRequired is returned when a job store is not provided.
	ErrJobStoreRequired = errors.New("job store required")

	// ErrWorkflowStoreRequired is returned when a workflow store is not provided.
	ErrWorkflowStoreRequired = errors.New("workflow store required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrChunkerRequired is returned when a chunking engine is not provided.
	ErrChunkerRequired = errors.New("chunking engine required")

	// ErrBatcherRequired is returned when an embedding batcher is not provided.
	ErrBatcherRequired = errors.New("embedding batcher required")

	// ErrUploadIncomplete indicates processing was requested before the raw
	// bytes finished uploading.
	ErrUploadIncomplete = errors.New("document upload is not complete")

	// ErrCancelled indicates the run stopped because cancellation was
	// requested. Its text becomes the document's error message.
	ErrCancelled = errors.New("processing cancelled")

	// ErrNoActiveExecution indicates a cancel was requested for a document
	// with no run in flight.
	ErrNoActiveExecution = errors.New("no active execution for document")

	// ErrChunkVerification indicates the stored chunks failed the final
	// consistency check (count, contiguity, or missing vectors).
	ErrChunkVerification = errors.New("chunk verification failed")
)

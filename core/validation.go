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


package core

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ExternalId must not be empty
//   - Bucket and Key must not be empty
//   - ContentType must not be empty
//   - SizeBytes must not be negative
//
// NOT validated (populated by the pipeline):
//   - ChunkCount (0 until chunking runs)
//   - ProcessingStatus (set by the orchestrator)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.ExternalId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyExternalID)
	}
	if doc.Bucket == "" || doc.Key == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyLocation)
	}
	if doc.ContentType == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContentType)
	}
	if doc.SizeBytes < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrNegativeSize)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - DocumentId must be set
//   - Index must not be negative
//
// NOT validated:
//   - Vector (empty until the embedding stage runs)
//   - Text (empty chunks are rejected by the chunking engine, not here)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.DocumentId == 0 {
		return fmt.Errorf("%w: document id is zero", ErrInvalidChunk)
	}
	if chunk.Index < 0 {
		return fmt.Errorf("%w: index %d is negative", ErrInvalidChunk, chunk.Index)
	}
	return nil
}

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

import "errors"

var (
	// ErrEmbedderRequired indicates the batcher was constructed without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrEmptyQuery indicates an empty string was submitted for query embedding.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrRetriesExhausted indicates a batch kept failing transiently until the
	// retry budget ran out. The last underlying error is wrapped.
	ErrRetriesExhausted = errors.New("embedding retries exhausted")

	// ErrVectorCountMismatch indicates the service returned a different number
	// of vectors than texts submitted.
	ErrVectorCountMismatch = errors.New("embedding service returned wrong vector count")
)

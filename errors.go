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


package docvault

import "errors"

var (
	// ErrDataDirRequired is returned when no data directory is provided.
	ErrDataDirRequired = errors.New("data directory required")

	// ErrExternalIDRequired is returned when a document is added without an
	// external identifier.
	ErrExternalIDRequired = errors.New("external id required")

	// ErrContentTypeRequired is returned when a document is added without a
	// content type.
	ErrContentTypeRequired = errors.New("content type required")

	// ErrDocumentTooLarge is returned when an upload exceeds the size bound.
	ErrDocumentTooLarge = errors.New("document exceeds maximum upload size")

	// ErrDocumentNotTerminal is returned when reprocessing is requested
	// while a run is still in flight.
	ErrDocumentNotTerminal = errors.New("document processing is still in flight")
)

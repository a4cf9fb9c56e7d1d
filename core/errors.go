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

import (
	"context"
	"errors"
)

var (
	// ErrInvalidDocument indicates a document that fails domain validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a chunk that fails domain validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyExternalID indicates a document without an external identifier.
	ErrEmptyExternalID = errors.New("external id is empty")

	// ErrEmptyLocation indicates a document without a blob store reference.
	ErrEmptyLocation = errors.New("bucket or key is empty")

	// ErrEmptyContentType indicates a document without a content type.
	ErrEmptyContentType = errors.New("content type is empty")

	// ErrNegativeSize indicates a document with a negative byte size.
	ErrNegativeSize = errors.New("size is negative")
)

// TransientError marks an error as retryable: timeouts, rate limits, and
// transient I/O that are expected to resolve on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError marks an error as non-retryable: the operation cannot succeed
// without different input or configuration.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err as retryable. Returns nil for a nil err.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// MarkFatal wraps err as non-retryable. Returns nil for a nil err.
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsTransient classifies an error for retry purposes.
//
// Rules, in order:
//   - a FatalError anywhere in the chain wins: not retryable
//   - context cancellation is not retryable (the caller gave up)
//   - deadline expiry is a per-call timeout: retryable
//   - everything else defaults to retryable, bounded by max_retries
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

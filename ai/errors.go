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


package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited indicates the embedding service rejected the call due to quota.
	ErrRateLimited = errors.New("rate limited by embedding service")

	// ErrHostRequired is returned when the embedding host is not configured.
	ErrHostRequired = errors.New("embedding host required")

	// ErrModelRequired is returned when the embedding model is not configured.
	ErrModelRequired = errors.New("embedding model required")

	// ErrDimensionsRequired is returned when the vector dimensionality is not configured.
	ErrDimensionsRequired = errors.New("embedding dimensions must be positive")
)

// DimensionMismatchError indicates the service returned a vector of the
// wrong dimensionality. This is never retryable: the same request would
// produce the same wrong answer.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

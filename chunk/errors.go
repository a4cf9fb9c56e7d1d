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


package chunk

import "errors"

var (
	// ErrTokenizerRequired indicates the engine was constructed without a tokenizer.
	ErrTokenizerRequired = errors.New("tokenizer is required")

	// ErrInvalidTokenBounds indicates min/max token bounds are out of order or non-positive.
	ErrInvalidTokenBounds = errors.New("invalid token bounds")

	// ErrInvalidOverlap indicates the overlap window is negative, inverted, or
	// at least as large as the minimum chunk size.
	ErrInvalidOverlap = errors.New("invalid overlap bounds")

	// ErrUnknownStrategy indicates an unrecognized chunking strategy name.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
)

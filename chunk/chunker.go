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

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/poiesic/docvault/core"
)

// Strategy selects how document text is segmented.
type Strategy int

const (
	// StrategySemantic accumulates whole paragraphs greedily up to the
	// token ceiling. The default.
	StrategySemantic Strategy = iota + 1
	// StrategyFixed slides a fixed-size token window over the text with a
	// constant overlap, ignoring paragraph structure.
	StrategyFixed
	// StrategyMarkdown is semantic chunking that additionally tracks the
	// heading hierarchy and never splits inside a code fence.
	StrategyMarkdown
)

func (s Strategy) String() string {
	switch s {
	case StrategySemantic:
		return "semantic"
	case StrategyFixed:
		return "fixed"
	case StrategyMarkdown:
		return "markdown"
	}
	return "unknown"
}

// ParseStrategy converts a strategy name from configuration.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "semantic", "":
		return StrategySemantic, nil
	case "fixed":
		return StrategyFixed, nil
	case "markdown":
		return StrategyMarkdown, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Engine splits text into chunks. Safe for concurrent use; each call to
// Stream or ChunkText gets independent state.
//
// MaxTokens bounds the tokens drawn from the source per chunk. The
// overlap prefix repeated from the previous chunk is context on top of
// that bound, so a chunk's TokenCount may reach MaxTokens+OverlapMax.
type Engine struct {
	tok        Tokenizer
	strategy   Strategy
	minTokens  int
	maxTokens  int
	overlapMin int
	overlapMax int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy selects the chunking strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithTokenBounds sets the per-chunk token bounds. Only the final chunk
// of a document may fall below the minimum.
func WithTokenBounds(minTokens, maxTokens int) Option {
	return func(e *Engine) {
		e.minTokens = minTokens
		e.maxTokens = maxTokens
	}
}

// WithOverlap sets the overlap window carried between consecutive
// chunks. An overlap that would fall below the minimum is dropped
// entirely rather than padded.
func WithOverlap(minTokens, maxTokens int) Option {
	return func(e *Engine) {
		e.overlapMin = minTokens
		e.overlapMax = maxTokens
	}
}

// NewEngine creates an engine with the given tokenizer. Defaults:
// semantic strategy, 512..2000 token chunks, 100..200 token overlap.
func NewEngine(tok Tokenizer, options ...Option) (*Engine, error) {
	e := &Engine{
		tok:        tok,
		strategy:   StrategySemantic,
		minTokens:  512,
		maxTokens:  2000,
		overlapMin: 100,
		overlapMax: 200,
		logger:     slog.Default().With("component", "chunk"),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.tok == nil {
		return nil, ErrTokenizerRequired
	}
	if e.minTokens < 1 || e.maxTokens < e.minTokens {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidTokenBounds, e.minTokens, e.maxTokens)
	}
	if e.overlapMin < 0 || e.overlapMax < e.overlapMin || e.overlapMax >= e.minTokens {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidOverlap, e.overlapMin, e.overlapMax)
	}
	return e, nil
}

// ChunkText runs the full stream over an in-memory string.
func (e *Engine) ChunkText(text string) ([]core.ChunkDraft, error) {
	s := e.Stream(strings.NewReader(text))
	var drafts []core.ChunkDraft
	for {
		d, err := s.Next()
		if errors.Is(err, io.EOF) {
			return drafts, nil
		}
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *d)
	}
}

// overlapSize decides how many tail tokens of the previous chunk are
// prepended to a chunk with newTokens of fresh content. The overlap is
// capped at half the fresh content and at what the previous chunk can
// supply; a window below the configured minimum carries too little
// context to be worth duplicating and is dropped.
func (e *Engine) overlapSize(prevTokens, newTokens int) int {
	n := e.overlapMax
	if half := newTokens / 2; half < n {
		n = half
	}
	if prevTokens < n {
		n = prevTokens
	}
	if n < e.overlapMin {
		return 0
	}
	return n
}

package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docvault/ai"
	"github.com/poiesic/docvault/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	token := config.Token
	if token == "" {
		// Local OpenAI-compatible services accept any non-empty token.
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:   embedder,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, core.MarkTransient(fmt.Errorf("embedding service returned no vectors"))
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Every returned vector is checked against the configured dimensionality; a
// mismatch is a fatal error for the whole batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, classify(err)
	}

	for _, v := range vectors {
		if len(v) != e.dimensions {
			err := &ai.DimensionMismatchError{Want: e.dimensions, Got: len(v)}
			e.logger.Error("embedding dimension mismatch", "want", e.dimensions, "got", len(v))
			return nil, core.MarkFatal(err)
		}
	}

	return vectors, nil
}

// classify translates provider errors into the retry taxonomy. The OpenAI
// client surfaces HTTP status in the error text, so matching on it is the
// only signal available.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return core.MarkTransient(fmt.Errorf("%w: %w", ai.ErrRateLimited, err))
	}
	if strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") {
		return core.MarkFatal(err)
	}
	// Timeouts, 5xx, and network errors are expected to resolve on retry.
	return core.MarkTransient(err)
}

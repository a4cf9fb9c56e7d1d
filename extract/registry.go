package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/poiesic/docvault/core"
)

// Strategy converts one document format into plain text.
// Implementations must be safe for concurrent use.
type Strategy interface {
	// Extract reads raw bytes and returns a stream of plain text.
	// The returned reader must be closed by the caller.
	Extract(ctx context.Context, r io.Reader) (io.ReadCloser, error)
}

// Registry dispatches extraction by content type.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *slog.Logger
}

// NewRegistry creates a registry with the built-in strategies:
// text/plain, text/markdown, and text/html.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		logger:     slog.Default().With("component", "extract"),
	}
	plain := PlainTextStrategy{}
	r.Register("text/plain", plain)
	r.Register("text/markdown", plain)
	r.Register("text/x-markdown", plain)
	r.Register("text/html", HTMLStrategy{})
	return r
}

// Register adds or replaces the strategy for a content type.
func (r *Registry) Register(contentType string, strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[normalizeContentType(contentType)] = strategy
}

// Supported returns the registered content types, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.strategies))
	for ct := range r.strategies {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// Extract dispatches to the strategy registered for contentType.
// An unregistered content type is a fatal error.
func (r *Registry) Extract(ctx context.Context, contentType string, raw io.Reader) (io.ReadCloser, error) {
	ct := normalizeContentType(contentType)

	r.mu.RLock()
	strategy, ok := r.strategies[ct]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("no extraction strategy for content type", "contentType", contentType)
		return nil, core.MarkFatal(fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType))
	}

	r.logger.Debug("extracting", "contentType", ct)
	return strategy.Extract(ctx, raw)
}

// normalizeContentType strips parameters ("text/html; charset=utf-8") and
// lowercases the media type. Unparseable values fall back to a trimmed
// lowercase form so lookup still fails cleanly.
func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

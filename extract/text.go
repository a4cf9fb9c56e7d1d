package extract

import (
	"context"
	"io"
)

// PlainTextStrategy passes text through unchanged. It covers text/plain and
// markdown; markdown structure is preserved so the markdown-aware chunking
// strategy can use headings and fences downstream.
type PlainTextStrategy struct{}

var _ Strategy = PlainTextStrategy{}

// Extract returns the input stream unchanged.
func (PlainTextStrategy) Extract(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r), nil
}

package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/docvault/core"
)

// HTMLStrategy converts HTML documents to markdown text. Markdown output
// keeps headings, so markdown-aware chunking works on extracted web pages.
//
// HTML documents are parsed in memory; this strategy is not meant for the
// multi-gigabyte path, which is plain text.
type HTMLStrategy struct{}

var _ Strategy = HTMLStrategy{}

// Extract parses the HTML, strips non-content elements, and converts the
// remainder to markdown.
func (HTMLStrategy) Extract(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, core.MarkFatal(fmt.Errorf("%w: %w", ErrCorruptedInput, err))
	}

	doc.Find("script, style, noscript, iframe").Remove()

	html, err := doc.Html()
	if err != nil {
		return nil, core.MarkFatal(fmt.Errorf("%w: %w", ErrCorruptedInput, err))
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return nil, core.MarkFatal(fmt.Errorf("%w: %w", ErrCorruptedInput, err))
	}

	return io.NopCloser(strings.NewReader(markdown)), nil
}

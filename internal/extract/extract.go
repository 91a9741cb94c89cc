// Package extract defines the text extraction contract the ingestion
// pipeline consumes. Extraction itself (PDF parsing, OCR) happens in an
// external collaborator; this package only models its output and ships a
// markdown reader for pre-converted documents.
package extract

import (
	"context"
	"errors"
)

// ErrEmptyDocument indicates the extractor produced no pages at all.
// This is the only fatal extraction outcome; a missing TOC is merely a
// degraded one.
var ErrEmptyDocument = errors.New("extract: document has no pages")

// TOCEntry is one entry of a document's table of contents.
type TOCEntry struct {
	Level int    // 1-based heading depth
	Title string
	Page  int // 1-based page the section starts on
}

// Document is the extraction result handed to the ingestion pipeline.
// Pages preserve the source page order. TOC may be empty; callers must
// treat that as a degraded document, not an error.
type Document struct {
	DocumentID string
	Pages      []string
	TOC        []TOCEntry
}

// PageCount returns the number of extracted pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// Extractor converts raw document bytes into pages plus a table of
// contents. Implementations must return ErrEmptyDocument when nothing
// could be extracted.
type Extractor interface {
	Extract(ctx context.Context, documentID string, data []byte) (*Document, error)
}

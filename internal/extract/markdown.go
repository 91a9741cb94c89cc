package extract

import (
	"context"
	"regexp"
	"strings"
)

var (
	pageMarkerRe = regexp.MustCompile(`(?m)^<!--\s*PAGE\s+(\d+)\s*-->\s*$`)
	headingRe    = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)
)

// MarkdownExtractor reads pre-converted markdown documents. Page breaks
// are carried as `<!-- PAGE n -->` comment markers; a document without
// markers is treated as a single page. The table of contents is
// reconstructed from the markdown headings.
type MarkdownExtractor struct{}

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{}
}

// Extract splits the markdown into pages and scans headings into a TOC.
func (e *MarkdownExtractor) Extract(ctx context.Context, documentID string, data []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	pages := splitPages(content)
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}

	doc := &Document{
		DocumentID: documentID,
		Pages:      pages,
	}

	for i, page := range pages {
		for _, m := range headingRe.FindAllStringSubmatch(page, -1) {
			doc.TOC = append(doc.TOC, TOCEntry{
				Level: len(m[1]),
				Title: strings.TrimSpace(m[2]),
				Page:  i + 1,
			})
		}
	}

	return doc, nil
}

func splitPages(content string) []string {
	if !pageMarkerRe.MatchString(content) {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{content}
	}

	parts := pageMarkerRe.Split(content, -1)
	pages := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pages = append(pages, part)
	}
	return pages
}

var _ Extractor = (*MarkdownExtractor)(nil)

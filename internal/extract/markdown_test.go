package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownExtractorPagesAndTOC(t *testing.T) {
	content := `<!-- PAGE 1 -->
# User Guide

Welcome text.

<!-- PAGE 2 -->
## Installation

Steps here.

<!-- PAGE 3 -->
## Configuration

More steps.
`
	ex := NewMarkdownExtractor()
	doc, err := ex.Extract(context.Background(), "guide.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, 3, doc.PageCount())
	require.Len(t, doc.TOC, 3)

	assert.Equal(t, TOCEntry{Level: 1, Title: "User Guide", Page: 1}, doc.TOC[0])
	assert.Equal(t, TOCEntry{Level: 2, Title: "Installation", Page: 2}, doc.TOC[1])
	assert.Equal(t, TOCEntry{Level: 2, Title: "Configuration", Page: 3}, doc.TOC[2])
}

func TestMarkdownExtractorNoMarkers(t *testing.T) {
	content := "# Only Section\n\nBody without page markers.\n"

	doc, err := NewMarkdownExtractor().Extract(context.Background(), "flat.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, 1, doc.PageCount())
	require.Len(t, doc.TOC, 1)
	assert.Equal(t, "Only Section", doc.TOC[0].Title)
}

func TestMarkdownExtractorNoHeadings(t *testing.T) {
	doc, err := NewMarkdownExtractor().Extract(context.Background(), "plain.md", []byte("just prose, no structure"))
	require.NoError(t, err)

	assert.Equal(t, 1, doc.PageCount())
	assert.Empty(t, doc.TOC)
}

func TestMarkdownExtractorEmpty(t *testing.T) {
	_, err := NewMarkdownExtractor().Extract(context.Background(), "empty.md", []byte("  \n "))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

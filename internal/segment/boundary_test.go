package segment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipstack-ai/manual-engine/internal/extract"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

func TestResolveTruncatesAtNextHeading(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "manual.pdf",
		Pages: []string{
			"# Overview\nintro text\n\n# Setup\nsetup text on same page",
		},
		TOC: []extract.TOCEntry{
			{Level: 1, Title: "Overview", Page: 1},
			{Level: 1, Title: "Setup", Page: 1},
		},
	}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 2)

	assert.Contains(t, sections[0].Text, "intro text")
	assert.NotContains(t, sections[0].Text, "setup text")
	assert.Contains(t, sections[1].Text, "setup text")
}

func TestResolveTitleMatchingIsFlexible(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "m.pdf",
		Pages: []string{
			"body of first section\n\n## INSTALLING   THE TOOL\nsecond section body",
		},
		TOC: []extract.TOCEntry{
			{Level: 1, Title: "First", Page: 1},
			{Level: 2, Title: "Installing the Tool", Page: 1},
		},
	}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 2)
	assert.NotContains(t, sections[0].Text, "second section body")
}

func TestResolveKeepsFullRangeWhenHeadingAbsent(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "m.pdf",
		Pages: []string{
			"page one text",
			"page two text",
		},
		TOC: []extract.TOCEntry{
			{Level: 1, Title: "Alpha", Page: 1},
			{Level: 1, Title: "Beta", Page: 2},
		},
	}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 2)
	// The next title never appears as a heading, so the shared boundary
	// page stays with the first section in full.
	assert.Contains(t, sections[0].Text, "page two text")
}

func TestResolveHierarchyPaths(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "guide.pdf",
		Pages:      []string{"a", "b", "c", "d"},
		TOC: []extract.TOCEntry{
			{Level: 1, Title: "Install", Page: 1},
			{Level: 2, Title: "Linux", Page: 2},
			{Level: 2, Title: "Windows", Page: 3},
			{Level: 1, Title: "Usage", Page: 4},
		},
	}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 4)

	assert.Equal(t, []string{"Install"}, sections[0].Path)
	assert.Equal(t, []string{"Install", "Linux"}, sections[1].Path)
	assert.Equal(t, []string{"Install", "Windows"}, sections[2].Path)
	assert.Equal(t, []string{"Usage"}, sections[3].Path)

	assert.Equal(t, "guide.pdf::Install > Linux", sections[1].ParentID)
	assert.Equal(t, "[Source: guide.pdf] > Install > Windows", ContextPath("guide.pdf", sections[2].Path))
}

func TestResolveDuplicatePathsGetOrdinalSuffix(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "m.pdf",
		Pages:      []string{"a", "b"},
		TOC: []extract.TOCEntry{
			{Level: 1, Title: "Notes", Page: 1},
			{Level: 1, Title: "Notes", Page: 2},
		},
	}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 2)
	assert.Equal(t, "m.pdf::Notes", sections[0].ParentID)
	assert.Equal(t, "m.pdf::Notes#2", sections[1].ParentID)
}

func TestResolveSkipsOutOfOrderEntries(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "m.pdf",
		Pages:      []string{"p1", "p2", "p3", "p4", "p5", "p6"},
		TOC: []extract.TOCEntry{
			{Level: 1, Title: "Late", Page: 5},
			{Level: 1, Title: "Early", Page: 2},
		},
	}

	// The first entry's range runs backwards (page 5 to page 2); it is
	// dropped and the rest of the document still resolves.
	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 1)
	assert.Equal(t, "Early", sections[0].Title)
	assert.Equal(t, 2, sections[0].PageStart)
	assert.Equal(t, 6, sections[0].PageEnd)
}

func TestResolveEmptyTOCFallsBackToSingleSection(t *testing.T) {
	doc := &extract.Document{
		DocumentID: "flat.pdf",
		Pages:      []string{"page one", "page two"},
	}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 1)
	assert.Contains(t, sections[0].Text, "page one")
	assert.Contains(t, sections[0].Text, "page two")
	assert.Equal(t, 1, sections[0].PageStart)
	assert.Equal(t, 2, sections[0].PageEnd)
}

func TestResolveEveryEntryProducesASection(t *testing.T) {
	var pages []string
	var toc []extract.TOCEntry
	for i := 0; i < 40; i++ {
		pages = append(pages, fmt.Sprintf("content of section %d", i))
		toc = append(toc, extract.TOCEntry{Level: 1, Title: fmt.Sprintf("Section %d", i), Page: i + 1})
	}
	doc := &extract.Document{DocumentID: "big.pdf", Pages: pages, TOC: toc}

	sections := NewBoundaryResolver(observability.Nop()).Resolve(doc, doc.Pages)
	require.Len(t, sections, 40)

	seen := make(map[string]bool)
	for _, s := range sections {
		assert.False(t, seen[s.ParentID], "duplicate parent id %s", s.ParentID)
		seen[s.ParentID] = true
	}
}

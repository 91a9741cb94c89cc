package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chipstack-ai/manual-engine/internal/extract"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

// Section is one resolved parent segment before persistence.
type Section struct {
	ParentID  string
	Title     string
	Level     int
	Path      []string // hierarchy titles from root to this section
	PageStart int
	PageEnd   int
	Text      string
}

// ContextPath renders the breadcrumb prefixed to every child passage,
// e.g. "[Source: guide.pdf] > Installation > Linux".
func ContextPath(documentID string, path []string) string {
	b := fmt.Sprintf("[Source: %s]", documentID)
	if len(path) > 0 {
		b += " > " + strings.Join(path, " > ")
	}
	return b
}

// BoundaryResolver slices cleaned pages into sections along the table
// of contents, truncating each section where the next one begins.
type BoundaryResolver struct {
	logger *observability.Logger
}

// NewBoundaryResolver creates a resolver.
func NewBoundaryResolver(logger *observability.Logger) *BoundaryResolver {
	return &BoundaryResolver{logger: logger.WithComponent("boundary")}
}

// Resolve turns a document into ordered sections. An empty TOC yields
// the whole document as a single degraded section. Every page of text
// is covered by exactly the page ranges of the TOC; heading truncation
// keeps text from leaking into the previous section's tail pages.
func (r *BoundaryResolver) Resolve(doc *extract.Document, pages []string) []Section {
	if len(doc.TOC) == 0 {
		r.logger.Warn().
			Str("document_id", doc.DocumentID).
			Msg("document has no table of contents, falling back to single segment")
		return []Section{{
			ParentID:  doc.DocumentID + "::" + doc.DocumentID,
			Title:     doc.DocumentID,
			Level:     1,
			Path:      []string{doc.DocumentID},
			PageStart: 1,
			PageEnd:   len(pages),
			Text:      strings.Join(pages, "\n"),
		}}
	}

	current := make(map[int]string)
	idCounts := make(map[string]int)
	sections := make([]Section, 0, len(doc.TOC))

	for i, entry := range doc.TOC {
		startPage := clampPage(entry.Page, len(pages))
		endPage := len(pages)
		var nextTitle string
		if i+1 < len(doc.TOC) {
			next := doc.TOC[i+1]
			endPage = clampPage(next.Page, len(pages))
			nextTitle = next.Title
		}

		// An entry placed after one that starts on a later page has an
		// inverted range; skip it rather than fail the document.
		if endPage < startPage {
			r.logger.Warn().
				Str("document_id", doc.DocumentID).
				Str("title", entry.Title).
				Int("page", entry.Page).
				Msg("table of contents entry out of page order, skipping")
			continue
		}

		text := strings.Join(pages[startPage-1:endPage], "\n")
		if nextTitle != "" {
			text = truncateAtHeading(text, nextTitle)
		}

		current[entry.Level] = entry.Title
		for level := range current {
			if level > entry.Level {
				delete(current, level)
			}
		}
		var path []string
		for level := 1; level <= entry.Level; level++ {
			if title, ok := current[level]; ok {
				path = append(path, title)
			}
		}

		parentID := doc.DocumentID + "::" + strings.Join(path, " > ")
		idCounts[parentID]++
		if n := idCounts[parentID]; n > 1 {
			parentID = fmt.Sprintf("%s#%d", parentID, n)
		}

		sections = append(sections, Section{
			ParentID:  parentID,
			Title:     entry.Title,
			Level:     entry.Level,
			Path:      path,
			PageStart: startPage,
			PageEnd:   endPage,
			Text:      text,
		})
	}

	return sections
}

// truncateAtHeading cuts the text at the markdown heading carrying the
// next section's title. Title matching is case-insensitive with
// flexible internal whitespace; when no heading matches, the full page
// range is kept.
func truncateAtHeading(text, nextTitle string) string {
	pattern := `(?i)\n#{1,6}\s+` + flexibleTitle(nextTitle)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return text
	}
	if loc := re.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}
	return text
}

// flexibleTitle escapes the title for regexp use and relaxes internal
// whitespace runs to \s+.
func flexibleTitle(title string) string {
	fields := strings.Fields(title)
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(escaped, `\s+`)
}

func clampPage(page, total int) int {
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}

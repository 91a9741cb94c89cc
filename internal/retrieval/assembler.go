package retrieval

import (
	"fmt"
	"strings"
)

const truncationMarker = "[...truncated]"

// Assembler renders expanded parents into the final context block with
// numbered reference headers and per-item plus overall size limits.
type Assembler struct {
	itemMaxRunes  int
	contextBudget int
}

// NewAssembler creates an assembler.
func NewAssembler(itemMaxRunes, contextBudget int) *Assembler {
	return &Assembler{
		itemMaxRunes:  itemMaxRunes,
		contextBudget: contextBudget,
	}
}

// Assemble renders the context block. toolFor maps a document id to
// its tool display name; unmapped documents render as "General". The
// overall budget is soft: at least one item is always emitted, and
// assembly stops before the item that would exceed the budget.
func (a *Assembler) Assemble(parents []ExpandedParent, toolFor func(documentID string) string) (string, []ContextItem) {
	var (
		blocks []string
		items  []ContextItem
		total  int
	)

	for i, p := range parents {
		toolName := toolFor(p.Parent.DocumentID)
		if toolName == "" {
			toolName = "General"
		}

		section := p.Parent.HierarchyPath
		if section == "" {
			section = p.Parent.Title
		}

		text, truncated := a.truncateAtSentence(p.Text)
		header := fmt.Sprintf("[Ref %d | %s | %s | %s]", i+1, toolName, p.Parent.DocumentID, section)
		block := header + "\n" + text

		size := len([]rune(block))
		if len(items) > 0 && total+size > a.contextBudget {
			break
		}

		blocks = append(blocks, block)
		items = append(items, ContextItem{
			Ref:           i + 1,
			ParentID:      p.Parent.ParentID,
			DocumentID:    p.Parent.DocumentID,
			Title:         p.Parent.Title,
			HierarchyPath: p.Parent.HierarchyPath,
			Tool:          toolName,
			Text:          text,
			IsWindowed:    p.IsWindowed,
			Truncated:     truncated,
		})
		total += size
	}

	return strings.Join(blocks, "\n\n"), items
}

// truncateAtSentence cuts the text to the item limit, preferring the
// last sentence boundary in the kept region, and appends the marker.
func (a *Assembler) truncateAtSentence(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= a.itemMaxRunes {
		return text, false
	}

	cut := a.itemMaxRunes
	for i := a.itemMaxRunes - 1; i > a.itemMaxRunes/2; i-- {
		if isSentenceBoundary(runes[i]) {
			cut = i + 1
			break
		}
	}

	return strings.TrimSpace(string(runes[:cut])) + "\n" + truncationMarker, true
}

func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

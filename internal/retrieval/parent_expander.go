package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chipstack-ai/manual-engine/internal/observability"
	"github.com/chipstack-ai/manual-engine/internal/storage"
)

// ExpandedParent is one parent-level context entry produced from a
// ranked candidate.
type ExpandedParent struct {
	Parent     *storage.ParentSegment
	Text       string
	IsWindowed bool
}

// ParentExpander swaps ranked child passages for their parent
// sections. Parents are deduplicated in rank order and capped; a
// parent larger than the size threshold is windowed around the child
// that surfaced it instead of being emitted whole.
type ParentExpander struct {
	parents        *storage.ParentRepository
	maxParents     int
	sizeThreshold  int
	windowRadius   int
	fingerprintLen int
	logger         *observability.Logger
}

// NewParentExpander creates a parent expander.
func NewParentExpander(parents *storage.ParentRepository, maxParents, sizeThreshold, windowRadius, fingerprintLen int, logger *observability.Logger) *ParentExpander {
	return &ParentExpander{
		parents:        parents,
		maxParents:     maxParents,
		sizeThreshold:  sizeThreshold,
		windowRadius:   windowRadius,
		fingerprintLen: fingerprintLen,
		logger:         logger.WithComponent("parent_expander"),
	}
}

// Expand walks the candidates in rank order and returns their distinct
// parents, at most maxParents of them. A candidate whose parent was
// already taken is skipped; a missing parent row is logged and skipped.
func (e *ParentExpander) Expand(ctx context.Context, candidates []*Candidate) ([]ExpandedParent, error) {
	seen := make(map[string]bool)
	var expanded []ExpandedParent

	for _, c := range candidates {
		if len(expanded) >= e.maxParents {
			break
		}
		if seen[c.ParentID] {
			continue
		}
		seen[c.ParentID] = true

		parent, err := e.parents.GetByID(ctx, c.ParentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				e.logger.Warn().Str("parent_id", c.ParentID).Msg("candidate references missing parent, skipping")
				continue
			}
			return nil, fmt.Errorf("load parent %s: %w", c.ParentID, err)
		}

		text, windowed := e.windowParent(parent.Content, c.RawText)
		expanded = append(expanded, ExpandedParent{
			Parent:     parent,
			Text:       text,
			IsWindowed: windowed,
		})
	}
	return expanded, nil
}

// windowParent returns the parent content whole when it fits, or a
// window of ±windowRadius runes centered on the child's position.
// The child is located by its fingerprint, the first fingerprintLen
// runes of its raw text; when the fingerprint cannot be found the
// window falls back to the leading portion of the parent.
func (e *ParentExpander) windowParent(content, childRaw string) (string, bool) {
	runes := []rune(content)
	if len(runes) <= e.sizeThreshold {
		return content, false
	}

	center := 0
	fingerprint := truncateRunes(strings.TrimSpace(childRaw), e.fingerprintLen)
	if fingerprint != "" {
		if byteIdx := strings.Index(content, fingerprint); byteIdx >= 0 {
			center = len([]rune(content[:byteIdx])) + len([]rune(fingerprint))/2
		}
	}

	start := center - e.windowRadius
	if start < 0 {
		start = 0
	}
	end := center + e.windowRadius
	if end > len(runes) {
		end = len(runes)
	}

	window := string(runes[start:end])
	if start > 0 {
		window = "..." + window
	}
	if end < len(runes) {
		window = window + "..."
	}
	return window, true
}

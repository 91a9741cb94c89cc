// Package storage provides database models and repositories for the
// Manual Engine parent store.
package storage

import "time"

// ParentSegment is one TOC-derived section of a document. Parents hold
// the full section text that gets returned as answer context; they are
// never embedded or indexed directly.
type ParentSegment struct {
	ParentID      string
	DocumentID    string
	Title         string
	Level         int
	HierarchyPath string // titles from root to section, " > " joined
	PageStart     int
	PageEnd       int
	Content       string
	CreatedAt     time.Time
}

// ChildPassage is one retrieval passage. Text is the breadcrumb-prefixed
// form that gets embedded and lexically indexed; RawText is the plain
// slice of the parent used for window positioning.
type ChildPassage struct {
	DocumentID string
	ChunkID    int
	ParentID   string
	Text       string
	RawText    string
	CreatedAt  time.Time
}

// Key returns the passage's corpus-wide identity.
func (c *ChildPassage) Key() string {
	return childKey(c.DocumentID, c.ChunkID)
}

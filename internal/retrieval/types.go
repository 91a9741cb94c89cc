// Package retrieval implements the query path: expansion, hybrid
// search with rank fusion, tool disambiguation, reranking, parent
// expansion, and context assembly.
package retrieval

import "time"

// Candidate is a child passage scored during retrieval. Candidates are
// transient and never persisted.
type Candidate struct {
	DocumentID  string
	ChunkID     int
	ParentID    string
	Text        string // breadcrumb-prefixed passage text
	RawText     string
	FusedScore  float64
	RerankScore float64
	Reranked    bool
	Methods     []string // retrieval methods that surfaced this passage
}

// Key returns the candidate's corpus-wide identity.
func (c *Candidate) Key() string {
	return candidateKey(c.DocumentID, c.ChunkID)
}

// ContextItem is one parent-level entry of the assembled context.
type ContextItem struct {
	Ref           int    `json:"ref"`
	ParentID      string `json:"parent_id"`
	DocumentID    string `json:"document_id"`
	Title         string `json:"title"`
	HierarchyPath string `json:"hierarchy_path"`
	Tool          string `json:"tool"`
	Text          string `json:"text"`
	IsWindowed    bool   `json:"is_windowed"`
	Truncated     bool   `json:"truncated"`
}

// Stats carries per-query pipeline statistics for logging and
// diagnostics.
type Stats struct {
	Expansions      int           `json:"expansions"`
	Candidates      int           `json:"candidates"`
	CrossMethodHits int           `json:"cross_method_hits"`
	Reranked        bool          `json:"reranked"`
	Parents         int           `json:"parents"`
	Duration        time.Duration `json:"duration"`
}

// Result is the outcome of one retrieval call.
type Result struct {
	Query          string        `json:"query"`
	Expansions     []string      `json:"expansions"`
	DocumentFilter []string      `json:"document_filter,omitempty"`
	DetectedTool   string        `json:"detected_tool,omitempty"`
	Context        string        `json:"context"`
	Items          []ContextItem `json:"items"`
	Stats          Stats         `json:"stats"`
}

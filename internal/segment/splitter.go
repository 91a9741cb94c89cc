package segment

import (
	"strings"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

// Child is one retrieval passage split out of a section. Text carries
// the breadcrumb prefix that gets embedded and indexed; Raw is the
// unprefixed slice of the section used for fingerprint matching during
// parent expansion.
type Child struct {
	ChunkID int
	Raw     string
	Text    string
}

// ChildSplitter splits section text into overlapping child passages.
// Sections at most singleChunkFactor times the target size stay whole.
type ChildSplitter struct {
	chunkSize int
	overlap   int
	factor    float64
}

// NewChildSplitter creates a splitter from segmentation settings.
func NewChildSplitter(cfg config.SegmentationConfig) *ChildSplitter {
	return &ChildSplitter{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
		factor:    cfg.SingleChunkFactor,
	}
}

// Split produces the children of one section. Chunk IDs are assigned
// through nextID so they stay monotonically increasing across all
// sections of a document.
func (s *ChildSplitter) Split(section *Section, breadcrumb string, nextID func() int) []Child {
	body := strings.TrimSpace(section.Text)
	if body == "" {
		return nil
	}

	var children []Child
	for _, window := range s.windows(body) {
		children = append(children, Child{
			ChunkID: nextID(),
			Raw:     window,
			Text:    breadcrumb + "\n\n" + window,
		})
	}
	return children
}

// windows cuts the body into overlapping rune windows, preferring to
// break at a paragraph boundary, then a sentence end, then a space.
func (s *ChildSplitter) windows(body string) []string {
	runes := []rune(body)
	n := len(runes)
	if float64(n) <= s.factor*float64(s.chunkSize) {
		return []string{body}
	}

	var out []string
	start := 0
	for start < n {
		end := start + s.chunkSize
		if end >= n {
			if w := strings.TrimSpace(string(runes[start:])); w != "" {
				out = append(out, w)
			}
			break
		}

		cut := s.findBreak(runes, start, end)
		if w := strings.TrimSpace(string(runes[start:cut])); w != "" {
			out = append(out, w)
		}

		next := cut - s.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return out
}

// findBreak picks the cut position inside [start, end). Break points in
// the first half of the window are ignored so windows keep a useful
// minimum size.
func (s *ChildSplitter) findBreak(runes []rune, start, end int) int {
	floor := start + s.chunkSize/2

	// Paragraph break.
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}

	// Sentence end.
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}

	// Whitespace.
	for i := end - 1; i > floor; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i + 1
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', ';', '；':
		return true
	}
	return false
}

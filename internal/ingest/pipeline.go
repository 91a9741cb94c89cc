// Package ingest orchestrates the document ingestion pipeline:
// extraction, noise filtering, boundary resolution, child splitting,
// and the dual index write.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chipstack-ai/manual-engine/internal/extract"
	"github.com/chipstack-ai/manual-engine/internal/index"
	"github.com/chipstack-ai/manual-engine/internal/observability"
	"github.com/chipstack-ai/manual-engine/internal/segment"
	"github.com/chipstack-ai/manual-engine/internal/storage"
)

// Request identifies one document to ingest.
type Request struct {
	DocumentID string
	Data       []byte
}

// Result summarizes one ingestion run.
type Result struct {
	JobID       uuid.UUID
	DocumentID  string
	Pages       int
	Parents     int
	Children    int
	DegradedTOC bool
	Duration    time.Duration
}

// Pipeline runs the ingestion steps for one document at a time.
// Re-ingesting a document replaces its records wholesale.
type Pipeline struct {
	extractor extract.Extractor
	noise     *segment.NoiseFilter
	boundary  *segment.BoundaryResolver
	splitter  *segment.ChildSplitter
	writer    *index.DualWriter
	logger    *observability.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(extractor extract.Extractor, noise *segment.NoiseFilter, boundary *segment.BoundaryResolver, splitter *segment.ChildSplitter, writer *index.DualWriter, logger *observability.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		noise:     noise,
		boundary:  boundary,
		splitter:  splitter,
		writer:    writer,
		logger:    logger.WithComponent("ingest"),
	}
}

// Ingest runs the full pipeline for one document. Extraction failures
// are fatal for the document; a missing TOC degrades to a single
// whole-document segment and is reported, not failed.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	jobID := uuid.New()
	logger := p.logger.WithDocument(req.DocumentID)

	logger.Info().Str("job_id", jobID.String()).Msg("starting ingestion")

	doc, err := p.extractor.Extract(ctx, req.DocumentID, req.Data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", req.DocumentID, err)
	}

	degraded := len(doc.TOC) == 0
	if degraded {
		logger.Warn().Msg("no table of contents extracted, ingesting as single segment")
	}

	pages := p.noise.Clean(doc.Pages)
	sections := p.boundary.Resolve(doc, pages)

	var (
		parents  []*storage.ParentSegment
		children []*storage.ChildPassage
	)
	chunkID := 0
	nextID := func() int {
		id := chunkID
		chunkID++
		return id
	}

	for i := range sections {
		section := &sections[i]
		parents = append(parents, &storage.ParentSegment{
			ParentID:      section.ParentID,
			DocumentID:    doc.DocumentID,
			Title:         section.Title,
			Level:         section.Level,
			HierarchyPath: joinPath(section.Path),
			PageStart:     section.PageStart,
			PageEnd:       section.PageEnd,
			Content:       section.Text,
		})

		breadcrumb := segment.ContextPath(doc.DocumentID, section.Path)
		for _, child := range p.splitter.Split(section, breadcrumb, nextID) {
			children = append(children, &storage.ChildPassage{
				DocumentID: doc.DocumentID,
				ChunkID:    child.ChunkID,
				ParentID:   section.ParentID,
				Text:       child.Text,
				RawText:    child.Raw,
			})
		}
	}

	if err := p.writer.WriteDocument(ctx, doc.DocumentID, parents, children); err != nil {
		return nil, fmt.Errorf("write document %s: %w", req.DocumentID, err)
	}

	result := &Result{
		JobID:       jobID,
		DocumentID:  doc.DocumentID,
		Pages:       len(pages),
		Parents:     len(parents),
		Children:    len(children),
		DegradedTOC: degraded,
		Duration:    time.Since(start),
	}

	logger.Info().
		Str("job_id", jobID.String()).
		Int("pages", result.Pages).
		Int("parents", result.Parents).
		Int("children", result.Children).
		Bool("degraded_toc", result.DegradedTOC).
		Dur("duration", result.Duration).
		Msg("ingestion complete")
	return result, nil
}

// Remove deletes a document from all stores.
func (p *Pipeline) Remove(ctx context.Context, documentID string) error {
	return p.writer.RemoveDocument(ctx, documentID)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " > "
		}
		out += p
	}
	return out
}

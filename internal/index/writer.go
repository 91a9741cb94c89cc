package index

import (
	"context"
	"fmt"

	"github.com/chipstack-ai/manual-engine/internal/llm"
	"github.com/chipstack-ai/manual-engine/internal/observability"
	"github.com/chipstack-ai/manual-engine/internal/storage"
)

// DualWriter is the single owner of parent and child persistence. It
// keeps the parent store, the vector index, the lexical index, and the
// child rows consistent: a document is always replaced wholesale.
type DualWriter struct {
	repos     *storage.Repositories
	vector    VectorIndex
	lexical   *Lexical
	embedder  llm.Embedder
	batchSize int
	logger    *observability.Logger
}

// NewDualWriter creates a dual writer.
func NewDualWriter(repos *storage.Repositories, vector VectorIndex, lexical *Lexical, embedder llm.Embedder, batchSize int, logger *observability.Logger) *DualWriter {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &DualWriter{
		repos:     repos,
		vector:    vector,
		lexical:   lexical,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger.WithComponent("dual_writer"),
	}
}

// WriteDocument replaces the document's records everywhere: parents in
// the parent store, children in the vector index, the lexical index,
// and the child rows backing lexical rebuilds. Every child must
// reference a parent written in the same call.
func (w *DualWriter) WriteDocument(ctx context.Context, documentID string, parents []*storage.ParentSegment, children []*storage.ChildPassage) error {
	parentIDs := make(map[string]bool, len(parents))
	for _, p := range parents {
		parentIDs[p.ParentID] = true
	}
	for _, c := range children {
		if !parentIDs[c.ParentID] {
			return fmt.Errorf("child %s references unknown parent %s", c.Key(), c.ParentID)
		}
	}

	if err := w.RemoveDocument(ctx, documentID); err != nil {
		return fmt.Errorf("remove previous records: %w", err)
	}

	for _, p := range parents {
		if err := w.repos.Parents.Create(ctx, p); err != nil {
			return fmt.Errorf("store parent %s: %w", p.ParentID, err)
		}
	}

	for start := 0; start < len(children); start += w.batchSize {
		end := start + w.batchSize
		if end > len(children) {
			end = len(children)
		}
		batch := children[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := w.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed children %d..%d: %w", start, end-1, err)
		}

		points := make([]Point, len(batch))
		for i, c := range batch {
			points[i] = Point{DocumentID: c.DocumentID, ChunkID: c.ChunkID, Vector: vectors[i]}
		}
		if err := w.vector.Upsert(ctx, points); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}

		for _, c := range batch {
			w.lexical.Add(c.DocumentID, c.ChunkID, c.Text)
			if err := w.repos.Children.Create(ctx, c); err != nil {
				return fmt.Errorf("store child %s: %w", c.Key(), err)
			}
		}
	}

	w.logger.Info().
		Str("document_id", documentID).
		Int("parents", len(parents)).
		Int("children", len(children)).
		Msg("document written to both indexes")
	return nil
}

// RemoveDocument deletes a document's records from all stores.
func (w *DualWriter) RemoveDocument(ctx context.Context, documentID string) error {
	if err := w.repos.Children.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete child rows: %w", err)
	}
	if err := w.repos.Parents.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete parents: %w", err)
	}
	if err := w.vector.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	w.lexical.DeleteByDocument(documentID)
	return nil
}

// RebuildLexical reloads the lexical index from the child store. Called
// at startup since the BM25 index lives in memory.
func (w *DualWriter) RebuildLexical(ctx context.Context) (int, error) {
	children, err := w.repos.Children.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list children: %w", err)
	}

	w.lexical.Reset()
	for _, c := range children {
		w.lexical.Add(c.DocumentID, c.ChunkID, c.Text)
	}

	w.logger.Info().Int("passages", len(children)).Msg("lexical index rebuilt")
	return len(children), nil
}

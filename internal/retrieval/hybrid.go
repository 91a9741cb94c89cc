package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chipstack-ai/manual-engine/internal/index"
	"github.com/chipstack-ai/manual-engine/internal/observability"
	"github.com/chipstack-ai/manual-engine/internal/storage"
)

// Embedder is the slice of the llm embedder the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HybridRetriever runs lexical and vector search for every query
// reformulation and fuses the ranked lists with reciprocal rank
// fusion. One method failing degrades the query to the surviving
// method; all lists failing is an error.
type HybridRetriever struct {
	lexical        *index.Lexical
	vector         index.VectorIndex
	embedder       Embedder
	children       *storage.ChildRepository
	rrfK           int
	perMethodLimit int
	poolSize       int
	logger         *observability.Logger
}

// NewHybridRetriever creates a hybrid retriever.
func NewHybridRetriever(lexical *index.Lexical, vector index.VectorIndex, embedder Embedder, children *storage.ChildRepository, rrfK, perMethodLimit, poolSize int, logger *observability.Logger) *HybridRetriever {
	return &HybridRetriever{
		lexical:        lexical,
		vector:         vector,
		embedder:       embedder,
		children:       children,
		rrfK:           rrfK,
		perMethodLimit: perMethodLimit,
		poolSize:       poolSize,
		logger:         logger.WithComponent("hybrid"),
	}
}

type rankedList struct {
	method string
	hits   []index.Hit
}

// Retrieve searches all reformulations and returns the fused candidate
// pool, hydrated from the child store and capped at the pool size. A
// non-empty filter restricts the pool to the named documents before
// truncation, so filtered queries still fill the pool from allowed
// documents.
func (h *HybridRetriever) Retrieve(ctx context.Context, queries []string, filter ...string) ([]*Candidate, error) {
	var (
		lists    []rankedList
		firstErr error
	)

	for _, query := range queries {
		lexHits, vecHits, err := h.searchBoth(ctx, query)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if lexHits != nil {
			lists = append(lists, rankedList{method: "lexical", hits: lexHits})
		}
		if vecHits != nil {
			lists = append(lists, rankedList{method: "vector", hits: vecHits})
		}
	}

	if len(lists) == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("all retrieval methods failed: %w", firstErr)
		}
		return nil, nil
	}

	var allow map[string]bool
	if len(filter) > 0 {
		allow = make(map[string]bool, len(filter))
		for _, doc := range filter {
			allow[doc] = true
		}
	}

	fused := h.fuse(lists, allow)
	return h.hydrate(ctx, fused)
}

// searchBoth runs the two methods concurrently for one query. Both
// goroutines always finish before it returns. A nil hit slice with nil
// error marks a method that failed while the other survived.
func (h *HybridRetriever) searchBoth(ctx context.Context, query string) ([]index.Hit, []index.Hit, error) {
	var (
		wg      sync.WaitGroup
		lexHits []index.Hit
		vecHits []index.Hit
		lexErr  error
		vecErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		hits := h.lexical.Search(query, h.perMethodLimit)
		if hits == nil {
			hits = []index.Hit{}
		}
		lexHits = hits
	}()
	go func() {
		defer wg.Done()
		vector, err := h.embedder.Embed(ctx, query)
		if err != nil {
			vecErr = fmt.Errorf("embed query: %w", err)
			return
		}
		hits, err := h.vector.Search(ctx, vector, h.perMethodLimit)
		if err != nil {
			vecErr = fmt.Errorf("vector search: %w", err)
			return
		}
		if hits == nil {
			hits = []index.Hit{}
		}
		vecHits = hits
	}()
	wg.Wait()

	if lexErr != nil && vecErr != nil {
		return nil, nil, fmt.Errorf("lexical: %v; vector: %v", lexErr, vecErr)
	}
	if vecErr != nil {
		h.logger.Warn().Err(vecErr).Str("query", query).Msg("vector search failed, degrading to lexical only")
		return lexHits, nil, nil
	}
	if lexErr != nil {
		h.logger.Warn().Err(lexErr).Str("query", query).Msg("lexical search failed, degrading to vector only")
		return nil, vecHits, nil
	}
	return lexHits, vecHits, nil
}

type fusedHit struct {
	documentID string
	chunkID    int
	score      float64
	methods    map[string]bool
}

// fuse applies reciprocal rank fusion across all ranked lists:
// score(passage) = sum over lists of 1/(k + rank). Ties break by
// passage key so the pool is deterministic. A non-nil allow set drops
// hits from other documents; ranks inside each list are unchanged.
func (h *HybridRetriever) fuse(lists []rankedList, allow map[string]bool) []*fusedHit {
	byKey := make(map[string]*fusedHit)
	for _, list := range lists {
		for rank, hit := range list.hits {
			if allow != nil && !allow[hit.DocumentID] {
				continue
			}
			key := hit.Key()
			f, ok := byKey[key]
			if !ok {
				f = &fusedHit{
					documentID: hit.DocumentID,
					chunkID:    hit.ChunkID,
					methods:    make(map[string]bool),
				}
				byKey[key] = f
			}
			f.score += 1.0 / float64(h.rrfK+rank+1)
			f.methods[list.method] = true
		}
	}

	fused := make([]*fusedHit, 0, len(byKey))
	for _, f := range byKey {
		fused = append(fused, f)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return candidateKey(fused[i].documentID, fused[i].chunkID) <
			candidateKey(fused[j].documentID, fused[j].chunkID)
	})

	if h.poolSize < len(fused) {
		fused = fused[:h.poolSize]
	}
	return fused
}

// hydrate loads the passage text and parent reference for each fused
// hit. Hits whose rows vanished (concurrent re-ingest) are skipped.
func (h *HybridRetriever) hydrate(ctx context.Context, fused []*fusedHit) ([]*Candidate, error) {
	candidates := make([]*Candidate, 0, len(fused))
	for _, f := range fused {
		child, err := h.children.Get(ctx, f.documentID, f.chunkID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.logger.Warn().
					Str("document_id", f.documentID).
					Int("chunk_id", f.chunkID).
					Msg("fused hit no longer in child store, skipping")
				continue
			}
			return nil, fmt.Errorf("hydrate candidate: %w", err)
		}

		methods := make([]string, 0, len(f.methods))
		for m := range f.methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		candidates = append(candidates, &Candidate{
			DocumentID: child.DocumentID,
			ChunkID:    child.ChunkID,
			ParentID:   child.ParentID,
			Text:       child.Text,
			RawText:    child.RawText,
			FusedScore: f.score,
			Methods:    methods,
		})
	}
	return candidates, nil
}

func candidateKey(documentID string, chunkID int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkID)
}

// CrossMethodHits counts candidates surfaced by both methods.
func CrossMethodHits(candidates []*Candidate) int {
	n := 0
	for _, c := range candidates {
		if len(c.Methods) > 1 {
			n++
		}
	}
	return n
}

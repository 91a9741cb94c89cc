package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chipstack-ai/manual-engine/internal/cache"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("retrieval: empty query")

// Engine wires the retrieval stages into a single Retrieve operation.
type Engine struct {
	expander  *Expander
	hybrid    *HybridRetriever
	disamb    *Disambiguator
	rerank    *RerankStage
	parents   *ParentExpander
	assembler *Assembler
	cache     cache.Client
	cacheTTL  time.Duration
	useCache  bool
	logger    *observability.Logger
}

// NewEngine creates a retrieval engine. A nil cache client disables
// result caching.
func NewEngine(expander *Expander, hybrid *HybridRetriever, disamb *Disambiguator, rerank *RerankStage, parents *ParentExpander, assembler *Assembler, cacheClient cache.Client, cacheTTL time.Duration, logger *observability.Logger) *Engine {
	return &Engine{
		expander:  expander,
		hybrid:    hybrid,
		disamb:    disamb,
		rerank:    rerank,
		parents:   parents,
		assembler: assembler,
		cache:     cacheClient,
		cacheTTL:  cacheTTL,
		useCache:  cacheClient != nil,
		logger:    logger.WithComponent("engine"),
	}
}

// Retrieve runs the full query path and returns the assembled context
// with provenance. An optional document filter restricts candidates to
// the named documents. An empty candidate pool is not an error; the
// result simply carries no items.
func (e *Engine) Retrieve(ctx context.Context, query string, filter ...string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	cacheKey := cache.RetrievalCacheKey(hashQuery(query, filter))

	if e.useCache {
		if data, err := e.cache.Get(ctx, cacheKey); err == nil {
			var cached Result
			if err := json.Unmarshal(data, &cached); err == nil {
				e.logger.Debug().Str("query", query).Msg("retrieval cache hit")
				return &cached, nil
			}
		}
	}

	queries := e.expander.Expand(ctx, query)

	candidates, err := e.hybrid.Retrieve(ctx, queries, filter...)
	if err != nil {
		return nil, fmt.Errorf("hybrid retrieval: %w", err)
	}

	candidates, detectedTool := e.disamb.Apply(query, candidates)
	topCandidates, reranked := e.rerank.Apply(ctx, query, candidates)

	expanded, err := e.parents.Expand(ctx, topCandidates)
	if err != nil {
		return nil, fmt.Errorf("parent expansion: %w", err)
	}

	contextBlock, items := e.assembler.Assemble(expanded, e.disamb.ToolForDocument)

	result := &Result{
		Query:          query,
		Expansions:     queries,
		DocumentFilter: filter,
		DetectedTool:   detectedTool,
		Context:        contextBlock,
		Items:          items,
		Stats: Stats{
			Expansions:      len(queries),
			Candidates:      len(candidates),
			CrossMethodHits: CrossMethodHits(candidates),
			Reranked:        reranked,
			Parents:         len(items),
			Duration:        time.Since(start),
		},
	}

	e.logger.Info().
		Str("query", query).
		Int("expansions", result.Stats.Expansions).
		Int("candidates", result.Stats.Candidates).
		Int("cross_method_hits", result.Stats.CrossMethodHits).
		Bool("reranked", result.Stats.Reranked).
		Int("parents", result.Stats.Parents).
		Str("tool", detectedTool).
		Dur("duration", result.Stats.Duration).
		Msg("retrieval complete")

	if e.useCache {
		if data, err := json.Marshal(result); err == nil {
			if err := e.cache.Set(ctx, cacheKey, data, e.cacheTTL); err != nil {
				e.logger.Warn().Err(err).Msg("failed to cache retrieval result")
			}
		}
	}

	return result, nil
}

// InvalidateCache drops all cached retrieval results. Called after
// ingestion changes the corpus.
func (e *Engine) InvalidateCache(ctx context.Context) error {
	if !e.useCache {
		return nil
	}
	return e.cache.DeleteByPrefix(ctx, "q:")
}

// hashQuery folds the normalized query and the document filter into
// one cache key component, so filtered and unfiltered results never
// collide.
func hashQuery(query string, filter []string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(query)))

	sorted := append([]string(nil), filter...)
	sort.Strings(sorted)
	for _, doc := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(doc))
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

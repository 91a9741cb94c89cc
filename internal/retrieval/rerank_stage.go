package retrieval

import (
	"context"

	"github.com/chipstack-ai/manual-engine/internal/llm"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

// RerankStage re-scores the candidate pool with the cross-encoder
// service and keeps the top-N. When reranking is disabled or the
// service fails, the stage falls back to the incoming order's top-N.
type RerankStage struct {
	reranker *llm.Reranker
	topN     int
	maxRunes int
	logger   *observability.Logger
}

// NewRerankStage creates a rerank stage.
func NewRerankStage(reranker *llm.Reranker, topN, maxRunes int, logger *observability.Logger) *RerankStage {
	return &RerankStage{
		reranker: reranker,
		topN:     topN,
		maxRunes: maxRunes,
		logger:   logger.WithComponent("rerank"),
	}
}

// Apply returns the top-N candidates for the query. The returned bool
// reports whether rerank scores were actually applied.
func (s *RerankStage) Apply(ctx context.Context, query string, candidates []*Candidate) ([]*Candidate, bool) {
	if len(candidates) == 0 {
		return candidates, false
	}

	if s.reranker == nil || !s.reranker.Enabled() {
		return s.topOf(candidates), false
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = truncateRunes(c.Text, s.maxRunes)
	}

	results, err := s.reranker.Rerank(ctx, query, documents, s.topN)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rerank failed, keeping fused order")
		return s.topOf(candidates), false
	}
	if len(results) == 0 {
		return s.topOf(candidates), false
	}

	reranked := make([]*Candidate, 0, len(results))
	for _, r := range results {
		c := candidates[r.Index]
		c.RerankScore = r.RelevanceScore
		c.Reranked = true
		reranked = append(reranked, c)
	}
	if len(reranked) > s.topN {
		reranked = reranked[:s.topN]
	}
	return reranked, true
}

func (s *RerankStage) topOf(candidates []*Candidate) []*Candidate {
	if len(candidates) > s.topN {
		return candidates[:s.topN]
	}
	return candidates
}

// truncateRunes cuts a string to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

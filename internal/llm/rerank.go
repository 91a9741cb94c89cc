package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

// RerankResult is one scored document from the rerank service. Index
// refers to the position in the submitted document list.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Reranker scores documents against a query using a cross-encoder
// service. A disabled reranker reports Enabled() == false and is never
// called by the pipeline.
type Reranker struct {
	enabled bool
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewReranker creates a reranker from rerank settings.
func NewReranker(cfg config.RerankConfig) *Reranker {
	return &Reranker{
		enabled: cfg.Enabled,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// DisabledReranker returns a reranker that is never called.
func DisabledReranker() *Reranker {
	return &Reranker{enabled: false}
}

// Enabled reports whether reranking is configured.
func (r *Reranker) Enabled() bool {
	return r.enabled
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank scores the documents against the query and returns up to topN
// results ordered by descending relevance.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if !r.enabled {
		return nil, fmt.Errorf("reranker is disabled")
	}
	if len(documents) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	var out []RerankResult
	err = withRetry(ctx, defaultRetryAttempts, defaultRetryBase, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("rerank request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			return fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, string(body))
		}

		var parsed rerankResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode rerank response: %w", err)
		}
		for _, res := range parsed.Results {
			if res.Index < 0 || res.Index >= len(documents) {
				return fmt.Errorf("rerank service returned out-of-range index %d", res.Index)
			}
		}
		// The service is not required to sort; the descending order is
		// this adapter's contract.
		sort.SliceStable(parsed.Results, func(i, j int) bool {
			return parsed.Results[i].RelevanceScore > parsed.Results[j].RelevanceScore
		})
		out = parsed.Results
		return nil
	})
	return out, err
}

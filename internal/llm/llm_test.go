package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

func TestEmbeddingClientBatchPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		// Respond with indexes reversed to prove order is restored.
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(i), 1}})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	client := NewEmbeddingClient(config.EmbeddingConfig{
		BaseURL: srv.URL, APIKey: "test-key", Model: "m", Dimension: 2, Timeout: 5 * time.Second,
	})

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{2, 1}, vectors[2])
}

func TestEmbeddingClientRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	client := NewEmbeddingClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})

	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbeddingClientRejectsDuplicateIndexes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Two vectors claim slot 0; slot 1 would stay nil.
		w.Write([]byte(`{"data":[
			{"index":0,"embedding":[1]},
			{"index":0,"embedding":[2]}
		]}`))
	}))
	defer srv.Close()

	client := NewEmbeddingClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})

	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate index")
}

func TestRerankerOrdersByScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "how to route nets", req.Query)
		assert.Equal(t, 2, req.TopN)

		json.NewEncoder(w).Encode(rerankResponse{Results: []RerankResult{
			{Index: 2, RelevanceScore: 0.9},
			{Index: 0, RelevanceScore: 0.4},
		}})
	}))
	defer srv.Close()

	r := NewReranker(config.RerankConfig{Enabled: true, BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})

	results, err := r.Rerank(context.Background(), "how to route nets", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Index)
	assert.InDelta(t, 0.9, results[0].RelevanceScore, 1e-9)
}

func TestRerankerSortsUnsortedServiceResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Scores in input order, not ranked.
		json.NewEncoder(w).Encode(rerankResponse{Results: []RerankResult{
			{Index: 0, RelevanceScore: 0.2},
			{Index: 1, RelevanceScore: 0.8},
			{Index: 2, RelevanceScore: 0.5},
		}})
	}))
	defer srv.Close()

	r := NewReranker(config.RerankConfig{Enabled: true, BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})

	results, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{results[0].Index, results[1].Index, results[2].Index})
}

func TestRerankerDisabled(t *testing.T) {
	r := DisabledReranker()
	assert.False(t, r.Enabled())
	_, err := r.Rerank(context.Background(), "q", []string{"d"}, 1)
	assert.Error(t, err)
}

func TestRerankerRejectsOutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rerankResponse{Results: []RerankResult{{Index: 5, RelevanceScore: 1}}})
	}))
	defer srv.Close()

	r := NewReranker(config.RerankConfig{Enabled: true, BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})
	_, err := r.Rerank(context.Background(), "q", []string{"only one"}, 1)
	assert.Error(t, err)
}

func TestGenerationClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"content":"QUERY 1: alternative"}}]}`))
	}))
	defer srv.Close()

	g := NewGenerationClient(config.GenerationConfig{BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second})
	out, err := g.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "QUERY 1: alternative", out)
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(16)
	a, err := m.Embed(context.Background(), "same text")
	require.NoError(t, err)
	b, err := m.Embed(context.Background(), "same text")
	require.NoError(t, err)
	c, err := m.Embed(context.Background(), "different text")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, 3, time.Millisecond, func() error {
		return errors.New("should not matter")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetryGivesUpAfterAttempts(t *testing.T) {
	var calls int
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("persistent")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

// qdrantNamespace derives stable point UUIDs from passage keys, so
// re-ingesting a document overwrites its points instead of duplicating
// them.
var qdrantNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// QdrantIndex is a minimal REST client to a Qdrant collection. It
// assumes cosine distance and creates the collection on first use.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// NewQdrantIndex creates a Qdrant-backed vector index and ensures the
// collection exists.
func NewQdrantIndex(cfg config.QdrantConfig, dimension int) (*QdrantIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: invalid dimension %d", dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	q := &QdrantIndex{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  dimension,
		client:     &http.Client{Timeout: timeout},
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.putJSON(context.Background(), fmt.Sprintf("%s/collections/%s", q.url, q.collection), body, nil); err != nil {
		return nil, fmt.Errorf("qdrant: ensure collection: %w", err)
	}
	return q, nil
}

// Upsert adds or replaces points.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	payload := make([]map[string]any, 0, len(points))
	for _, p := range points {
		key := fmt.Sprintf("%s:%d", p.DocumentID, p.ChunkID)
		payload = append(payload, map[string]any{
			"id":     uuid.NewSHA1(qdrantNamespace, []byte(key)).String(),
			"vector": p.Vector,
			"payload": map[string]any{
				"document_id": p.DocumentID,
				"chunk_id":    p.ChunkID,
			},
		})
	}
	body := map[string]any{"points": payload}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection), body, nil)
}

// Search finds the k most similar passages.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection), req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := Hit{Score: r.Score}
		if v, ok := r.Payload["document_id"].(string); ok {
			hit.DocumentID = v
		}
		if v, ok := r.Payload["chunk_id"].(float64); ok {
			hit.ChunkID = int(v)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteByDocument removes all points of a document via a payload filter.
func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	return q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", q.url, q.collection), body, nil)
}

// Count returns the number of indexed points.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", q.url, q.collection), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close releases resources.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) putJSON(ctx context.Context, url string, body, out any) error {
	return q.doJSON(ctx, http.MethodPut, url, body, out)
}

func (q *QdrantIndex) postJSON(ctx context.Context, url string, body, out any) error {
	return q.doJSON(ctx, http.MethodPost, url, body, out)
}

func (q *QdrantIndex) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, string(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ VectorIndex = (*QdrantIndex)(nil)

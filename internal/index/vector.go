// Package index holds the two child-passage indexes, vector and
// lexical, plus the dual writer that keeps them and the parent store
// consistent.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Point is one child passage vector to be indexed.
type Point struct {
	DocumentID string
	ChunkID    int
	Vector     []float32
}

// Hit is one search result from either index.
type Hit struct {
	DocumentID string
	ChunkID    int
	Score      float64
}

// Key returns the hit's corpus-wide identity.
func (h Hit) Key() string {
	return fmt.Sprintf("%s:%d", h.DocumentID, h.ChunkID)
}

// VectorIndex defines the interface for vector similarity search over
// child passages.
type VectorIndex interface {
	// Upsert adds or replaces points.
	Upsert(ctx context.Context, points []Point) error

	// Search finds the k most similar passages to the query vector.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// DeleteByDocument removes all points of a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Count returns the number of indexed points.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// MemoryIndex is a pure-Go in-memory vector index using normalized
// cosine similarity. Suitable for development and tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

type memoryPoint struct {
	documentID string
	chunkID    int
	vector     []float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]memoryPoint)}
}

// Upsert adds or replaces points. Vectors are normalized on insert so
// search reduces to a dot product.
func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if len(p.Vector) == 0 {
			continue
		}
		key := fmt.Sprintf("%s:%d", p.DocumentID, p.ChunkID)
		m.points[key] = memoryPoint{
			documentID: p.DocumentID,
			chunkID:    p.ChunkID,
			vector:     normalizeVector(p.Vector),
		}
	}
	return nil
}

// Search returns the top-k passages by cosine similarity. Ties break
// deterministically by passage key.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := normalizeVector(vector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.points))
	for _, p := range m.points {
		if len(p.vector) != len(query) {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(p.vector[i])
		}
		hits = append(hits, Hit{DocumentID: p.documentID, ChunkID: p.chunkID, Score: dot})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key() < hits[j].Key()
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteByDocument removes all points of a document.
func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.points {
		if p.documentID == documentID {
			delete(m.points, key)
		}
	}
	return nil
}

// Count returns the number of indexed points.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// Close releases resources.
func (m *MemoryIndex) Close() error {
	return nil
}

// normalizeVector returns a unit vector.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, x := range v {
		normalized[i] = float32(float64(x) / norm)
	}
	return normalized
}

var _ VectorIndex = (*MemoryIndex)(nil)

package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process Index used by tests and local development
// runs that have no Qdrant server. It scores with the same dot products
// the server-side schema declares.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[uuid.UUID]ChunkPoint
}

// NewMemoryIndex creates an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[uuid.UUID]ChunkPoint)}
}

// EnsureSchema is a no-op.
func (m *MemoryIndex) EnsureSchema(ctx context.Context) error { return nil }

// Upsert overwrites points keyed by chunk ID.
func (m *MemoryIndex) Upsert(ctx context.Context, points []ChunkPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ChunkID] = p
	}
	return nil
}

// DeleteByResource removes every point of a resource.
func (m *MemoryIndex) DeleteByResource(ctx context.Context, resourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.ResourceID == resourceID {
			delete(m.points, id)
		}
	}
	return nil
}

// DeleteByCollection removes every point of a collection.
func (m *MemoryIndex) DeleteByCollection(ctx context.Context, collectionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.CollectionID == collectionID {
			delete(m.points, id)
		}
	}
	return nil
}

// QueryDense scores points in the collection by dense dot product.
func (m *MemoryIndex) QueryDense(ctx context.Context, q Query) ([]Hit, error) {
	return m.query(q, func(p ChunkPoint) float32 {
		var sum float32
		n := len(q.Dense)
		if len(p.Dense) < n {
			n = len(p.Dense)
		}
		for i := 0; i < n; i++ {
			sum += q.Dense[i] * p.Dense[i]
		}
		return sum
	})
}

// QuerySparse scores points in the collection by sparse dot product.
func (m *MemoryIndex) QuerySparse(ctx context.Context, q Query) ([]Hit, error) {
	if q.Sparse.IsEmpty() {
		return nil, nil
	}
	weights := make(map[uint32]float32, len(q.Sparse.Indices))
	for i, idx := range q.Sparse.Indices {
		weights[idx] = q.Sparse.Values[i]
	}
	return m.query(q, func(p ChunkPoint) float32 {
		var sum float32
		for i, idx := range p.Sparse.Indices {
			if w, ok := weights[idx]; ok {
				sum += w * p.Sparse.Values[i]
			}
		}
		return sum
	})
}

func (m *MemoryIndex) query(q Query, score func(ChunkPoint) float32) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, p := range m.points {
		if p.CollectionID != q.CollectionID {
			continue
		}
		s := score(p)
		if s <= 0 {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:      p.ChunkID,
			ResourceID:   p.ResourceID,
			CollectionID: p.CollectionID,
			Text:         p.Text,
			Filename:     p.Filename,
			ContentType:  p.ContentType,
			CreatedAt:    p.CreatedAt,
			Score:        s,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID.String() < hits[j].ChunkID.String()
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// ExistingIDs reports which chunk IDs have points.
func (m *MemoryIndex) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	existing := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.points[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

// Len reports the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

var _ Index = (*MemoryIndex)(nil)

package vectorstore

import (
	"context"
	"sync"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// MemoryStore keeps entries in process memory and searches by brute force.
// Contents are lost on restart; use it for tests and throwaway runs.
type MemoryStore struct {
	dimensions int
	entries    map[string]Entry
	mu         sync.RWMutex
}

// NewMemoryStore returns an empty store for vectors of the given length.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, apperr.Storef("open", "dimensions must be positive")
	}
	return &MemoryStore{dimensions: dimensions, entries: make(map[string]Entry)}, nil
}

// Upsert stores copies of entries, replacing any with the same ID.
func (m *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	if err := checkEntries("upsert", entries, m.dimensions); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Store("upsert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		m.entries[e.ID] = Entry{ID: e.ID, Vector: vec, Text: e.Text, Metadata: cloneMetadata(e.Metadata)}
	}
	return nil
}

// Query scores every entry by cosine similarity.
func (m *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := checkVector("query", vector, m.dimensions); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Store("query", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		matches = append(matches, Match{Entry: e, Score: CosineSimilarity(vector, e.Vector)})
	}
	return topK(matches, k), nil
}

// DeleteBySource removes every entry from source.
func (m *MemoryStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.Source() == source {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of entries.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

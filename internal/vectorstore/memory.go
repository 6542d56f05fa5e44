package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

type memoryEntry struct {
	documentID string
	vector     []float32
	norm       float64
	seq        uint64
}

// Memory is a process-local Store. Contents are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	seq     uint64
	dim     int
	entries map[string]*memoryEntry
	byDoc   map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		byDoc:   make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Upsert(_ context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := checkRecords(records, m.dim)
	if err != nil {
		return err
	}
	m.dim = dim
	for _, r := range records {
		vec := append([]float32(nil), r.Vector...)
		if existing, ok := m.entries[r.ChunkID]; ok {
			if existing.documentID != r.DocumentID {
				delete(m.byDoc[existing.documentID], r.ChunkID)
			}
			existing.documentID = r.DocumentID
			existing.vector = vec
			existing.norm = norm(vec)
		} else {
			m.seq++
			m.entries[r.ChunkID] = &memoryEntry{documentID: r.DocumentID, vector: vec, norm: norm(vec), seq: m.seq}
		}
		if m.byDoc[r.DocumentID] == nil {
			m.byDoc[r.DocumentID] = make(map[string]struct{})
		}
		m.byDoc[r.DocumentID][r.ChunkID] = struct{}{}
	}
	return nil
}

func (m *Memory) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chunkID := range m.byDoc[documentID] {
		delete(m.entries, chunkID)
	}
	delete(m.byDoc, documentID)
	if len(m.entries) == 0 {
		m.dim = 0
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := checkVector(query); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim != 0 && len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), m.dim)
	}
	allowed := filter.allows()
	qNorm := norm(query)
	cands := make([]candidate, 0, len(m.entries))
	for chunkID, e := range m.entries {
		if !allowed(e.documentID) {
			continue
		}
		cands = append(cands, candidate{
			hit: Hit{
				ChunkID:    chunkID,
				DocumentID: e.documentID,
				Similarity: normalize(cosine(query, qNorm, e.vector, e.norm)),
			},
			seq: e.seq,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rank(cands, k), nil
}

// Len returns the number of stored vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

package vectorindex

import (
	"context"
	"sync"
)

// MemoryIndex is a brute-force in-process index for development and tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	records   map[string]Record
	batchSize int
}

func NewMemoryIndex(batchSize int) *MemoryIndex {
	return &MemoryIndex{
		records:   make(map[string]Record),
		batchSize: batchSize,
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	return writeBatches(ctx, records, m.batchSize, func(_ context.Context, batch []Record) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, r := range batch {
			values := make([]float32, len(r.Values))
			copy(values, r.Values)
			r.Values = values
			m.records[r.ID] = r
		}
		return nil
	})
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matches := make([]Match, 0, len(m.records))
	for _, r := range m.records {
		if filter.DocumentID != "" && r.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		matches = append(matches, Match{
			ID:         r.ID,
			Score:      cosine(vector, r.Values),
			DocumentID: r.Metadata.DocumentID,
			PageNumber: r.Metadata.PageNumber,
			Text:       r.Metadata.Text,
		})
	}
	m.mu.RUnlock()

	sortMatches(matches)
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.Metadata.DocumentID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

// Len reports how many records are stored.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

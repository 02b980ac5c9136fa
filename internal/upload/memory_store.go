package upload

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory upload record store for demo/development mode.
type MemoryStore struct {
	records map[string]*UploadRecord
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory upload record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*UploadRecord)}
}

func (m *MemoryStore) Create(ctx context.Context, r *UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*UploadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*UploadRecord
	for _, r := range m.records {
		if r.OwnerID == ownerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

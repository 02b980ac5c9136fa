package certificate

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory certificate store for demo/development mode.
type MemoryStore struct {
	certs map[string]*Certificate
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory certificate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{certs: make(map[string]*Certificate)}
}

func (m *MemoryStore) Create(ctx context.Context, cert *Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *cert
	m.certs[cert.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cert, ok := m.certs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cert
	return &cp, nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*Certificate, error) {
	return m.list(func(c *Certificate) bool { return c.OwnerID == ownerID }), nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]*Certificate, error) {
	return m.list(func(c *Certificate) bool { return c.Status == StatusPending }), nil
}

func (m *MemoryStore) Approve(ctx context.Context, id string) (*Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cert, ok := m.certs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cert.Status != StatusPending {
		return nil, ErrInvalidState
	}

	cert.Status = StatusValid
	cp := *cert
	return &cp, nil
}

func (m *MemoryStore) DeletePending(ctx context.Context, id string) (*Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cert, ok := m.certs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cert.Status != StatusPending {
		return nil, ErrInvalidState
	}

	delete(m.certs, id)
	cp := *cert
	return &cp, nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cert, ok := m.certs[id]
	if !ok {
		return ErrNotFound
	}
	cert.Status = status
	return nil
}

func (m *MemoryStore) list(match func(*Certificate) bool) []*Certificate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Certificate
	for _, c := range m.certs {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedDate.After(out[j].IssuedDate)
	})
	return out
}

package user

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory user store for demo/development mode.
type MemoryStore struct {
	users   map[string]*User
	byEmail map[string]string // email -> id
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[u.Email]; taken {
		return ErrEmailTaken
	}

	cp := *u
	m.users[u.ID] = &cp
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

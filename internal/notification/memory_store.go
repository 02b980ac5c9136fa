package notification

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory notification store for demo/development mode.
type MemoryStore struct {
	notifications map[string]*Notification
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[string]*Notification)}
}

func (m *MemoryStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*Notification, error) {
	return m.list(func(*Notification) bool { return true }), nil
}

func (m *MemoryStore) ListUnread(ctx context.Context) ([]*Notification, error) {
	return m.list(func(n *Notification) bool { return !n.Read }), nil
}

func (m *MemoryStore) UnreadCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.notifications {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (m *MemoryStore) MarkAllRead(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		n.Read = true
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(m.notifications, id)
	return nil
}

func (m *MemoryStore) list(match func(*Notification) bool) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for _, n := range m.notifications {
		if match(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

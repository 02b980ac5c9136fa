package trading

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory transaction store for demo/development mode.
type MemoryStore struct {
	txns map[string]*Transaction
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txns: make(map[string]*Transaction)}
}

func (m *MemoryStore) Create(ctx context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.txns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *txn
	return &cp, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Transaction, error) {
	return m.list(func(t *Transaction) bool {
		return t.BuyerID == userID || t.SellerID == userID
	}), nil
}

func (m *MemoryStore) ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error) {
	return m.list(func(t *Transaction) bool { return t.BuyerID == buyerID }), nil
}

func (m *MemoryStore) ListBySeller(ctx context.Context, sellerID string) ([]*Transaction, error) {
	return m.list(func(t *Transaction) bool { return t.SellerID == sellerID }), nil
}

func (m *MemoryStore) MarkCancelled(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[id]
	if !ok {
		return nil, ErrNotFound
	}
	if txn.Status != StatusPending {
		return nil, ErrInvalidState
	}

	txn.Status = StatusCancelled
	txn.UpdatedAt = time.Now().UTC()
	cp := *txn
	return &cp, nil
}

// markCompleted flips PENDING to COMPLETED. Used by the memory settler as
// the final infallible step of settlement.
func (m *MemoryStore) markCompleted(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn, ok := m.txns[id]; ok && txn.Status == StatusPending {
		txn.Status = StatusCompleted
		txn.UpdatedAt = time.Now().UTC()
	}
}

func (m *MemoryStore) list(match func(*Transaction) bool) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, t := range m.txns {
		if match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

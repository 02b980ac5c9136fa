package carbonwallet

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
)

// MemoryStore is an in-memory carbon wallet store for demo/development mode.
type MemoryStore struct {
	wallets map[string]*Wallet // userID -> wallet
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory carbon wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Wallet)}
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, tons decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	w, ok := m.wallets[userID]
	if !ok {
		w = &Wallet{
			ID:        idgen.WithPrefix("cw_"),
			UserID:    userID,
			Balance:   decimal.Zero,
			CreatedAt: now,
		}
		m.wallets[userID] = w
	}
	w.Balance = w.Balance.Add(tons)
	w.UpdatedAt = now
	return nil
}

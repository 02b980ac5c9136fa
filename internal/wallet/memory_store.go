package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
)

// MemoryStore is an in-memory wallet store for demo/development mode.
// A single mutex covers balances, entries and top-ups so multi-step
// operations stay atomic.
type MemoryStore struct {
	wallets map[string]*Wallet // userID -> wallet
	entries map[string][]*Entry
	topUps  map[string]*TopUp
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*Wallet),
		entries: make(map[string][]*Entry),
		topUps:  make(map[string]*TopUp),
	}
}

// getOrCreateLocked returns the wallet for userID. Caller must hold mu.
func (m *MemoryStore) getOrCreateLocked(userID string) *Wallet {
	if w, ok := m.wallets[userID]; ok {
		return w
	}
	now := time.Now().UTC()
	w := &Wallet{
		ID:        idgen.WithPrefix("wal_"),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.wallets[userID] = w
	return w
}

func (m *MemoryStore) recordLocked(userID string, amount decimal.Decimal, entryType, reference, description string) {
	m.entries[userID] = append(m.entries[userID], &Entry{
		ID:          idgen.WithPrefix("le_"),
		UserID:      userID,
		Type:        entryType,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *m.getOrCreateLocked(userID)
	return &cp, nil
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, amount decimal.Decimal, entryType, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.getOrCreateLocked(userID)
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	m.recordLocked(userID, amount, entryType, reference, description)
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, userID string, amount decimal.Decimal, entryType, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.getOrCreateLocked(userID)
	if w.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	m.recordLocked(userID, amount, entryType, reference, description)
	return nil
}

func (m *MemoryStore) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.getOrCreateLocked(fromID)
	if from.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	to := m.getOrCreateLocked(toID)

	now := time.Now().UTC()
	from.Balance = from.Balance.Sub(amount)
	from.UpdatedAt = now
	to.Balance = to.Balance.Add(amount)
	to.UpdatedAt = now

	m.recordLocked(fromID, amount, EntryTransferOut, reference, description)
	m.recordLocked(toID, amount, EntryTransferIn, reference, description)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.entries[userID]
	// Newest first
	out := make([]*Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CreateTopUp(ctx context.Context, t *TopUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.topUps[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTopUp(ctx context.Context, id string) (*TopUp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.topUps[id]
	if !ok {
		return nil, ErrTopUpNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ApproveTopUp(ctx context.Context, id, note string) (*TopUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topUps[id]
	if !ok {
		return nil, ErrTopUpNotFound
	}
	if t.Status != TopUpPending {
		return nil, ErrInvalidState
	}

	t.Status = TopUpSuccess
	t.Description += note
	t.UpdatedAt = time.Now().UTC()

	w := m.getOrCreateLocked(t.UserID)
	w.Balance = w.Balance.Add(t.Amount)
	w.UpdatedAt = t.UpdatedAt
	m.recordLocked(t.UserID, t.Amount, EntryTopUp, t.ID, t.Description)

	cp := *t
	return &cp, nil
}

func (m *MemoryStore) RejectTopUp(ctx context.Context, id, note string) (*TopUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topUps[id]
	if !ok {
		return nil, ErrTopUpNotFound
	}
	if t.Status != TopUpPending {
		return nil, ErrInvalidState
	}

	t.Status = TopUpFailed
	t.Description += note
	t.UpdatedAt = time.Now().UTC()

	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTopUps(ctx context.Context, status string) ([]*TopUp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TopUp
	for _, t := range m.topUps {
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

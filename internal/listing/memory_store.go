package listing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory listing store for demo/development mode.
type MemoryStore struct {
	listings map[string]*Listing
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory listing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]*Listing)}
}

func (m *MemoryStore) Create(ctx context.Context, l *Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *l
	m.listings[l.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ListOpen(ctx context.Context) ([]*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Listing
	for _, l := range m.listings {
		if l.Status == StatusOpen {
			cp := *l
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListBySeller(ctx context.Context, sellerID string) ([]*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Listing
	for _, l := range m.listings {
		if l.SellerID == sellerID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Decrement(ctx context.Context, id string, qty decimal.Decimal) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Status != StatusOpen {
		return nil, ErrUnavailable
	}
	if qty.GreaterThan(l.CarbonAmount) {
		return nil, ErrQuantityExceedsAvailable
	}

	l.CarbonAmount = l.CarbonAmount.Sub(qty)
	if !l.CarbonAmount.IsPositive() {
		l.CarbonAmount = decimal.Zero
		l.Status = StatusSold
	}
	l.UpdatedAt = time.Now().UTC()

	cp := *l
	return &cp, nil
}

func sortNewestFirst(ls []*Listing) {
	sort.Slice(ls, func(i, j int) bool {
		return ls[i].CreatedAt.After(ls[j].CreatedAt)
	})
}

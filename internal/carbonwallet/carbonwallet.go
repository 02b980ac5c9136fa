// Package carbonwallet tracks carbon credit holdings in tons. Wallets are
// credit-only from the API surface: tons arrive through trade settlement or
// upload crediting, never through a direct debit.
package carbonwallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

var ErrNotFound = errors.New("carbon wallet not found")

// Wallet holds a user's carbon credit balance in tons.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"` // tons
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store persists carbon wallets.
type Store interface {
	// Get returns ErrNotFound when the user has no carbon wallet yet.
	Get(ctx context.Context, userID string) (*Wallet, error)
	// Credit adds tons, creating the wallet atomically if absent.
	Credit(ctx context.Context, userID string, tons decimal.Decimal) error
}

// Service manages carbon wallets.
type Service struct {
	store Store
}

// NewService creates a carbon wallet service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetBalance returns the user's carbon balance. Unlike the fiat wallet,
// absence is an error rather than an implicit zero-balance creation.
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := s.store.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Credit adds tons to a user's carbon wallet, creating it if needed.
func (s *Service) Credit(ctx context.Context, userID string, tons decimal.Decimal) error {
	if err := money.RequirePositive(tons); err != nil {
		return err
	}
	return s.store.Credit(ctx, userID, tons)
}

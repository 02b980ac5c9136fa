// Package wallet tracks fiat balances on the marketplace.
//
// Flow:
//  1. User submits a top-up request (pending until arbitrated)
//  2. Admin approves, wallet is credited atomically with the status flip
//  3. Trades debit the buyer and credit the seller during settlement
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
	"github.com/tpnguyen128/carbonmarket/internal/metrics"
	"github.com/tpnguyen128/carbonmarket/internal/money"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTopUpNotFound       = errors.New("top-up not found")
	ErrInvalidState        = errors.New("top-up is not pending")
)

// Entry types recorded in wallet history.
const (
	EntryCredit      = "credit"
	EntryDebit       = "debit"
	EntryTransferIn  = "transfer_in"
	EntryTransferOut = "transfer_out"
	EntryTopUp       = "topup"
)

// Top-up statuses.
const (
	TopUpPending = "PENDING"
	TopUpSuccess = "SUCCESS"
	TopUpFailed  = "FAILED"
)

// Wallet holds a user's fiat balance.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Entry is an immutable wallet history row.
type Entry struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"` // transaction ID, top-up ID, etc.
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TopUp is a deposit request awaiting admin arbitration.
type TopUp struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Store persists wallets, entries and top-ups.
type Store interface {
	// GetOrCreate returns the user's wallet, creating a zero-balance one
	// atomically if absent.
	GetOrCreate(ctx context.Context, userID string) (*Wallet, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, entryType, reference, description string) error
	// Debit fails with ErrInsufficientBalance without changing anything
	// when the balance cannot cover the amount.
	Debit(ctx context.Context, userID string, amount decimal.Decimal, entryType, reference, description string) error
	// Transfer debits from and credits to in one atomic step.
	Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, reference, description string) error
	History(ctx context.Context, userID string, limit int) ([]*Entry, error)

	CreateTopUp(ctx context.Context, t *TopUp) error
	GetTopUp(ctx context.Context, id string) (*TopUp, error)
	// ApproveTopUp flips a pending top-up to SUCCESS and credits the
	// wallet in one atomic step. ErrInvalidState if not pending.
	ApproveTopUp(ctx context.Context, id, note string) (*TopUp, error)
	RejectTopUp(ctx context.Context, id, note string) (*TopUp, error)
	ListTopUps(ctx context.Context, status string) ([]*TopUp, error)
}

// Notifier receives admin-facing wallet events. Calls must not block.
type Notifier interface {
	TopUpApproved(userID, topUpID string, amount decimal.Decimal)
	TopUpRejected(userID, topUpID string, amount decimal.Decimal, reason string)
}

// Service manages fiat wallets.
type Service struct {
	store    Store
	notifier Notifier // nil = no notifications
	logger   *slog.Logger
}

// NewService creates a wallet service.
func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logger}
}

// GetBalance returns the user's balance, creating the wallet if needed.
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Credit adds funds to a user's wallet.
func (s *Service) Credit(ctx context.Context, userID string, amount decimal.Decimal, description string) error {
	if err := money.RequirePositive(amount); err != nil {
		return err
	}
	if err := s.store.Credit(ctx, userID, amount, EntryCredit, "", description); err != nil {
		return err
	}
	metrics.WalletOperationsTotal.WithLabelValues("credit").Inc()
	return nil
}

// Debit removes funds from a user's wallet.
func (s *Service) Debit(ctx context.Context, userID string, amount decimal.Decimal, description string) error {
	if err := money.RequirePositive(amount); err != nil {
		return err
	}
	if err := s.store.Debit(ctx, userID, amount, EntryDebit, "", description); err != nil {
		return err
	}
	metrics.WalletOperationsTotal.WithLabelValues("debit").Inc()
	return nil
}

// Transfer moves funds between two users atomically. Either both the
// debit and the credit happen or neither does.
func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, description string) error {
	if err := money.RequirePositive(amount); err != nil {
		return err
	}
	if fromID == toID {
		return money.ErrInvalidAmount
	}
	ref := idgen.WithPrefix("tr_")
	if err := s.store.Transfer(ctx, fromID, toID, amount, ref, description); err != nil {
		return err
	}
	metrics.WalletOperationsTotal.WithLabelValues("transfer").Inc()
	return nil
}

// History returns the most recent wallet entries for a user.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.History(ctx, userID, limit)
}

// SubmitTopUp records a pending deposit request.
func (s *Service) SubmitTopUp(ctx context.Context, userID string, amount decimal.Decimal, description string) (*TopUp, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &TopUp{
		ID:          idgen.WithPrefix("tu_"),
		UserID:      userID,
		Amount:      amount,
		Description: description,
		Status:      TopUpPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTopUp(ctx, t); err != nil {
		return nil, err
	}
	metrics.TopUpsTotal.WithLabelValues("submitted").Inc()
	return t, nil
}

// ApproveTopUp credits the wallet and marks the top-up SUCCESS in one
// atomic step. Only pending top-ups can be approved.
func (s *Service) ApproveTopUp(ctx context.Context, id string) (*TopUp, error) {
	t, err := s.store.ApproveTopUp(ctx, id, " - approved by admin")
	if err != nil {
		return nil, err
	}
	metrics.TopUpsTotal.WithLabelValues("approved").Inc()
	metrics.WalletOperationsTotal.WithLabelValues("topup").Inc()

	if s.notifier != nil {
		s.notifier.TopUpApproved(t.UserID, t.ID, t.Amount)
	}
	s.logger.Info("top-up approved", "topUpId", t.ID, "user", t.UserID, "amount", t.Amount)
	return t, nil
}

// RejectTopUp marks a pending top-up FAILED. The balance is untouched.
func (s *Service) RejectTopUp(ctx context.Context, id, reason string) (*TopUp, error) {
	note := " - rejected by admin"
	if reason != "" {
		note = fmt.Sprintf(" - rejected by admin: %s", reason)
	}
	t, err := s.store.RejectTopUp(ctx, id, note)
	if err != nil {
		return nil, err
	}
	metrics.TopUpsTotal.WithLabelValues("rejected").Inc()

	if s.notifier != nil {
		s.notifier.TopUpRejected(t.UserID, t.ID, t.Amount, reason)
	}
	s.logger.Info("top-up rejected", "topUpId", t.ID, "user", t.UserID, "reason", reason)
	return t, nil
}

// GetTopUp returns a single top-up.
func (s *Service) GetTopUp(ctx context.Context, id string) (*TopUp, error) {
	return s.store.GetTopUp(ctx, id)
}

// ListTopUps returns top-ups, optionally filtered by status.
func (s *Service) ListTopUps(ctx context.Context, status string) ([]*TopUp, error) {
	return s.store.ListTopUps(ctx, status)
}

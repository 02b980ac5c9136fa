// Package trading runs the transaction state machine for carbon credit
// purchases.
//
// Flow:
//  1. Buyer creates a transaction against an open listing (amount locked)
//  2. Confirm settles atomically: buyer debit, seller credit, certificate
//     issuance, listing decrement, status flip
//  3. Cancel abandons a pending transaction; nothing ever moved
package trading

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
	"github.com/tpnguyen128/carbonmarket/internal/listing"
	"github.com/tpnguyen128/carbonmarket/internal/metrics"
	"github.com/tpnguyen128/carbonmarket/internal/money"
	"github.com/tpnguyen128/carbonmarket/internal/wallet"
)

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrInvalidState = errors.New("invalid transaction status for this operation")
	ErrSelfTrade    = errors.New("buyer and seller cannot be the same user")
	ErrUserNotFound = errors.New("user not found")
)

// Status represents the state of a transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Transaction is a carbon credit purchase. Amount is the total price,
// locked at creation from the listing's unit price.
type Transaction struct {
	ID             string          `json:"id"`
	BuyerID        string          `json:"buyerId"`
	SellerID       string          `json:"sellerId"`
	ListingID      string          `json:"listingId"`
	Amount         decimal.Decimal `json:"amount"`
	CarbonQuantity decimal.Decimal `json:"carbonQuantity"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Store persists transactions.
type Store interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]*Transaction, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*Transaction, error)
	// MarkCancelled flips PENDING to CANCELLED. ErrInvalidState if the
	// transaction is already terminal.
	MarkCancelled(ctx context.Context, id string) (*Transaction, error)
}

// ListingDirectory resolves listings for trade validation.
type ListingDirectory interface {
	Get(ctx context.Context, id string) (*listing.Listing, error)
}

// UserDirectory verifies that the buyer exists. Implementations return
// ErrUserNotFound-compatible errors from their own package; the engine
// only needs the existence signal.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// BalanceReader reads fiat balances for the advisory check at creation.
// Nothing is reserved; settlement re-checks inside the commit.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Settler performs the settlement commit for a pending transaction. All
// five effects succeed or fail together: listing decrement, buyer debit,
// seller credit, certificate issuance, and the status flip to COMPLETED.
// On failure the transaction stays PENDING and nothing has moved.
type Settler interface {
	Settle(ctx context.Context, txn *Transaction) error
}

// Notifier receives admin-facing trade events. Calls must not block.
type Notifier interface {
	TradeCompleted(buyerID, sellerID, transactionID string, amount decimal.Decimal)
}

// Engine implements the transaction state machine.
type Engine struct {
	store    Store
	listings ListingDirectory
	users    UserDirectory
	funds    BalanceReader
	settler  Settler
	notifier Notifier // nil = no notifications
	logger   *slog.Logger
	locks    sync.Map // per-transaction ID locks serializing confirm/cancel
}

// NewEngine creates a trading engine.
func NewEngine(store Store, listings ListingDirectory, users UserDirectory, funds BalanceReader, settler Settler, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		listings: listings,
		users:    users,
		funds:    funds,
		settler:  settler,
		logger:   logger,
	}
}

// WithNotifier adds an admin notification sink.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// txnLock returns a mutex for the given transaction ID.
// This prevents concurrent state transitions (e.g. confirm + cancel racing).
func (e *Engine) txnLock(id string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create validates a purchase against the current book and persists it
// PENDING. The balance check is advisory: funds move only at settlement.
func (e *Engine) Create(ctx context.Context, listingID, buyerID string, quantity decimal.Decimal) (*Transaction, error) {
	l, err := e.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Status != listing.StatusOpen {
		return nil, listing.ErrUnavailable
	}

	if err := money.RequirePositive(quantity); err != nil {
		return nil, err
	}
	if quantity.GreaterThan(l.CarbonAmount) {
		return nil, listing.ErrQuantityExceedsAvailable
	}

	amount := l.Price.Mul(quantity)

	exists, err := e.users.Exists(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	if buyerID == l.SellerID {
		return nil, ErrSelfTrade
	}

	balance, err := e.funds.GetBalance(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, wallet.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	txn := &Transaction{
		ID:             idgen.WithPrefix("txn_"),
		BuyerID:        buyerID,
		SellerID:       l.SellerID,
		ListingID:      listingID,
		Amount:         amount,
		CarbonQuantity: quantity,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, txn); err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues("created").Inc()
	return txn, nil
}

// Confirm settles a pending transaction. Failures leave it PENDING and
// retriable; a terminal transaction yields ErrInvalidState.
func (e *Engine) Confirm(ctx context.Context, id string) (*Transaction, error) {
	mu := e.txnLock(id)
	mu.Lock()
	defer mu.Unlock()

	txn, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.IsTerminal() {
		return nil, ErrInvalidState
	}

	if err := e.settler.Settle(ctx, txn); err != nil {
		metrics.SettlementFailuresTotal.WithLabelValues(settlementFailureReason(err)).Inc()
		e.logger.Warn("settlement failed", "transaction", id, "error", err)
		return nil, err
	}

	txn.Status = StatusCompleted
	txn.UpdatedAt = time.Now().UTC()
	metrics.TradesTotal.WithLabelValues("completed").Inc()

	if e.notifier != nil {
		e.notifier.TradeCompleted(txn.BuyerID, txn.SellerID, txn.ID, txn.Amount)
	}
	e.logger.Info("transaction settled",
		"transaction", txn.ID, "buyer", txn.BuyerID, "seller", txn.SellerID, "amount", txn.Amount)
	return txn, nil
}

// Cancel abandons a pending transaction. Funds never moved, so there is
// nothing to reverse.
func (e *Engine) Cancel(ctx context.Context, id string) (*Transaction, error) {
	mu := e.txnLock(id)
	mu.Lock()
	defer mu.Unlock()

	txn, err := e.store.MarkCancelled(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues("cancelled").Inc()
	e.logger.Info("transaction cancelled", "transaction", id)
	return txn, nil
}

// Get returns a transaction by ID.
func (e *Engine) Get(ctx context.Context, id string) (*Transaction, error) {
	return e.store.Get(ctx, id)
}

// ListByUser returns transactions where the user is buyer or seller,
// newest first.
func (e *Engine) ListByUser(ctx context.Context, userID string) ([]*Transaction, error) {
	return e.store.ListByUser(ctx, userID)
}

// ListByBuyer returns a user's purchases, newest first.
func (e *Engine) ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error) {
	return e.store.ListByBuyer(ctx, buyerID)
}

// ListBySeller returns a user's sales, newest first.
func (e *Engine) ListBySeller(ctx context.Context, sellerID string) ([]*Transaction, error) {
	return e.store.ListBySeller(ctx, sellerID)
}

func settlementFailureReason(err error) string {
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, listing.ErrQuantityExceedsAvailable):
		return "quantity_exceeds_available"
	case errors.Is(err, listing.ErrUnavailable):
		return "listing_unavailable"
	default:
		return "storage"
	}
}

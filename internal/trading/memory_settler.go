package trading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/listing"
	"github.com/tpnguyen128/carbonmarket/internal/wallet"
)

// CertificateIssuer issues ownership certificates after settlement.
type CertificateIssuer interface {
	IssueForTrade(ctx context.Context, ownerID string, tons decimal.Decimal, projectName, reference string) error
}

// MemorySettler settles transactions against the in-memory stores. A single
// settlement mutex serializes all commits, so the fallible steps (inventory
// check, buyer debit) run first and everything after the debit cannot fail
// partially.
type MemorySettler struct {
	wallets  *wallet.MemoryStore
	listings *listing.MemoryStore
	certs    CertificateIssuer
	txns     *MemoryStore
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewMemorySettler creates a settler over the in-memory stores.
func NewMemorySettler(wallets *wallet.MemoryStore, listings *listing.MemoryStore, certs CertificateIssuer, txns *MemoryStore, logger *slog.Logger) *MemorySettler {
	return &MemorySettler{
		wallets:  wallets,
		listings: listings,
		certs:    certs,
		txns:     txns,
		logger:   logger,
	}
}

// Settle commits a pending transaction. Ordering matters: the inventory
// re-check and the buyer debit are the only steps that can fail, and both
// run before any effect another user could observe.
func (s *MemorySettler) Settle(ctx context.Context, txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.listings.Get(ctx, txn.ListingID)
	if err != nil {
		return err
	}
	if l.Status != listing.StatusOpen {
		return listing.ErrUnavailable
	}
	if txn.CarbonQuantity.GreaterThan(l.CarbonAmount) {
		return listing.ErrQuantityExceedsAvailable
	}

	debitDesc := fmt.Sprintf("carbon credit purchase: %s", l.Title)
	if err := s.wallets.Debit(ctx, txn.BuyerID, txn.Amount, wallet.EntryDebit, txn.ID, debitDesc); err != nil {
		return err
	}

	// Point of no return: the remaining steps cannot fail in memory. If
	// one somehow does, the buyer debit is compensated before returning.
	if err := s.finish(ctx, txn, l); err != nil {
		if refundErr := s.wallets.Credit(ctx, txn.BuyerID, txn.Amount, wallet.EntryCredit, txn.ID, "settlement reversal"); refundErr != nil {
			s.logger.Error("settlement compensation failed, buyer debit stranded",
				"transaction", txn.ID, "buyer", txn.BuyerID, "error", refundErr)
		}
		return err
	}
	return nil
}

func (s *MemorySettler) finish(ctx context.Context, txn *Transaction, l *listing.Listing) error {
	if _, err := s.listings.Decrement(ctx, txn.ListingID, txn.CarbonQuantity); err != nil {
		return err
	}
	creditDesc := fmt.Sprintf("carbon credit sale: %s", l.Title)
	if err := s.wallets.Credit(ctx, txn.SellerID, txn.Amount, wallet.EntryCredit, txn.ID, creditDesc); err != nil {
		return err
	}
	if err := s.certs.IssueForTrade(ctx, txn.BuyerID, txn.CarbonQuantity, l.Title, txn.ID); err != nil {
		return err
	}
	s.txns.markCompleted(txn.ID)
	return nil
}

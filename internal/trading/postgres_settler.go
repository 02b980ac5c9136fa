package trading

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/certificate"
	"github.com/tpnguyen128/carbonmarket/internal/idgen"
	"github.com/tpnguyen128/carbonmarket/internal/listing"
	"github.com/tpnguyen128/carbonmarket/internal/wallet"
)

// PostgresSettler settles transactions in a single serializable database
// transaction spanning listings, wallets, certificates and transactions.
// Either every effect commits or none does.
type PostgresSettler struct {
	db       *sql.DB
	validity time.Duration // certificate lifetime
}

// NewPostgresSettler creates a settler over the shared database.
func NewPostgresSettler(db *sql.DB, validity time.Duration) *PostgresSettler {
	return &PostgresSettler{db: db, validity: validity}
}

// Settle commits a pending transaction atomically.
func (s *PostgresSettler) Settle(ctx context.Context, txn *Transaction) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Re-check inventory and decrement in one guarded UPDATE. The RETURNING
	// clause yields the listing title for the settlement descriptions.
	var title string
	err = tx.QueryRowContext(ctx, `
		UPDATE listings SET
			carbon_amount = carbon_amount - $2::NUMERIC(20,6),
			status        = CASE WHEN carbon_amount - $2::NUMERIC(20,6) <= 0 THEN $3 ELSE status END,
			updated_at    = NOW()
		WHERE id = $1 AND status = $4 AND carbon_amount >= $2::NUMERIC(20,6)
		RETURNING title
	`, txn.ListingID, txn.CarbonQuantity, listing.StatusSold, listing.StatusOpen).Scan(&title)
	if err == sql.ErrNoRows {
		return s.classifyListingMiss(ctx, tx, txn.ListingID)
	}
	if err != nil {
		return fmt.Errorf("failed to reserve listing inventory: %w", err)
	}

	// Debit buyer. The balance predicate rejects overdraft atomically.
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance    = balance - $2::NUMERIC(20,6),
			updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2::NUMERIC(20,6)
	`, txn.BuyerID, txn.Amount)
	if err != nil {
		return fmt.Errorf("failed to debit buyer: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return wallet.ErrInsufficientBalance
	}

	// Credit seller, creating the wallet if absent.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(20,6), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = wallets.balance + $3::NUMERIC(20,6),
			updated_at = NOW()
	`, idgen.WithPrefix("wal_"), txn.SellerID, txn.Amount)
	if err != nil {
		return fmt.Errorf("failed to credit seller: %w", err)
	}

	// Record entries for both parties.
	if err := s.recordEntry(ctx, tx, txn.BuyerID, txn.Amount, wallet.EntryDebit, txn.ID,
		fmt.Sprintf("carbon credit purchase: %s", title)); err != nil {
		return err
	}
	if err := s.recordEntry(ctx, tx, txn.SellerID, txn.Amount, wallet.EntryCredit, txn.ID,
		fmt.Sprintf("carbon credit sale: %s", title)); err != nil {
		return err
	}

	// Issue the ownership certificate.
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO certificates (id, owner_id, amount, project_name, certification_ref, certification_body,
			serial_number, notes, issued_date, expiry_date, status, certificate_type)
		VALUES ($1, $2, $3::NUMERIC(20,6), $4, $5, '', $6, $7, $8, $9, $10, $11)
	`, idgen.WithPrefix("crt_"), txn.BuyerID, txn.CarbonQuantity, title, txn.ID,
		idgen.WithPrefix("CC-"), "Purchased via marketplace", now, now.Add(s.validity),
		certificate.StatusValid, certificate.TypeIssued)
	if err != nil {
		return fmt.Errorf("failed to issue certificate: %w", err)
	}

	// Flip the transaction to COMPLETED. The status predicate guards
	// against a cancel that slipped in between the engine's read and here.
	result, err = tx.ExecContext(ctx, `
		UPDATE transactions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, txn.ID, StatusCompleted, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidState
	}

	return tx.Commit()
}

func (s *PostgresSettler) recordEntry(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal, entryType, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5, $6, NOW())
	`, idgen.WithPrefix("le_"), userID, entryType, amount, reference, description)
	if err != nil {
		return fmt.Errorf("failed to record settlement entry: %w", err)
	}
	return nil
}

func (s *PostgresSettler) classifyListingMiss(ctx context.Context, tx *sql.Tx, listingID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = $1`, listingID).Scan(&status)
	if err == sql.ErrNoRows {
		return listing.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != listing.StatusOpen {
		return listing.ErrUnavailable
	}
	return listing.ErrQuantityExceedsAvailable
}

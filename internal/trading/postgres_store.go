package trading

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id              VARCHAR(36) PRIMARY KEY,
			buyer_id        VARCHAR(64) NOT NULL,
			seller_id       VARCHAR(64) NOT NULL,
			listing_id      VARCHAR(36) NOT NULL,
			amount          NUMERIC(20,6) NOT NULL,
			carbon_quantity NUMERIC(20,6) NOT NULL,
			status          VARCHAR(10) NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	`)
	return err
}

const txnColumns = `id, buyer_id, seller_id, listing_id, amount, carbon_quantity, status, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, txn *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txnColumns+`)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,6), $6::NUMERIC(20,6), $7, $8, $9)
	`, txn.ID, txn.BuyerID, txn.SellerID, txn.ListingID, txn.Amount, txn.CarbonQuantity, txn.Status, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	txn := &Transaction{}
	err := p.db.QueryRowContext(ctx, `
		SELECT `+txnColumns+` FROM transactions WHERE id = $1
	`, id).Scan(&txn.ID, &txn.BuyerID, &txn.SellerID, &txn.ListingID, &txn.Amount, &txn.CarbonQuantity, &txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Transaction, error) {
	return p.query(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (p *PostgresStore) ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error) {
	return p.query(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE buyer_id = $1
		ORDER BY created_at DESC
	`, buyerID)
}

func (p *PostgresStore) ListBySeller(ctx context.Context, sellerID string) ([]*Transaction, error) {
	return p.query(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
}

// MarkCancelled flips PENDING to CANCELLED with a guarded UPDATE so a
// racing settlement cannot be overwritten.
func (p *PostgresStore) MarkCancelled(ctx context.Context, id string) (*Transaction, error) {
	txn := &Transaction{}
	err := p.db.QueryRowContext(ctx, `
		UPDATE transactions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING `+txnColumns+`
	`, id, StatusCancelled, StatusPending).Scan(
		&txn.ID, &txn.BuyerID, &txn.SellerID, &txn.ListingID, &txn.Amount, &txn.CarbonQuantity, &txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err == sql.ErrNoRows {
		// Missing or already terminal
		var status string
		probeErr := p.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&status)
		if probeErr == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if probeErr != nil {
			return nil, probeErr
		}
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel transaction: %w", err)
	}
	return txn, nil
}

func (p *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn := &Transaction{}
		if err := rows.Scan(&txn.ID, &txn.BuyerID, &txn.SellerID, &txn.ListingID, &txn.Amount, &txn.CarbonQuantity, &txn.Status, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

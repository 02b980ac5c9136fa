package listing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed listing store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the listings table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id            VARCHAR(36) PRIMARY KEY,
			seller_id     VARCHAR(64) NOT NULL,
			title         VARCHAR(255) NOT NULL,
			carbon_amount NUMERIC(20,6) NOT NULL,
			price         NUMERIC(20,6) NOT NULL,
			status        VARCHAR(10) NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_listing_amount_nonneg CHECK (carbon_amount >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);
		CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, l *Listing) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO listings (id, seller_id, title, carbon_amount, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5::NUMERIC(20,6), $6, $7, $8)
	`, l.ID, l.SellerID, l.Title, l.CarbonAmount, l.Price, l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Listing, error) {
	return scanListing(p.db.QueryRowContext(ctx, `
		SELECT id, seller_id, title, carbon_amount, price, status, created_at, updated_at
		FROM listings WHERE id = $1
	`, id))
}

func (p *PostgresStore) ListOpen(ctx context.Context) ([]*Listing, error) {
	return p.query(ctx, `
		SELECT id, seller_id, title, carbon_amount, price, status, created_at, updated_at
		FROM listings WHERE status = $1
		ORDER BY created_at DESC
	`, StatusOpen)
}

func (p *PostgresStore) ListBySeller(ctx context.Context, sellerID string) ([]*Listing, error) {
	return p.query(ctx, `
		SELECT id, seller_id, title, carbon_amount, price, status, created_at, updated_at
		FROM listings WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
}

// Decrement re-checks availability and subtracts qty in one guarded UPDATE.
// The predicate makes concurrent decrements race-safe without SELECT FOR
// UPDATE.
func (p *PostgresStore) Decrement(ctx context.Context, id string, qty decimal.Decimal) (*Listing, error) {
	l, err := scanListing(p.db.QueryRowContext(ctx, `
		UPDATE listings SET
			carbon_amount = carbon_amount - $2::NUMERIC(20,6),
			status        = CASE WHEN carbon_amount - $2::NUMERIC(20,6) <= 0 THEN $3 ELSE status END,
			updated_at    = NOW()
		WHERE id = $1 AND status = $4 AND carbon_amount >= $2::NUMERIC(20,6)
		RETURNING id, seller_id, title, carbon_amount, price, status, created_at, updated_at
	`, id, qty, StatusSold, StatusOpen))
	if err == ErrNotFound {
		// Guarded UPDATE matched nothing: work out which guard failed
		return nil, p.classifyDecrementMiss(ctx, id, qty)
	}
	return l, err
}

func (p *PostgresStore) classifyDecrementMiss(ctx context.Context, id string, qty decimal.Decimal) error {
	var status string
	var remaining decimal.Decimal
	err := p.db.QueryRowContext(ctx, `
		SELECT status, carbon_amount FROM listings WHERE id = $1
	`, id).Scan(&status, &remaining)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusOpen {
		return ErrUnavailable
	}
	return ErrQuantityExceedsAvailable
}

func (p *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Listing, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*Listing
	for rows.Next() {
		l := &Listing{}
		if err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &l.CarbonAmount, &l.Price, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*Listing, error) {
	l := &Listing{}
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.CarbonAmount, &l.Price, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

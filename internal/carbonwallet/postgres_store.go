package carbonwallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed carbon wallet store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the carbon_wallets table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS carbon_wallets (
			id         VARCHAR(36) PRIMARY KEY,
			user_id    VARCHAR(64) NOT NULL UNIQUE,
			balance    NUMERIC(20,6) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_carbon_balance_nonneg CHECK (balance >= 0)
		);
	`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, userID string) (*Wallet, error) {
	w := &Wallet{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM carbon_wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (p *PostgresStore) Credit(ctx context.Context, userID string, tons decimal.Decimal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO carbon_wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(20,6), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = carbon_wallets.balance + $3::NUMERIC(20,6),
			updated_at = NOW()
	`, idgen.WithPrefix("cw_"), userID, tons)
	if err != nil {
		return fmt.Errorf("failed to credit carbon wallet: %w", err)
	}
	return nil
}

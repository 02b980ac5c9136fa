package wallet

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

// NewPostgresStore creates a new PostgreSQL-backed wallet store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables with NUMERIC columns
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			id         VARCHAR(36) PRIMARY KEY,
			user_id    VARCHAR(64) NOT NULL UNIQUE,
			balance    NUMERIC(20,6) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_wallet_balance_nonneg CHECK (balance >= 0)
		);

		CREATE TABLE IF NOT EXISTS wallet_entries (
			id          VARCHAR(36) PRIMARY KEY,
			user_id     VARCHAR(64) NOT NULL,
			type        VARCHAR(20) NOT NULL,
			amount      NUMERIC(20,6) NOT NULL,
			reference   VARCHAR(255),
			description TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS top_ups (
			id          VARCHAR(36) PRIMARY KEY,
			user_id     VARCHAR(64) NOT NULL,
			amount      NUMERIC(20,6) NOT NULL,
			description TEXT,
			status      VARCHAR(10) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_wallet_entries_user ON wallet_entries(user_id);
		CREATE INDEX IF NOT EXISTS idx_wallet_entries_created ON wallet_entries(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_top_ups_status ON top_ups(status);
	`)
	return err
}

// GetOrCreate upserts a zero-balance wallet then reads it back.
func (p *PostgresStore) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, idgen.WithPrefix("wal_"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	w := &Wallet{}
	err = p.db.QueryRowContext(ctx, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds funds to a user's wallet, creating it if absent.
func (p *PostgresStore) Credit(ctx context.Context, userID string, amount decimal.Decimal, entryType, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := creditTx(ctx, tx, userID, amount); err != nil {
		return err
	}
	if err := recordEntryTx(ctx, tx, userID, amount, entryType, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

// Debit removes funds with a guarded UPDATE. The balance predicate makes
// the check and the decrement one atomic statement.
func (p *PostgresStore) Debit(ctx context.Context, userID string, amount decimal.Decimal, entryType, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := debitTx(ctx, tx, userID, amount); err != nil {
		return err
	}
	if err := recordEntryTx(ctx, tx, userID, amount, entryType, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

// Transfer debits fromID and credits toID in one transaction. Conservation
// holds or the whole transaction rolls back.
func (p *PostgresStore) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := debitTx(ctx, tx, fromID, amount); err != nil {
		return err
	}
	if err := creditTx(ctx, tx, toID, amount); err != nil {
		return err
	}
	if err := recordEntryTx(ctx, tx, fromID, amount, EntryTransferOut, reference, description); err != nil {
		return err
	}
	if err := recordEntryTx(ctx, tx, toID, amount, EntryTransferIn, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

// History retrieves wallet entries for a user, newest first.
func (p *PostgresStore) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, reference, description, created_at
		FROM wallet_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference, description sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &reference, &description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) CreateTopUp(ctx context.Context, t *TopUp) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO top_ups (id, user_id, amount, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, t.Amount, t.Description, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert top-up: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetTopUp(ctx context.Context, id string) (*TopUp, error) {
	t := &TopUp{}
	var description sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, description, status, created_at, updated_at
		FROM top_ups WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Amount, &description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTopUpNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	return t, nil
}

// ApproveTopUp flips a pending top-up to SUCCESS and credits the wallet in
// one transaction. The status predicate on the UPDATE makes concurrent
// approvals race-safe: only one wins, the rest see ErrInvalidState.
func (p *PostgresStore) ApproveTopUp(ctx context.Context, id, note string) (*TopUp, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t := &TopUp{}
	var description sql.NullString
	err = tx.QueryRowContext(ctx, `
		UPDATE top_ups SET
			status      = $2,
			description = COALESCE(description, '') || $3,
			updated_at  = NOW()
		WHERE id = $1 AND status = $4
		RETURNING id, user_id, amount, description, status, created_at, updated_at
	`, id, TopUpSuccess, note, TopUpPending).Scan(
		&t.ID, &t.UserID, &t.Amount, &description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, p.classifyTopUpMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to approve top-up: %w", err)
	}
	t.Description = description.String

	if err := creditTx(ctx, tx, t.UserID, t.Amount); err != nil {
		return nil, err
	}
	if err := recordEntryTx(ctx, tx, t.UserID, t.Amount, EntryTopUp, t.ID, t.Description); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// RejectTopUp flips a pending top-up to FAILED. No balance change.
func (p *PostgresStore) RejectTopUp(ctx context.Context, id, note string) (*TopUp, error) {
	t := &TopUp{}
	var description sql.NullString
	err := p.db.QueryRowContext(ctx, `
		UPDATE top_ups SET
			status      = $2,
			description = COALESCE(description, '') || $3,
			updated_at  = NOW()
		WHERE id = $1 AND status = $4
		RETURNING id, user_id, amount, description, status, created_at, updated_at
	`, id, TopUpFailed, note, TopUpPending).Scan(
		&t.ID, &t.UserID, &t.Amount, &description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, p.classifyTopUpMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reject top-up: %w", err)
	}
	t.Description = description.String
	return t, nil
}

func (p *PostgresStore) ListTopUps(ctx context.Context, status string) ([]*TopUp, error) {
	query := `
		SELECT id, user_id, amount, description, status, created_at, updated_at
		FROM top_ups
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topUps []*TopUp
	for rows.Next() {
		t := &TopUp{}
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &description, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Description = description.String
		topUps = append(topUps, t)
	}
	return topUps, rows.Err()
}

// classifyTopUpMiss distinguishes a missing top-up from one in a terminal
// state after a guarded UPDATE matched no rows.
func (p *PostgresStore) classifyTopUpMiss(ctx context.Context, id string) error {
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM top_ups WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrTopUpNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidState
}

// creditTx upserts a balance increment inside an open transaction.
func creditTx(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3::NUMERIC(20,6), NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = wallets.balance + $3::NUMERIC(20,6),
			updated_at = NOW()
	`, idgen.WithPrefix("wal_"), userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	return nil
}

// debitTx decrements a balance inside an open transaction. The balance
// predicate rejects overdrafts without relying on a separate read.
func debitTx(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance    = balance - $2::NUMERIC(20,6),
			updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2::NUMERIC(20,6)
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func recordEntryTx(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal, entryType, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5, $6, NOW())
	`, idgen.WithPrefix("le_"), userID, entryType, amount, reference, description)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

package user

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed user store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id         UUID PRIMARY KEY,
			full_name  VARCHAR(255) NOT NULL,
			email      VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.FullName, u.Email, u.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.FullName, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.FullName, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

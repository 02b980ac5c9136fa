package notification

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed notification store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the notifications table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id           UUID PRIMARY KEY,
			kind         VARCHAR(40) NOT NULL,
			title        VARCHAR(255) NOT NULL,
			message      TEXT,
			user_id      VARCHAR(64),
			reference_id VARCHAR(64),
			amount       NUMERIC(20,6) NOT NULL DEFAULT 0,
			read         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
		CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, n *Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, title, message, user_id, reference_id, amount, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC(20,6), $8, $9)
	`, n.ID, n.Kind, n.Title, n.Message, n.UserID, n.ReferenceID, n.Amount, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Notification, error) {
	return p.query(ctx, `
		SELECT id, kind, title, message, user_id, reference_id, amount, read, created_at
		FROM notifications ORDER BY created_at DESC
	`)
}

func (p *PostgresStore) ListUnread(ctx context.Context) ([]*Notification, error) {
	return p.query(ctx, `
		SELECT id, kind, title, message, user_id, reference_id, amount, read, created_at
		FROM notifications WHERE read = FALSE ORDER BY created_at DESC
	`)
}

func (p *PostgresStore) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE read = FALSE
	`).Scan(&count)
	return count, err
}

func (p *PostgresStore) MarkRead(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) MarkAllRead(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE read = FALSE`)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Notification, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		var message, userID, referenceID sql.NullString
		if err := rows.Scan(&n.ID, &n.Kind, &n.Title, &message, &userID, &referenceID, &n.Amount, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Message = message.String
		n.UserID = userID.String
		n.ReferenceID = referenceID.String
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

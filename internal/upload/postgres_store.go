package upload

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed upload record store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the upload_records table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS upload_records (
			id               VARCHAR(36) PRIMARY KEY,
			owner_id         VARCHAR(64) NOT NULL,
			filename         VARCHAR(255) NOT NULL,
			extracted_text   TEXT,
			estimated_co2_kg NUMERIC(20,6) NOT NULL DEFAULT 0,
			credits_tons     NUMERIC(20,6) NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_upload_records_owner ON upload_records(owner_id);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, r *UploadRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO upload_records (id, owner_id, filename, extracted_text, estimated_co2_kg, credits_tons, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,6), $6::NUMERIC(20,6), $7)
	`, r.ID, r.OwnerID, r.Filename, r.ExtractedText, r.EstimatedCo2Kg, r.CreditsTons, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert upload record: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*UploadRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, filename, extracted_text, estimated_co2_kg, credits_tons, created_at
		FROM upload_records
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*UploadRecord
	for rows.Next() {
		r := &UploadRecord{}
		var extractedText sql.NullString
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Filename, &extractedText, &r.EstimatedCo2Kg, &r.CreditsTons, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ExtractedText = extractedText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

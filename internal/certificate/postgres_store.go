package certificate

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed certificate store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the certificates table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS certificates (
			id                 VARCHAR(36) PRIMARY KEY,
			owner_id           VARCHAR(64) NOT NULL,
			amount             NUMERIC(20,6) NOT NULL,
			project_name       VARCHAR(255),
			certification_ref  VARCHAR(255),
			certification_body VARCHAR(255),
			serial_number      VARCHAR(64) NOT NULL,
			notes              TEXT,
			issued_date        TIMESTAMPTZ NOT NULL,
			expiry_date        TIMESTAMPTZ NOT NULL,
			status             VARCHAR(20) NOT NULL,
			certificate_type   VARCHAR(20) NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_certificates_owner ON certificates(owner_id);
		CREATE INDEX IF NOT EXISTS idx_certificates_status ON certificates(status);
	`)
	return err
}

const certColumns = `id, owner_id, amount, project_name, certification_ref, certification_body,
	serial_number, notes, issued_date, expiry_date, status, certificate_type`

func (p *PostgresStore) Create(ctx context.Context, cert *Certificate) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO certificates (`+certColumns+`)
		VALUES ($1, $2, $3::NUMERIC(20,6), $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, cert.ID, cert.OwnerID, cert.Amount, cert.ProjectName, cert.CertificationRef, cert.CertificationBody,
		cert.SerialNumber, cert.Notes, cert.IssuedDate, cert.ExpiryDate, cert.Status, cert.CertificateType)
	if err != nil {
		return fmt.Errorf("failed to insert certificate: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Certificate, error) {
	cert, err := scanCert(p.db.QueryRowContext(ctx, `
		SELECT `+certColumns+` FROM certificates WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return cert, err
}

func (p *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*Certificate, error) {
	return p.query(ctx, `
		SELECT `+certColumns+` FROM certificates
		WHERE owner_id = $1
		ORDER BY issued_date DESC
	`, ownerID)
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*Certificate, error) {
	return p.query(ctx, `
		SELECT `+certColumns+` FROM certificates
		WHERE status = $1
		ORDER BY issued_date DESC
	`, StatusPending)
}

func (p *PostgresStore) Approve(ctx context.Context, id string) (*Certificate, error) {
	cert, err := scanCert(p.db.QueryRowContext(ctx, `
		UPDATE certificates SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING `+certColumns+`
	`, id, StatusValid, StatusPending))
	if err == sql.ErrNoRows {
		return nil, p.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to approve certificate: %w", err)
	}
	return cert, nil
}

func (p *PostgresStore) DeletePending(ctx context.Context, id string) (*Certificate, error) {
	cert, err := scanCert(p.db.QueryRowContext(ctx, `
		DELETE FROM certificates
		WHERE id = $1 AND status = $2
		RETURNING `+certColumns+`
	`, id, StatusPending))
	if err == sql.ErrNoRows {
		return nil, p.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete certificate: %w", err)
	}
	return cert, nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, id, status string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE certificates SET status = $2 WHERE id = $1
	`, id, status)
	return err
}

func (p *PostgresStore) classifyMiss(ctx context.Context, id string) error {
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM certificates WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidState
}

func (p *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Certificate, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []*Certificate
	for rows.Next() {
		cert := &Certificate{}
		var projectName, certRef, certBody, notes sql.NullString
		if err := rows.Scan(&cert.ID, &cert.OwnerID, &cert.Amount, &projectName, &certRef, &certBody,
			&cert.SerialNumber, &notes, &cert.IssuedDate, &cert.ExpiryDate, &cert.Status, &cert.CertificateType); err != nil {
			return nil, err
		}
		cert.ProjectName = projectName.String
		cert.CertificationRef = certRef.String
		cert.CertificationBody = certBody.String
		cert.Notes = notes.String
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCert(row rowScanner) (*Certificate, error) {
	cert := &Certificate{}
	var projectName, certRef, certBody, notes sql.NullString
	err := row.Scan(&cert.ID, &cert.OwnerID, &cert.Amount, &projectName, &certRef, &certBody,
		&cert.SerialNumber, &notes, &cert.IssuedDate, &cert.ExpiryDate, &cert.Status, &cert.CertificateType)
	if err != nil {
		return nil, err
	}
	cert.ProjectName = projectName.String
	cert.CertificationRef = certRef.String
	cert.CertificationBody = certBody.String
	cert.Notes = notes.String
	return cert, nil
}

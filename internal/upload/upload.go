// Package upload records document-based emission estimates and converts
// them into carbon credits. Text extraction and CO2 estimation happen
// upstream; this service receives the computed figures, keeps an audit
// record, and credits the owner.
package upload

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
	"github.com/tpnguyen128/carbonmarket/internal/money"
)

var ErrInvalidUpload = errors.New("invalid upload data")

// UploadRecord is the audit trail of a credited document.
type UploadRecord struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"ownerId"`
	Filename       string          `json:"filename"`
	ExtractedText  string          `json:"extractedText,omitempty"`
	EstimatedCo2Kg decimal.Decimal `json:"estimatedCo2Kg"`
	CreditsTons    decimal.Decimal `json:"creditsTons"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Store persists upload records.
type Store interface {
	Create(ctx context.Context, r *UploadRecord) error
	ListByOwner(ctx context.Context, ownerID string) ([]*UploadRecord, error)
}

// CarbonCreditor credits tons to a user's carbon wallet.
type CarbonCreditor interface {
	Credit(ctx context.Context, ownerID string, tons decimal.Decimal) error
}

// CertificateIssuer issues a certificate for credited tons.
type CertificateIssuer interface {
	IssueForUpload(ctx context.Context, ownerID string, tons decimal.Decimal, filename string) error
}

// Notifier receives admin-facing upload events. Calls must not block.
type Notifier interface {
	UploadCredited(ownerID, recordID string, tons decimal.Decimal)
}

// Service converts upload estimates into credits.
type Service struct {
	store    Store
	carbon   CarbonCreditor
	certs    CertificateIssuer
	notifier Notifier // nil = no notifications
	logger   *slog.Logger
}

// NewService creates an upload service.
func NewService(store Store, carbon CarbonCreditor, certs CertificateIssuer, logger *slog.Logger) *Service {
	return &Service{store: store, carbon: carbon, certs: certs, logger: logger}
}

// WithNotifier adds an admin notification sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Record persists the upload and credits the owner. The audit record is
// best-effort: a failed write is logged and the crediting proceeds. The
// carbon credit and certificate issuance are the primary effects and do
// propagate errors.
func (s *Service) Record(ctx context.Context, ownerID, filename, extractedText string, co2Kg, creditsTons decimal.Decimal) (*UploadRecord, error) {
	if ownerID == "" || filename == "" {
		return nil, ErrInvalidUpload
	}
	if err := money.RequirePositive(creditsTons); err != nil {
		return nil, err
	}

	r := &UploadRecord{
		ID:             idgen.WithPrefix("upl_"),
		OwnerID:        ownerID,
		Filename:       filename,
		ExtractedText:  extractedText,
		EstimatedCo2Kg: co2Kg,
		CreditsTons:    creditsTons,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		s.logger.Error("upload record dropped", "owner", ownerID, "filename", filename, "error", err)
	}

	if err := s.carbon.Credit(ctx, ownerID, creditsTons); err != nil {
		return nil, err
	}
	if err := s.certs.IssueForUpload(ctx, ownerID, creditsTons, filename); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.UploadCredited(ownerID, r.ID, creditsTons)
	}
	s.logger.Info("upload credited", "owner", ownerID, "record", r.ID, "tons", creditsTons)
	return r, nil
}

// ListByOwner returns a user's upload records, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*UploadRecord, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

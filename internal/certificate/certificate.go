// Package certificate manages carbon ownership certificates.
//
// Certificates enter VALID when issued by settlement or upload crediting,
// or PENDING when requested by a user and awaiting admin review. Expiry is
// recomputed lazily on read so a stale stored status never leaks out.
package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
	"github.com/tpnguyen128/carbonmarket/internal/metrics"
	"github.com/tpnguyen128/carbonmarket/internal/money"
)

var (
	ErrNotFound     = errors.New("certificate not found")
	ErrInvalidState = errors.New("certificate is not pending")
)

// Certificate statuses.
const (
	StatusPending      = "PENDING"
	StatusValid        = "VALID"
	StatusExpiringSoon = "EXPIRING_SOON"
	StatusExpired      = "EXPIRED"
)

// Certificate types.
const (
	TypeIssued    = "ISSUED"    // granted by settlement or upload crediting
	TypeRequested = "REQUESTED" // user-requested, admin-reviewed
)

// Certificate records ownership of a quantity of carbon credits.
type Certificate struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"ownerId"`
	Amount            decimal.Decimal `json:"amount"` // tons
	ProjectName       string          `json:"projectName,omitempty"`
	CertificationRef  string          `json:"certificationRef,omitempty"`
	CertificationBody string          `json:"certificationBody,omitempty"`
	SerialNumber      string          `json:"serialNumber"`
	Notes             string          `json:"notes,omitempty"`
	IssuedDate        time.Time       `json:"issuedDate"`
	ExpiryDate        time.Time       `json:"expiryDate"`
	Status            string          `json:"status"`
	CertificateType   string          `json:"certificateType"`
}

// Meta carries the descriptive fields attached at issuance.
type Meta struct {
	ProjectName       string `json:"projectName"`
	CertificationRef  string `json:"certificationRef"`
	CertificationBody string `json:"certificationBody"`
	SerialNumber      string `json:"serialNumber"`
	Notes             string `json:"notes"`
}

// Store persists certificates.
type Store interface {
	Create(ctx context.Context, cert *Certificate) error
	Get(ctx context.Context, id string) (*Certificate, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Certificate, error)
	ListPending(ctx context.Context) ([]*Certificate, error)
	// Approve flips PENDING to VALID. ErrInvalidState otherwise.
	Approve(ctx context.Context, id string) (*Certificate, error)
	// DeletePending removes a PENDING certificate. ErrInvalidState if the
	// certificate exists but is not pending.
	DeletePending(ctx context.Context, id string) (*Certificate, error)
	// SetStatus persists a recomputed expiry status. Best-effort: callers
	// ignore the error.
	SetStatus(ctx context.Context, id, status string) error
}

// Notifier receives admin-facing certificate events. Calls must not block.
type Notifier interface {
	CertificateRequested(ownerID, certificateID string, amount decimal.Decimal)
	CertificateApproved(ownerID, certificateID string, amount decimal.Decimal)
	CertificateRejected(ownerID, certificateID string, amount decimal.Decimal)
}

// Service implements the certificate lifecycle.
type Service struct {
	store       Store
	validity    time.Duration
	warningDays int
	notifier    Notifier // nil = no notifications
}

// NewService creates a certificate service. validity is the lifetime of a
// newly issued certificate; warningDays is the EXPIRING_SOON threshold.
func NewService(store Store, validity time.Duration, warningDays int) *Service {
	return &Service{store: store, validity: validity, warningDays: warningDays}
}

// WithNotifier adds an admin notification sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Issue creates a VALID certificate of type ISSUED.
func (s *Service) Issue(ctx context.Context, ownerID string, tons decimal.Decimal, meta Meta) (*Certificate, error) {
	cert, err := s.create(ctx, ownerID, tons, meta, StatusValid, TypeIssued)
	if err != nil {
		return nil, err
	}
	metrics.CertificatesTotal.WithLabelValues("issued").Inc()
	return cert, nil
}

// Request creates a PENDING certificate of type REQUESTED awaiting admin
// review.
func (s *Service) Request(ctx context.Context, ownerID string, tons decimal.Decimal, meta Meta) (*Certificate, error) {
	cert, err := s.create(ctx, ownerID, tons, meta, StatusPending, TypeRequested)
	if err != nil {
		return nil, err
	}
	metrics.CertificatesTotal.WithLabelValues("requested").Inc()

	if s.notifier != nil {
		s.notifier.CertificateRequested(cert.OwnerID, cert.ID, cert.Amount)
	}
	return cert, nil
}

func (s *Service) create(ctx context.Context, ownerID string, tons decimal.Decimal, meta Meta, status, certType string) (*Certificate, error) {
	if ownerID == "" {
		return nil, ErrNotFound
	}
	if err := money.RequirePositive(tons); err != nil {
		return nil, err
	}

	serial := meta.SerialNumber
	if serial == "" {
		serial = idgen.WithPrefix("CC-")
	}

	now := time.Now().UTC()
	cert := &Certificate{
		ID:                idgen.WithPrefix("crt_"),
		OwnerID:           ownerID,
		Amount:            tons,
		ProjectName:       meta.ProjectName,
		CertificationRef:  meta.CertificationRef,
		CertificationBody: meta.CertificationBody,
		SerialNumber:      serial,
		Notes:             meta.Notes,
		IssuedDate:        now,
		ExpiryDate:        now.Add(s.validity),
		Status:            status,
		CertificateType:   certType,
	}
	if err := s.store.Create(ctx, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// Get returns a certificate with its expiry status refreshed.
func (s *Service) Get(ctx context.Context, id string) (*Certificate, error) {
	cert, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshExpiry(ctx, cert)
	return cert, nil
}

// GetByOwner returns a user's certificates with expiry statuses refreshed.
// Recomputed statuses are persisted best-effort; the returned values are
// correct regardless.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) ([]*Certificate, error) {
	certs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, cert := range certs {
		s.refreshExpiry(ctx, cert)
	}
	return certs, nil
}

// ListPending returns certificates awaiting admin review.
func (s *Service) ListPending(ctx context.Context) ([]*Certificate, error) {
	return s.store.ListPending(ctx)
}

// Approve flips a pending certificate to VALID.
func (s *Service) Approve(ctx context.Context, id string) (*Certificate, error) {
	cert, err := s.store.Approve(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.CertificatesTotal.WithLabelValues("approved").Inc()

	if s.notifier != nil {
		s.notifier.CertificateApproved(cert.OwnerID, cert.ID, cert.Amount)
	}
	return cert, nil
}

// Reject deletes a pending certificate.
func (s *Service) Reject(ctx context.Context, id string) error {
	cert, err := s.store.DeletePending(ctx, id)
	if err != nil {
		return err
	}
	metrics.CertificatesTotal.WithLabelValues("rejected").Inc()

	if s.notifier != nil {
		s.notifier.CertificateRejected(cert.OwnerID, cert.ID, cert.Amount)
	}
	return nil
}

// refreshExpiry recomputes the expiry status of an active certificate and
// persists a change best-effort. Pending and expired certificates are left
// alone.
func (s *Service) refreshExpiry(ctx context.Context, cert *Certificate) {
	if cert.Status != StatusValid && cert.Status != StatusExpiringSoon {
		return
	}

	remaining := time.Until(cert.ExpiryDate)
	next := cert.Status
	switch {
	case remaining <= 0:
		next = StatusExpired
	case remaining <= time.Duration(s.warningDays)*24*time.Hour:
		next = StatusExpiringSoon
	}
	if next == cert.Status {
		return
	}

	cert.Status = next
	_ = s.store.SetStatus(ctx, cert.ID, next)
	if next == StatusExpired {
		metrics.CertificatesTotal.WithLabelValues("expired").Inc()
	}
}

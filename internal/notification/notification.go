// Package notification collects admin-facing events from the other
// services. Delivery is fire-and-forget: a failed write is logged and
// swallowed so it can never fail the operation that produced it.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("notification not found")

// Notification kinds.
const (
	KindTopUpApproved        = "topup_approved"
	KindTopUpRejected        = "topup_rejected"
	KindTradeCompleted       = "trade_completed"
	KindCertificateRequested = "certificate_requested"
	KindCertificateApproved  = "certificate_approved"
	KindCertificateRejected  = "certificate_rejected"
	KindUploadCredited       = "upload_credited"
)

// Notification is an admin inbox entry.
type Notification struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	UserID      string          `json:"userId,omitempty"`
	ReferenceID string          `json:"referenceId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Read        bool            `json:"read"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context) ([]*Notification, error)
	ListUnread(ctx context.Context) ([]*Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// Service is the admin notification sink.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a notification service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Notify records an event. It never returns an error: notification
// persistence must not affect the operation that emitted it.
func (s *Service) Notify(ctx context.Context, n Notification) {
	n.ID = uuid.NewString()
	n.Read = false
	n.CreatedAt = time.Now().UTC()

	if err := s.store.Create(ctx, &n); err != nil {
		s.logger.Error("notification dropped", "kind", n.Kind, "reference", n.ReferenceID, "error", err)
	}
}

// List returns all notifications, newest first.
func (s *Service) List(ctx context.Context) ([]*Notification, error) {
	return s.store.List(ctx)
}

// ListUnread returns unread notifications, newest first.
func (s *Service) ListUnread(ctx context.Context) ([]*Notification, error) {
	return s.store.ListUnread(ctx)
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	return s.store.UnreadCount(ctx)
}

// MarkRead marks a single notification read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}

// MarkAllRead marks every notification read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	return s.store.MarkAllRead(ctx)
}

// Delete removes a notification.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

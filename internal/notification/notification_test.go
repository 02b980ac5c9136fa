package notification

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
)

type failingStore struct {
	MemoryStore
}

func (f *failingStore) Create(ctx context.Context, n *Notification) error {
	return errors.New("disk full")
}

func TestNotifyAndInbox(t *testing.T) {
	store := NewMemoryStore()
	s := NewService(store, slog.Default())
	ctx := context.Background()

	s.Notify(ctx, Notification{
		Kind:        KindTradeCompleted,
		Title:       "Trade completed",
		Message:     "4 tons settled",
		UserID:      "buyer-1",
		ReferenceID: "txn_abc",
		Amount:      decimal.NewFromInt(20),
	})
	s.Notify(ctx, Notification{
		Kind:  KindTopUpApproved,
		Title: "Top-up approved",
	})

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(all))
	}
	if all[0].ID == "" || all[0].CreatedAt.IsZero() {
		t.Error("expected generated ID and timestamp")
	}

	count, err := s.UnreadCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 unread, got %d", count)
	}
}

func TestNotifySwallowsStoreFailure(t *testing.T) {
	s := NewService(&failingStore{}, slog.Default())

	// Must not panic or surface the error
	s.Notify(context.Background(), Notification{Kind: KindUploadCredited, Title: "Upload credited"})
}

func TestMarkReadAndDelete(t *testing.T) {
	store := NewMemoryStore()
	s := NewService(store, slog.Default())
	ctx := context.Background()

	s.Notify(ctx, Notification{Kind: KindCertificateRequested, Title: "Certificate requested"})
	s.Notify(ctx, Notification{Kind: KindCertificateApproved, Title: "Certificate approved"})

	all, _ := s.List(ctx)
	if err := s.MarkRead(ctx, all[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	unread, _ := s.ListUnread(ctx)
	if len(unread) != 1 {
		t.Errorf("expected 1 unread, got %d", len(unread))
	}

	if err := s.MarkAllRead(ctx); err != nil {
		t.Fatal(err)
	}
	count, _ := s.UnreadCount(ctx)
	if count != 0 {
		t.Errorf("expected 0 unread after MarkAllRead, got %d", count)
	}

	if err := s.Delete(ctx, all[1].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	remaining, _ := s.List(ctx)
	if len(remaining) != 1 {
		t.Errorf("expected 1 remaining, got %d", len(remaining))
	}

	if err := s.MarkRead(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

package carbonwallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

func TestGetBalanceAbsentWallet(t *testing.T) {
	s := NewService(NewMemoryStore())

	if _, err := s.GetBalance(context.Background(), "user-1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for absent wallet, got %v", err)
	}
}

func TestCreditCreatesWallet(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := s.Credit(ctx, "user-1", decimal.NewFromFloat(2.5)); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := s.Credit(ctx, "user-1", decimal.NewFromFloat(1.5)); err != nil {
		t.Fatalf("second Credit failed: %v", err)
	}

	bal, err := s.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected balance 4, got %s", bal)
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := s.Credit(ctx, "user-1", decimal.Zero); err != money.ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := s.Credit(ctx, "user-1", decimal.NewFromInt(-1)); err != money.ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for negative, got %v", err)
	}

	// No wallet should be created by rejected credits
	if _, err := s.GetBalance(ctx, "user-1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

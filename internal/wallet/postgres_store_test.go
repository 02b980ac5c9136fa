//go:build integration

package wallet

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		db.ExecContext(ctx, "DELETE FROM wallet_entries")
		db.ExecContext(ctx, "DELETE FROM top_ups")
		db.ExecContext(ctx, "DELETE FROM wallets")
		db.Close()
	}

	return store, cleanup
}

func pgDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestPostgres_CreditAndGetOrCreate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	err := store.Credit(ctx, "pg-user-1", pgDec(t, "10.50"), EntryCredit, "", "test credit")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	w, err := store.GetOrCreate(ctx, "pg-user-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !w.Balance.Equal(pgDec(t, "10.50")) {
		t.Errorf("Expected balance 10.50, got %s", w.Balance)
	}
}

func TestPostgres_DebitGuard(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store.Credit(ctx, "pg-user-2", pgDec(t, "100"), EntryCredit, "", "deposit")

	if err := store.Debit(ctx, "pg-user-2", pgDec(t, "30"), EntryDebit, "ref1", "payment"); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	err := store.Debit(ctx, "pg-user-2", pgDec(t, "80"), EntryDebit, "ref2", "too much")
	if err != ErrInsufficientBalance {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	w, _ := store.GetOrCreate(ctx, "pg-user-2")
	if !w.Balance.Equal(pgDec(t, "70")) {
		t.Errorf("Expected balance 70, got %s", w.Balance)
	}
}

func TestPostgres_TransferAtomic(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store.Credit(ctx, "pg-alice", pgDec(t, "100"), EntryCredit, "", "")

	if err := store.Transfer(ctx, "pg-alice", "pg-bob", pgDec(t, "40"), "tr_test", "payment"); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	alice, _ := store.GetOrCreate(ctx, "pg-alice")
	bob, _ := store.GetOrCreate(ctx, "pg-bob")
	if !alice.Balance.Equal(pgDec(t, "60")) || !bob.Balance.Equal(pgDec(t, "40")) {
		t.Errorf("Expected 60/40, got %s/%s", alice.Balance, bob.Balance)
	}

	// Failing transfer must leave both untouched
	if err := store.Transfer(ctx, "pg-alice", "pg-bob", pgDec(t, "1000"), "tr_fail", ""); err != ErrInsufficientBalance {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	alice, _ = store.GetOrCreate(ctx, "pg-alice")
	bob, _ = store.GetOrCreate(ctx, "pg-bob")
	if !alice.Balance.Equal(pgDec(t, "60")) || !bob.Balance.Equal(pgDec(t, "40")) {
		t.Errorf("Failed transfer changed balances: %s/%s", alice.Balance, bob.Balance)
	}
}

func TestPostgres_ConcurrentDebits(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store.Credit(ctx, "pg-user-3", pgDec(t, "50"), EntryCredit, "", "")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Debit(ctx, "pg-user-3", pgDec(t, "10"), EntryDebit, "", "")
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 5 {
		t.Errorf("Expected exactly 5 successful debits, got %d", succeeded)
	}

	w, _ := store.GetOrCreate(ctx, "pg-user-3")
	if !w.Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", w.Balance)
	}
}

func TestPostgres_TopUpApproveOnce(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tu := &TopUp{
		ID:     "tu_pgtest",
		UserID: "pg-user-4",
		Amount: pgDec(t, "200"),
		Status: TopUpPending,
	}
	if err := store.CreateTopUp(ctx, tu); err != nil {
		t.Fatalf("CreateTopUp failed: %v", err)
	}

	approved, err := store.ApproveTopUp(ctx, tu.ID, " - approved by admin")
	if err != nil {
		t.Fatalf("ApproveTopUp failed: %v", err)
	}
	if approved.Status != TopUpSuccess {
		t.Errorf("Expected SUCCESS, got %s", approved.Status)
	}

	if _, err := store.ApproveTopUp(ctx, tu.ID, ""); err != ErrInvalidState {
		t.Errorf("Expected ErrInvalidState on second approve, got %v", err)
	}

	w, _ := store.GetOrCreate(ctx, "pg-user-4")
	if !w.Balance.Equal(pgDec(t, "200")) {
		t.Errorf("Expected balance 200, got %s", w.Balance)
	}
}

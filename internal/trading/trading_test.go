package trading

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/listing"
	"github.com/tpnguyen128/carbonmarket/internal/money"
	"github.com/tpnguyen128/carbonmarket/internal/wallet"
)

type stubUsers struct {
	known map[string]bool
}

func (s *stubUsers) Exists(ctx context.Context, id string) (bool, error) {
	return s.known[id], nil
}

type issuedCert struct {
	ownerID     string
	tons        decimal.Decimal
	projectName string
	reference   string
}

type mockIssuer struct {
	mu     sync.Mutex
	issued []issuedCert
}

func (m *mockIssuer) IssueForTrade(ctx context.Context, ownerID string, tons decimal.Decimal, projectName, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, issuedCert{ownerID, tons, projectName, reference})
	return nil
}

type tradeNotice struct {
	buyerID, sellerID, txnID string
}

type mockTradeNotifier struct {
	mu      sync.Mutex
	notices []tradeNotice
}

func (m *mockTradeNotifier) TradeCompleted(buyerID, sellerID, transactionID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, tradeNotice{buyerID, sellerID, transactionID})
}

type fixture struct {
	engine   *Engine
	wallets  *wallet.MemoryStore
	walletSv *wallet.Service
	listings *listing.MemoryStore
	txns     *MemoryStore
	users    *stubUsers
	issuer   *mockIssuer
	notifier *mockTradeNotifier
}

func newFixture() *fixture {
	logger := slog.Default()
	wallets := wallet.NewMemoryStore()
	walletSv := wallet.NewService(wallets, nil, logger)
	listings := listing.NewMemoryStore()
	txns := NewMemoryStore()
	users := &stubUsers{known: map[string]bool{"buyer": true, "seller": true}}
	issuer := &mockIssuer{}
	notifier := &mockTradeNotifier{}

	settler := NewMemorySettler(wallets, listings, issuer, txns, logger)
	engine := NewEngine(txns, listings, users, walletSv, settler, logger).WithNotifier(notifier)

	return &fixture{
		engine:   engine,
		wallets:  wallets,
		walletSv: walletSv,
		listings: listings,
		txns:     txns,
		users:    users,
		issuer:   issuer,
		notifier: notifier,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (f *fixture) seedListing(t *testing.T, tons, price string) *listing.Listing {
	t.Helper()
	l, err := listing.NewService(f.listings).Create(context.Background(), "seller", "Forest credits", dec(tons), dec(price))
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return l
}

func (f *fixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	if err := f.walletSv.Credit(context.Background(), userID, dec(amount), "seed"); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

func TestCreateLocksAmountFromListingPrice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "20")

	txn, err := f.engine.Create(ctx, l.ID, "buyer", dec("4"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !txn.Amount.Equal(dec("20")) {
		t.Errorf("expected amount 20, got %s", txn.Amount)
	}
	if txn.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", txn.Status)
	}
	if txn.SellerID != "seller" {
		t.Errorf("expected seller from listing, got %s", txn.SellerID)
	}

	// Creation reserves nothing
	bal, _ := f.walletSv.GetBalance(ctx, "buyer")
	if !bal.Equal(dec("20")) {
		t.Errorf("creation must not move funds, got %s", bal)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "1000")

	if _, err := f.engine.Create(ctx, "missing", "buyer", dec("1")); err != listing.ErrNotFound {
		t.Errorf("expected ErrNotFound for missing listing, got %v", err)
	}
	if _, err := f.engine.Create(ctx, l.ID, "buyer", dec("0")); err != money.ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for zero quantity, got %v", err)
	}
	if _, err := f.engine.Create(ctx, l.ID, "buyer", dec("12")); err != listing.ErrQuantityExceedsAvailable {
		t.Errorf("expected ErrQuantityExceedsAvailable for 12 > 10, got %v", err)
	}
	if _, err := f.engine.Create(ctx, l.ID, "stranger", dec("1")); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := f.engine.Create(ctx, l.ID, "seller", dec("1")); err != ErrSelfTrade {
		t.Errorf("expected ErrSelfTrade, got %v", err)
	}
}

func TestCreateInsufficientBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "19")

	if _, err := f.engine.Create(ctx, l.ID, "buyer", dec("4")); err != wallet.ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance for 19 < 20, got %v", err)
	}
}

func TestConfirmSettlesAtomically(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "20")

	txn, err := f.engine.Create(ctx, l.ID, "buyer", dec("4"))
	if err != nil {
		t.Fatal(err)
	}

	settled, err := f.engine.Confirm(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if settled.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", settled.Status)
	}

	buyerBal, _ := f.walletSv.GetBalance(ctx, "buyer")
	sellerBal, _ := f.walletSv.GetBalance(ctx, "seller")
	if !buyerBal.IsZero() {
		t.Errorf("expected buyer balance 0, got %s", buyerBal)
	}
	if !sellerBal.Equal(dec("20")) {
		t.Errorf("expected seller balance 20, got %s", sellerBal)
	}

	got, _ := f.listings.Get(ctx, l.ID)
	if !got.CarbonAmount.Equal(dec("6")) || got.Status != listing.StatusOpen {
		t.Errorf("expected listing 6 tons OPEN, got %s %s", got.CarbonAmount, got.Status)
	}

	if len(f.issuer.issued) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(f.issuer.issued))
	}
	cert := f.issuer.issued[0]
	if cert.ownerID != "buyer" || !cert.tons.Equal(dec("4")) || cert.reference != txn.ID {
		t.Errorf("unexpected certificate %+v", cert)
	}

	stored, _ := f.txns.Get(ctx, txn.ID)
	if stored.Status != StatusCompleted {
		t.Errorf("expected stored status COMPLETED, got %s", stored.Status)
	}

	if len(f.notifier.notices) != 1 || f.notifier.notices[0].txnID != txn.ID {
		t.Errorf("expected trade notification, got %v", f.notifier.notices)
	}
}

func TestConfirmFullQuantityMarksSold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "50")

	txn, err := f.engine.Create(ctx, l.ID, "buyer", dec("10"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Confirm(ctx, txn.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := f.listings.Get(ctx, l.ID)
	if !got.CarbonAmount.IsZero() || got.Status != listing.StatusSold {
		t.Errorf("expected listing 0 tons SOLD, got %s %s", got.CarbonAmount, got.Status)
	}
}

func TestDoubleConfirm(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "100")

	txn, _ := f.engine.Create(ctx, l.ID, "buyer", dec("4"))
	if _, err := f.engine.Confirm(ctx, txn.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.Confirm(ctx, txn.ID); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState on double confirm, got %v", err)
	}

	// No double transfer
	sellerBal, _ := f.walletSv.GetBalance(ctx, "seller")
	if !sellerBal.Equal(dec("20")) {
		t.Errorf("expected seller balance 20 after double confirm, got %s", sellerBal)
	}
}

func TestCancelThenConfirm(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "100")

	txn, _ := f.engine.Create(ctx, l.ID, "buyer", dec("4"))

	cancelled, err := f.engine.Cancel(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	if _, err := f.engine.Confirm(ctx, txn.ID); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState confirming a cancelled transaction, got %v", err)
	}
	if _, err := f.engine.Cancel(ctx, txn.ID); err != ErrInvalidState {
		t.Errorf("expected ErrInvalidState on double cancel, got %v", err)
	}

	// Nothing moved
	buyerBal, _ := f.walletSv.GetBalance(ctx, "buyer")
	if !buyerBal.Equal(dec("100")) {
		t.Errorf("cancel must not move funds, got %s", buyerBal)
	}
	got, _ := f.listings.Get(ctx, l.ID)
	if !got.CarbonAmount.Equal(dec("10")) {
		t.Errorf("cancel must not touch inventory, got %s", got.CarbonAmount)
	}
}

func TestConfirmInsufficientBalanceIsRetriable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "20")

	txn, err := f.engine.Create(ctx, l.ID, "buyer", dec("4"))
	if err != nil {
		t.Fatal(err)
	}

	// Balance drains between create and confirm
	if err := f.walletSv.Debit(ctx, "buyer", dec("15"), "unrelated spend"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.Confirm(ctx, txn.ID); err != wallet.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Still PENDING, nothing moved
	stored, _ := f.txns.Get(ctx, txn.ID)
	if stored.Status != StatusPending {
		t.Errorf("expected PENDING after failed settlement, got %s", stored.Status)
	}
	got, _ := f.listings.Get(ctx, l.ID)
	if !got.CarbonAmount.Equal(dec("10")) {
		t.Errorf("failed settlement must restore inventory, got %s", got.CarbonAmount)
	}
	sellerBal, _ := f.walletSv.GetBalance(ctx, "seller")
	if !sellerBal.IsZero() {
		t.Errorf("failed settlement must not credit seller, got %s", sellerBal)
	}

	// Top up and retry
	f.fund(t, "buyer", "15")
	if _, err := f.engine.Confirm(ctx, txn.ID); err != nil {
		t.Fatalf("retry after top-up failed: %v", err)
	}
}

func TestLateConfirmOversellRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "1000")
	f.users.known["buyer2"] = true
	f.fund(t, "buyer2", "1000")

	// Both pass the advisory check against the same 10 tons
	first, err := f.engine.Create(ctx, l.ID, "buyer", dec("6"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.Create(ctx, l.ID, "buyer2", dec("6"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.Confirm(ctx, first.ID); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}

	// Only 4 tons remain: the late confirm loses
	if _, err := f.engine.Confirm(ctx, second.ID); err != listing.ErrQuantityExceedsAvailable {
		t.Fatalf("expected ErrQuantityExceedsAvailable on late confirm, got %v", err)
	}

	stored, _ := f.txns.Get(ctx, second.ID)
	if stored.Status != StatusPending {
		t.Errorf("losing transaction must stay PENDING, got %s", stored.Status)
	}
	bal, _ := f.walletSv.GetBalance(ctx, "buyer2")
	if !bal.Equal(dec("1000")) {
		t.Errorf("losing buyer must keep funds, got %s", bal)
	}
}

func TestConcurrentConfirmsSettleOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "10", "5")
	f.fund(t, "buyer", "20")

	txn, _ := f.engine.Create(ctx, l.ID, "buyer", dec("4"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Confirm(ctx, txn.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if err != ErrInvalidState {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 successful confirm, got %d", succeeded)
	}

	sellerBal, _ := f.walletSv.GetBalance(ctx, "seller")
	if !sellerBal.Equal(dec("20")) {
		t.Errorf("expected seller balance 20, got %s", sellerBal)
	}
}

func TestQueries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l := f.seedListing(t, "100", "1")
	f.fund(t, "buyer", "100")

	a, _ := f.engine.Create(ctx, l.ID, "buyer", dec("1"))
	b, _ := f.engine.Create(ctx, l.ID, "buyer", dec("2"))
	if a == nil || b == nil {
		t.Fatal("seed transactions failed")
	}

	purchases, err := f.engine.ListByBuyer(ctx, "buyer")
	if err != nil {
		t.Fatal(err)
	}
	if len(purchases) != 2 {
		t.Errorf("expected 2 purchases, got %d", len(purchases))
	}

	sales, err := f.engine.ListBySeller(ctx, "seller")
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 2 {
		t.Errorf("expected 2 sales, got %d", len(sales))
	}

	all, err := f.engine.ListByUser(ctx, "seller")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 transactions for seller, got %d", len(all))
	}

	if _, err := f.engine.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

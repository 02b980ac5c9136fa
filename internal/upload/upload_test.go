package upload

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/money"
)

type mockCreditor struct {
	credited map[string]decimal.Decimal
	err      error
}

func (m *mockCreditor) Credit(_ context.Context, ownerID string, tons decimal.Decimal) error {
	if m.err != nil {
		return m.err
	}
	if m.credited == nil {
		m.credited = make(map[string]decimal.Decimal)
	}
	m.credited[ownerID] = m.credited[ownerID].Add(tons)
	return nil
}

type mockIssuer struct {
	issued []string
	tons   decimal.Decimal
	err    error
}

func (m *mockIssuer) IssueForUpload(_ context.Context, ownerID string, tons decimal.Decimal, filename string) error {
	if m.err != nil {
		return m.err
	}
	m.issued = append(m.issued, filename)
	m.tons = tons
	_ = ownerID
	return nil
}

type mockUploadNotifier struct {
	events []string
}

func (m *mockUploadNotifier) UploadCredited(ownerID, recordID string, tons decimal.Decimal) {
	m.events = append(m.events, ownerID+":"+tons.String())
	_ = recordID
}

type failingStore struct{}

func (failingStore) Create(context.Context, *UploadRecord) error { return errors.New("disk full") }
func (failingStore) ListByOwner(context.Context, string) ([]*UploadRecord, error) {
	return nil, errors.New("disk full")
}

func newTestService(store Store, carbon *mockCreditor, certs *mockIssuer) *Service {
	return NewService(store, carbon, certs, slog.Default())
}

func TestRecordCreditsAndIssues(t *testing.T) {
	store := NewMemoryStore()
	carbon := &mockCreditor{}
	certs := &mockIssuer{}
	notifier := &mockUploadNotifier{}
	svc := newTestService(store, carbon, certs).WithNotifier(notifier)

	tons := decimal.RequireFromString("2.5")
	record, err := svc.Record(context.Background(), "user-1", "invoice.pdf", "flight LHR-JFK", decimal.NewFromInt(2500), tons)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if record.ID == "" || record.OwnerID != "user-1" {
		t.Errorf("unexpected record %+v", record)
	}
	if !carbon.credited["user-1"].Equal(tons) {
		t.Errorf("credited %s, want %s", carbon.credited["user-1"], tons)
	}
	if len(certs.issued) != 1 || certs.issued[0] != "invoice.pdf" {
		t.Errorf("issued = %v, want [invoice.pdf]", certs.issued)
	}
	if !certs.tons.Equal(tons) {
		t.Errorf("certificate tons %s, want %s", certs.tons, tons)
	}
	if len(notifier.events) != 1 {
		t.Errorf("notifier events = %v, want one", notifier.events)
	}

	records, err := svc.ListByOwner(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID {
		t.Errorf("ListByOwner = %v, want the recorded upload", records)
	}
}

func TestRecordValidation(t *testing.T) {
	store := NewMemoryStore()
	carbon := &mockCreditor{}
	certs := &mockIssuer{}
	svc := newTestService(store, carbon, certs)

	one := decimal.NewFromInt(1)
	cases := []struct {
		name    string
		ownerID string
		file    string
		tons    decimal.Decimal
		wantErr error
	}{
		{"missing owner", "", "a.pdf", one, ErrInvalidUpload},
		{"missing filename", "user-1", "", one, ErrInvalidUpload},
		{"zero tons", "user-1", "a.pdf", decimal.Zero, money.ErrInvalidAmount},
		{"negative tons", "user-1", "a.pdf", decimal.NewFromInt(-3), money.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tc.ownerID, tc.file, "", decimal.Zero, tc.tons)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
	if len(carbon.credited) != 0 || len(certs.issued) != 0 {
		t.Error("rejected uploads must not credit or issue")
	}
}

func TestRecordStoreFailureIsSwallowed(t *testing.T) {
	carbon := &mockCreditor{}
	certs := &mockIssuer{}
	svc := newTestService(failingStore{}, carbon, certs)

	tons := decimal.NewFromInt(4)
	record, err := svc.Record(context.Background(), "user-1", "report.pdf", "", decimal.NewFromInt(4000), tons)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record despite the failed write")
	}
	if !carbon.credited["user-1"].Equal(tons) {
		t.Errorf("credited %s, want %s", carbon.credited["user-1"], tons)
	}
}

func TestRecordCreditFailurePropagates(t *testing.T) {
	store := NewMemoryStore()
	carbon := &mockCreditor{err: errors.New("wallet offline")}
	certs := &mockIssuer{}
	svc := newTestService(store, carbon, certs)

	_, err := svc.Record(context.Background(), "user-1", "report.pdf", "", decimal.Zero, decimal.NewFromInt(1))
	if err == nil {
		t.Fatal("expected crediting failure to propagate")
	}
	if len(certs.issued) != 0 {
		t.Error("certificate must not be issued when crediting fails")
	}
}

package user

import (
	"context"
	"testing"
)

func TestCreateAndFind(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	ctx := context.Background()

	u, err := d.Create(ctx, "Alice Tran", "Alice@Example.com")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if u.ID == "" {
		t.Error("expected generated ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %s", u.Email)
	}

	got, err := d.Find(ctx, u.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.FullName != "Alice Tran" {
		t.Errorf("expected full name Alice Tran, got %s", got.FullName)
	}

	byEmail, err := d.FindByEmail(ctx, "ALICE@example.com ")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("expected %s, got %s", u.ID, byEmail.ID)
	}
}

func TestCreateValidation(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	ctx := context.Background()

	cases := []struct {
		name     string
		fullName string
		email    string
	}{
		{"empty name", "", "a@b.com"},
		{"empty email", "Bob", ""},
		{"missing at sign", "Bob", "bob.example.com"},
		{"whitespace only", "   ", "a@b.com"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := d.Create(ctx, tc.fullName, tc.email); err != ErrInvalid {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestDuplicateEmail(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	ctx := context.Background()

	if _, err := d.Create(ctx, "Alice", "alice@example.com"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := d.Create(ctx, "Alice Again", "ALICE@example.com"); err != ErrEmailTaken {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestFindNotFound(t *testing.T) {
	d := NewDirectory(NewMemoryStore())

	if _, err := d.Find(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

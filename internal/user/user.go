// Package user provides the user directory consulted by the ledger services.
// It only resolves identities; authentication lives outside this service.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
	ErrInvalid    = errors.New("invalid user data")
)

// User is a marketplace participant.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// Directory wraps a Store with validation.
type Directory struct {
	store Store
}

// NewDirectory creates a user directory.
func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Create registers a new user.
func (d *Directory) Create(ctx context.Context, fullName, email string) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalid
	}

	u := &User{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Find resolves a user by ID.
func (d *Directory) Find(ctx context.Context, id string) (*User, error) {
	return d.store.Get(ctx, id)
}

// FindByEmail resolves a user by email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return d.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

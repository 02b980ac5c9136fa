// Package listing manages carbon credit sale listings and the price
// analytics derived from the open book.
package listing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tpnguyen128/carbonmarket/internal/idgen"
	"github.com/tpnguyen128/carbonmarket/internal/money"
)

var (
	ErrNotFound                 = errors.New("listing not found")
	ErrUnavailable              = errors.New("listing is not open")
	ErrQuantityExceedsAvailable = errors.New("quantity exceeds available amount")
	ErrInvalidListing           = errors.New("invalid listing data")
)

// Listing statuses.
const (
	StatusOpen = "OPEN"
	StatusSold = "SOLD"
)

// Listing is a seller's offer of carbon credits.
type Listing struct {
	ID           string          `json:"id"`
	SellerID     string          `json:"sellerId"`
	Title        string          `json:"title"`
	CarbonAmount decimal.Decimal `json:"carbonAmount"` // tons remaining
	Price        decimal.Decimal `json:"price"`        // unit price per ton
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Store persists listings.
type Store interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	ListOpen(ctx context.Context) ([]*Listing, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*Listing, error)
	// Decrement atomically re-checks that the listing is open and has at
	// least qty tons remaining, then subtracts qty. Remaining is clamped
	// at zero and the listing flips to SOLD when nothing is left.
	Decrement(ctx context.Context, id string, qty decimal.Decimal) (*Listing, error)
}

// defaultMarkupPercent is applied to the average open price when
// computing the suggested listing price.
const defaultMarkupPercent = 5

// PriceStats summarizes the open book.
type PriceStats struct {
	Average   decimal.Decimal `json:"average"`
	Min       decimal.Decimal `json:"min"`
	Max       decimal.Decimal `json:"max"`
	Suggested decimal.Decimal `json:"suggested"`
	Count     int             `json:"count"`
}

// Service manages listings.
type Service struct {
	store  Store
	markup decimal.Decimal
}

// NewService creates a listing service with the default price markup.
func NewService(store Store) *Service {
	return &Service{store: store, markup: markupFactor(defaultMarkupPercent)}
}

// WithMarkup overrides the suggested-price markup percentage.
func (s *Service) WithMarkup(percent int) *Service {
	if percent >= 0 {
		s.markup = markupFactor(percent)
	}
	return s
}

func markupFactor(percent int) decimal.Decimal {
	return decimal.NewFromInt(100 + int64(percent)).Div(decimal.NewFromInt(100))
}

// Create opens a new listing.
func (s *Service) Create(ctx context.Context, sellerID, title string, carbonAmount, price decimal.Decimal) (*Listing, error) {
	title = strings.TrimSpace(title)
	if sellerID == "" || title == "" {
		return nil, ErrInvalidListing
	}
	if err := money.RequirePositive(carbonAmount); err != nil {
		return nil, err
	}
	if err := money.RequirePositive(price); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	l := &Listing{
		ID:           idgen.WithPrefix("lst_"),
		SellerID:     sellerID,
		Title:        title,
		CarbonAmount: carbonAmount,
		Price:        price,
		Status:       StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns a single listing.
func (s *Service) Get(ctx context.Context, id string) (*Listing, error) {
	return s.store.Get(ctx, id)
}

// ListOpen returns all open listings.
func (s *Service) ListOpen(ctx context.Context) ([]*Listing, error) {
	return s.store.ListOpen(ctx)
}

// ListBySeller returns a seller's listings.
func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]*Listing, error) {
	return s.store.ListBySeller(ctx, sellerID)
}

// PriceStats computes average, min and max over the open book plus a
// suggested price: average with the configured markup, clamped to the
// observed [min, max] range. An empty book yields all zeros.
func (s *Service) PriceStats(ctx context.Context) (*PriceStats, error) {
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	stats := &PriceStats{Count: len(open)}
	if len(open) == 0 {
		return stats, nil
	}

	sum := decimal.Zero
	stats.Min = open[0].Price
	stats.Max = open[0].Price
	for _, l := range open {
		sum = sum.Add(l.Price)
		if l.Price.LessThan(stats.Min) {
			stats.Min = l.Price
		}
		if l.Price.GreaterThan(stats.Max) {
			stats.Max = l.Price
		}
	}
	stats.Average = sum.Div(decimal.NewFromInt(int64(len(open))))

	suggested := stats.Average.Mul(s.markup)
	switch {
	case suggested.GreaterThan(stats.Max):
		suggested = stats.Max
	case suggested.LessThan(stats.Min):
		suggested = stats.Average
	}
	stats.Suggested = suggested
	return stats, nil
}

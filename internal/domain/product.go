package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingIdentity is returned when a listing lacks its source or retailer-local id.
	ErrMissingIdentity = errors.New("product has no source identity")
	// ErrInvalidPrice is returned for negative prices.
	ErrInvalidPrice = errors.New("product price is negative")
)

// Product is the normalized representation of a retailer listing.
type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
	Brand         string
	ImageURL      string
	URL           string
	Category      string
	Color         string
	Size          string
	InStock       bool
	Rating        *float64
	ReviewsCount  *int
	Source        string
	SourceID      string
	Raw           json.RawMessage
}

// Key identifies a listing across sources for deduplication.
type Key struct {
	Source   string
	SourceID string
}

func (k Key) String() string {
	return k.Source + "_" + k.SourceID
}

// Key returns the (source, sourceId) pair of the product.
func (p Product) Key() Key {
	return Key{Source: p.Source, SourceID: p.SourceID}
}

// OnSale reports whether the product carries a pre-discount price.
func (p Product) OnSale() bool {
	return p.OriginalPrice != nil
}

// Discount returns the sale percentage rounded to one decimal, zero when not on sale.
func (p Product) Discount() decimal.Decimal {
	if p.OriginalPrice == nil || p.OriginalPrice.IsZero() {
		return decimal.Zero
	}
	saved := p.OriginalPrice.Sub(p.Price)
	return saved.Div(*p.OriginalPrice).Mul(decimal.NewFromInt(100)).Round(1)
}

// Normalize enforces the record invariants in place: the id is derived from
// source and sourceId, the price is non-negative and the original price is kept
// only when it is above the current price.
func (p *Product) Normalize() error {
	p.Source = strings.TrimSpace(p.Source)
	p.SourceID = strings.TrimSpace(p.SourceID)
	if p.Source == "" || p.SourceID == "" {
		return ErrMissingIdentity
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%s: %w", p.Key(), ErrInvalidPrice)
	}

	p.ID = p.Key().String()
	p.Name = strings.TrimSpace(p.Name)
	p.Brand = strings.TrimSpace(p.Brand)

	if p.OriginalPrice != nil && !p.OriginalPrice.GreaterThan(p.Price) {
		p.OriginalPrice = nil
	}
	if p.Rating != nil && *p.Rating < 0 {
		p.Rating = nil
	}
	if p.ReviewsCount != nil && *p.ReviewsCount < 0 {
		p.ReviewsCount = nil
	}
	return nil
}

// NewProduct builds a normalized product for the given source identity.
func NewProduct(source, sourceID, name string, price decimal.Decimal) (Product, error) {
	p := Product{
		Source:   source,
		SourceID: sourceID,
		Name:     name,
		Price:    price,
	}
	if err := p.Normalize(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// WithOriginalPrice marks the product as on sale from the given price.
// The value is dropped if it does not exceed the current price.
func (p Product) WithOriginalPrice(original decimal.Decimal) Product {
	if original.GreaterThan(p.Price) {
		p.OriginalPrice = &original
	} else {
		p.OriginalPrice = nil
	}
	return p
}

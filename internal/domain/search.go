package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRange bounds a price filter; a nil Max means unbounded.
type PriceRange struct {
	Min decimal.Decimal
	Max *decimal.Decimal
}

// Contains reports whether price lies within the range (inclusive).
func (r PriceRange) Contains(price decimal.Decimal) bool {
	if price.LessThan(r.Min) {
		return false
	}
	if r.Max != nil && price.GreaterThan(*r.Max) {
		return false
	}
	return true
}

// UpTo returns an upper bound for PriceRange.Max.
func UpTo(v decimal.Decimal) *decimal.Decimal {
	return &v
}

// Filters carries the structured search options assembled by the caller.
// Adapters treat every key as advisory.
type Filters struct {
	PriceRange  *PriceRange
	Colors      []string
	Category    string
	InStockOnly bool
}

// Accepts applies the filters the caller expects to be enforced on merged
// results: stock availability and price range.
func (f Filters) Accepts(p Product) bool {
	if f.InStockOnly && !p.InStock {
		return false
	}
	if f.PriceRange != nil && !f.PriceRange.Contains(p.Price) {
		return false
	}
	return true
}

// Normalized trims category and colors and drops empty color entries.
func (f Filters) Normalized() Filters {
	out := f
	out.Category = strings.TrimSpace(f.Category)
	out.Colors = nil
	for _, c := range f.Colors {
		if c = strings.TrimSpace(c); c != "" {
			out.Colors = append(out.Colors, c)
		}
	}
	return out
}

// SearchRecord is an audit entry describing one executed search page.
type SearchRecord struct {
	ID            string
	Generation    string
	Query         string
	Filters       Filters
	Page          int
	Results       int
	FailedSources []string
	StartedAt     time.Time
	Duration      time.Duration
}

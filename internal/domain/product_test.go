package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewProductDerivesID(t *testing.T) {
	t.Parallel()

	p, err := NewProduct(" a ", "1", "Vestido Floral Midi", decimal.RequireFromString("159.90"))
	if err != nil {
		t.Fatalf("NewProduct: %v", err)
	}
	if p.ID != "a_1" {
		t.Fatalf("unexpected id: %s", p.ID)
	}
	if p.Key() != (Key{Source: "a", SourceID: "1"}) {
		t.Fatalf("unexpected key: %+v", p.Key())
	}
}

func TestNormalizeRejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		product Product
		want    error
	}{
		{name: "missing source", product: Product{SourceID: "1"}, want: ErrMissingIdentity},
		{name: "missing source id", product: Product{Source: "a"}, want: ErrMissingIdentity},
		{name: "negative price", product: Product{Source: "a", SourceID: "1", Price: decimal.NewFromInt(-1)}, want: ErrInvalidPrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.product
			if err := p.Normalize(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOriginalPriceNeverBelowPrice(t *testing.T) {
	t.Parallel()

	price := decimal.RequireFromString("99.90")
	cases := []struct {
		original string
		keep     bool
	}{
		{original: "149.90", keep: true},
		{original: "99.90", keep: false},
		{original: "50.00", keep: false},
	}

	for _, tc := range cases {
		original := decimal.RequireFromString(tc.original)
		p := Product{Source: "ml", SourceID: "MLB1", Price: price, OriginalPrice: &original}
		if err := p.Normalize(); err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if p.OnSale() != tc.keep {
			t.Fatalf("original %s: expected on sale %v", tc.original, tc.keep)
		}
		if p.OriginalPrice != nil && p.OriginalPrice.LessThan(p.Price) {
			t.Fatalf("original price %s below price %s", p.OriginalPrice, p.Price)
		}

		viaBuilder := Product{Price: price}.WithOriginalPrice(original)
		if viaBuilder.OnSale() != tc.keep {
			t.Fatalf("WithOriginalPrice %s: expected on sale %v", tc.original, tc.keep)
		}
	}
}

func TestDiscount(t *testing.T) {
	t.Parallel()

	p := Product{Price: decimal.NewFromInt(75)}.WithOriginalPrice(decimal.NewFromInt(100))
	if !p.Discount().Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected discount: %s", p.Discount())
	}
	if !(Product{Price: decimal.NewFromInt(10)}).Discount().IsZero() {
		t.Fatalf("expected zero discount without original price")
	}
}

func TestFiltersAccepts(t *testing.T) {
	t.Parallel()

	f := Filters{
		InStockOnly: true,
		PriceRange:  &PriceRange{Min: decimal.NewFromInt(50), Max: UpTo(decimal.NewFromInt(200))},
	}

	cases := []struct {
		name    string
		product Product
		want    bool
	}{
		{name: "inside range", product: Product{Price: decimal.NewFromInt(100), InStock: true}, want: true},
		{name: "out of stock", product: Product{Price: decimal.NewFromInt(100)}, want: false},
		{name: "below min", product: Product{Price: decimal.NewFromInt(10), InStock: true}, want: false},
		{name: "above max", product: Product{Price: decimal.NewFromInt(300), InStock: true}, want: false},
		{name: "bound inclusive", product: Product{Price: decimal.NewFromInt(200), InStock: true}, want: true},
	}

	for _, tc := range cases {
		if got := f.Accepts(tc.product); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if !(Filters{}).Accepts(Product{}) {
		t.Fatalf("empty filters must accept out-of-stock products")
	}
}

func TestPriceRangeBounds(t *testing.T) {
	t.Parallel()

	free := PriceRange{Max: UpTo(decimal.Zero)}
	if !free.Contains(decimal.Zero) || free.Contains(decimal.RequireFromString("0.01")) {
		t.Fatalf("a zero max must only admit free items")
	}

	open := PriceRange{Min: decimal.NewFromInt(100)}
	if !open.Contains(decimal.NewFromInt(5000)) || open.Contains(decimal.NewFromInt(99)) {
		t.Fatalf("a nil max must leave the range unbounded above")
	}
}

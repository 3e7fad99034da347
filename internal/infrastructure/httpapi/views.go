package httpapi

import (
	"github.com/shopspring/decimal"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/source"
)

// ProductView is the JSON shape of a product.
type ProductView struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Discount      decimal.Decimal  `json:"discount"`
	Brand         string           `json:"brand,omitempty"`
	ImageURL      string           `json:"imageUrl,omitempty"`
	URL           string           `json:"url,omitempty"`
	Category      string           `json:"category,omitempty"`
	Color         string           `json:"color,omitempty"`
	Size          string           `json:"size,omitempty"`
	InStock       bool             `json:"inStock"`
	Rating        *float64         `json:"rating,omitempty"`
	ReviewsCount  *int             `json:"reviewsCount,omitempty"`
	Source        string           `json:"source"`
	SourceID      string           `json:"sourceId"`
}

// NewProductView maps a product; the raw upstream payload is not exposed.
func NewProductView(p domain.Product) ProductView {
	return ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Discount:      p.Discount(),
		Brand:         p.Brand,
		ImageURL:      p.ImageURL,
		URL:           p.URL,
		Category:      p.Category,
		Color:         p.Color,
		Size:          p.Size,
		InStock:       p.InStock,
		Rating:        p.Rating,
		ReviewsCount:  p.ReviewsCount,
		Source:        p.Source,
		SourceID:      p.SourceID,
	}
}

// NewProductViews maps a list, never returning nil.
func NewProductViews(products []domain.Product) []ProductView {
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, NewProductView(p))
	}
	return views
}

// SearchResponse is returned by GET /api/search.
type SearchResponse struct {
	Query    string        `json:"query"`
	Page     int           `json:"page"`
	HasMore  bool          `json:"hasMore"`
	Count    int           `json:"count"`
	Products []ProductView `json:"products"`
}

// SourceView describes a configured source.
type SourceView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	BaseURL  string `json:"baseUrl"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

func newSourceViews(configs []source.Config) []SourceView {
	views := make([]SourceView, 0, len(configs))
	for _, c := range configs {
		views = append(views, SourceView{
			ID:       c.ID,
			Name:     c.Name,
			Kind:     c.Kind,
			BaseURL:  c.BaseURL,
			Enabled:  c.Enabled,
			Priority: c.Priority,
		})
	}
	return views
}

// HistoryView is one recorded search page.
type HistoryView struct {
	ID            string   `json:"id"`
	Query         string   `json:"query"`
	Page          int      `json:"page"`
	Results       int      `json:"results"`
	FailedSources []string `json:"failedSources"`
	StartedAt     string   `json:"startedAt"`
	DurationMS    int64    `json:"durationMs"`
}

package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/infrastructure/transport"
	"PozzySearch/internal/source"
)

const (
	vtexSearchPath = "/api/catalog_system/pub/products/search"
	// VTEX rejects windows wider than 50 items.
	vtexMaxWindow = 50
)

// VTEX queries the public catalog API shared by VTEX-hosted storefronts.
type VTEX struct {
	id      string
	baseURL string
	brand   string
	fetcher *transport.Fetcher
	logger  *slog.Logger
}

var _ source.Adapter = (*VTEX)(nil)

// NewVTEX builds the adapter. The "brand" option fills products whose listing
// carries no brand (single-brand retailers).
func NewVTEX(cfg source.Config, fetcher *transport.Fetcher, logger *slog.Logger) (*VTEX, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("vtex source %s: base url is required", cfg.ID)
	}
	if fetcher == nil {
		fetcher = transport.NewFetcher(transport.Options{})
	}
	return &VTEX{
		id:      cfg.ID,
		baseURL: base,
		brand:   cfg.Option("brand", cfg.Name),
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

type vtexProduct struct {
	ProductID   string   `json:"productId"`
	ProductName string   `json:"productName"`
	Brand       string   `json:"brand"`
	Description string   `json:"description"`
	Link        string   `json:"link"`
	Categories  []string `json:"categories"`
	Color       []string `json:"Cor"`
	Items       []struct {
		ItemID string   `json:"itemId"`
		Size   []string `json:"Tamanho"`
		Images []struct {
			ImageURL string `json:"imageUrl"`
		} `json:"images"`
		Sellers []struct {
			CommertialOffer struct {
				Price             decimal.Decimal `json:"Price"`
				ListPrice         decimal.Decimal `json:"ListPrice"`
				AvailableQuantity int             `json:"AvailableQuantity"`
			} `json:"commertialOffer"`
		} `json:"sellers"`
	} `json:"items"`
}

// Search implements source.Adapter.
func (v *VTEX) Search(ctx context.Context, req source.Request) ([]domain.Product, error) {
	endpoint, err := v.searchURL(req)
	if err != nil {
		return nil, err
	}

	var listings []json.RawMessage
	if err := v.fetcher.GetJSON(ctx, endpoint, &listings); err != nil {
		return nil, fmt.Errorf("vtex search: %w", err)
	}

	products := make([]domain.Product, 0, len(listings))
	for _, raw := range listings {
		p, err := v.mapListing(raw)
		if err != nil {
			v.debug("skip listing", "source", v.id, "error", err)
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (v *VTEX) searchURL(req source.Request) (string, error) {
	parsed, err := url.Parse(v.baseURL + vtexSearchPath)
	if err != nil {
		return "", fmt.Errorf("invalid vtex url %s: %w", v.baseURL, err)
	}

	limit := req.PageLimit()
	if limit > vtexMaxWindow {
		limit = vtexMaxWindow
	}

	q := parsed.Query()
	q.Set("ft", req.Query)
	q.Set("_from", strconv.Itoa(req.Offset))
	q.Set("_to", strconv.Itoa(req.Offset+limit-1))
	if pr := req.Filters.PriceRange; pr != nil && pr.Max != nil {
		q.Add("fq", fmt.Sprintf("P:[%s TO %s]", pr.Min.StringFixed(2), pr.Max.StringFixed(2)))
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

var errNoOffer = errors.New("listing has no sellable sku")

func (v *VTEX) mapListing(raw json.RawMessage) (domain.Product, error) {
	var listing vtexProduct
	if err := json.Unmarshal(raw, &listing); err != nil {
		return domain.Product{}, fmt.Errorf("decode listing: %w", err)
	}
	if len(listing.Items) == 0 || len(listing.Items[0].Sellers) == 0 {
		return domain.Product{}, fmt.Errorf("%s: %w", listing.ProductID, errNoOffer)
	}

	item := listing.Items[0]
	offer := item.Sellers[0].CommertialOffer

	p := domain.Product{
		Name:        listing.ProductName,
		Description: listing.Description,
		Price:       offer.Price,
		Brand:       listing.Brand,
		URL:         listing.Link,
		Category:    categoryFromPath(listing.Categories),
		InStock:     offer.AvailableQuantity > 0,
		Source:      v.id,
		SourceID:    listing.ProductID,
		Raw:         raw,
	}.WithOriginalPrice(offer.ListPrice)

	if p.Brand == "" {
		p.Brand = v.brand
	}
	if len(item.Images) > 0 {
		p.ImageURL = item.Images[0].ImageURL
	}
	if len(listing.Color) > 0 {
		p.Color = listing.Color[0]
	}
	if len(item.Size) > 0 {
		p.Size = item.Size[0]
	}

	if err := p.Normalize(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// categoryFromPath picks the most specific segment of the first VTEX category
// path, e.g. "/Feminino/Vestidos/" becomes "vestidos".
func categoryFromPath(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	segments := strings.Split(strings.Trim(paths[0], "/"), "/")
	return strings.ToLower(strings.TrimSpace(segments[len(segments)-1]))
}

func (v *VTEX) debug(msg string, args ...interface{}) {
	if v.logger != nil {
		v.logger.Debug(msg, args...)
	}
}

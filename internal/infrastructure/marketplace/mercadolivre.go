package marketplace

import (
	"context"
	"encoding/json"
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
	mercadoLivreAPI  = "https://api.mercadolibre.com"
	mercadoLivreSite = "MLB"
	// The public search API refuses windows above 50.
	mercadoLivreMaxLimit = 50
)

// mercadoLivreCategories maps opaque apparel category codes to readable names.
var mercadoLivreCategories = map[string]string{
	"MLB1430":   "moda",
	"MLB108704": "vestidos",
	"MLB31447":  "blusas",
	"MLB108791": "calças",
	"MLB108803": "saias",
	"MLB108806": "shorts",
	"MLB31448":  "camisas",
	"MLB107292": "casacos",
	"MLB108786": "macacões",
	"MLB23262":  "tênis",
	"MLB108824": "sandálias",
	"MLB190994": "bolsas",
	"MLB3937":   "acessórios",
	"MLB1574":   "moda praia",
	"MLB108877": "lingerie",
}

// MercadoLivreCategory resolves a category code, returning "" for unknown codes.
func MercadoLivreCategory(code string) string {
	return mercadoLivreCategories[strings.ToUpper(strings.TrimSpace(code))]
}

func mercadoLivreCategoryCode(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	for code, label := range mercadoLivreCategories {
		if label == name {
			return code
		}
	}
	return ""
}

// MercadoLivre queries the Mercado Livre public search API.
type MercadoLivre struct {
	id      string
	baseURL string
	site    string
	fetcher *transport.Fetcher
	logger  *slog.Logger
}

var _ source.Adapter = (*MercadoLivre)(nil)

// NewMercadoLivre builds the adapter; BaseURL defaults to the public API and the
// "site" option to MLB.
func NewMercadoLivre(cfg source.Config, fetcher *transport.Fetcher, logger *slog.Logger) *MercadoLivre {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = mercadoLivreAPI
	}
	if fetcher == nil {
		fetcher = transport.NewFetcher(transport.Options{})
	}
	return &MercadoLivre{
		id:      cfg.ID,
		baseURL: base,
		site:    cfg.Option("site", mercadoLivreSite),
		fetcher: fetcher,
		logger:  logger,
	}
}

type mlSearchResponse struct {
	Paging struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	} `json:"paging"`
	Results []json.RawMessage `json:"results"`
}

type mlItem struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Price             *decimal.Decimal `json:"price"`
	OriginalPrice     *decimal.Decimal `json:"original_price"`
	AvailableQuantity int              `json:"available_quantity"`
	Thumbnail         string           `json:"thumbnail"`
	Permalink         string           `json:"permalink"`
	CategoryID        string           `json:"category_id"`
	Attributes        []struct {
		ID        string `json:"id"`
		ValueName string `json:"value_name"`
	} `json:"attributes"`
	Reviews *struct {
		RatingAverage float64 `json:"rating_average"`
		Total         int     `json:"total"`
	} `json:"reviews"`
}

// Search implements source.Adapter.
func (m *MercadoLivre) Search(ctx context.Context, req source.Request) ([]domain.Product, error) {
	endpoint, err := m.searchURL(req)
	if err != nil {
		return nil, err
	}

	var resp mlSearchResponse
	if err := m.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("mercadolivre search: %w", err)
	}

	products := make([]domain.Product, 0, len(resp.Results))
	for _, raw := range resp.Results {
		p, err := m.mapItem(raw)
		if err != nil {
			m.debug("skip item", "source", m.id, "error", err)
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (m *MercadoLivre) searchURL(req source.Request) (string, error) {
	parsed, err := url.Parse(fmt.Sprintf("%s/sites/%s/search", m.baseURL, m.site))
	if err != nil {
		return "", fmt.Errorf("invalid mercadolivre url %s: %w", m.baseURL, err)
	}

	limit := req.PageLimit()
	if limit > mercadoLivreMaxLimit {
		limit = mercadoLivreMaxLimit
	}

	q := parsed.Query()
	q.Set("q", req.Query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(req.Offset))
	if pr := req.Filters.PriceRange; pr != nil {
		upper := "*"
		if pr.Max != nil {
			upper = pr.Max.StringFixed(2)
		}
		q.Set("price", pr.Min.StringFixed(2)+"-"+upper)
	}
	if code := mercadoLivreCategoryCode(req.Filters.Category); code != "" {
		q.Set("category", code)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func (m *MercadoLivre) mapItem(raw json.RawMessage) (domain.Product, error) {
	var item mlItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.Product{}, fmt.Errorf("decode item: %w", err)
	}
	if item.Price == nil {
		return domain.Product{}, fmt.Errorf("item %s has no price", item.ID)
	}

	p := domain.Product{
		Name:     item.Title,
		Price:    *item.Price,
		ImageURL: secureURL(item.Thumbnail),
		URL:      item.Permalink,
		Category: MercadoLivreCategory(item.CategoryID),
		InStock:  item.AvailableQuantity > 0,
		Source:   m.id,
		SourceID: item.ID,
		Raw:      raw,
	}
	if item.OriginalPrice != nil {
		p = p.WithOriginalPrice(*item.OriginalPrice)
	}
	for _, attr := range item.Attributes {
		switch attr.ID {
		case "BRAND":
			p.Brand = attr.ValueName
		case "COLOR", "MAIN_COLOR":
			if p.Color == "" {
				p.Color = attr.ValueName
			}
		case "SIZE":
			p.Size = attr.ValueName
		}
	}
	if item.Reviews != nil && item.Reviews.Total > 0 {
		rating := item.Reviews.RatingAverage
		total := item.Reviews.Total
		p.Rating = &rating
		p.ReviewsCount = &total
	}

	if err := p.Normalize(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (m *MercadoLivre) debug(msg string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func secureURL(raw string) string {
	if strings.HasPrefix(raw, "http://") {
		return "https://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}

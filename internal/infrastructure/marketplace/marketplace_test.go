package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/infrastructure/transport"
	"PozzySearch/internal/source"
)

const mlPayload = `{
  "paging": {"total": 3, "offset": 0, "limit": 50},
  "results": [
    {
      "id": "MLB100",
      "title": "Vestido Floral Midi",
      "price": 159.9,
      "original_price": 199.9,
      "available_quantity": 4,
      "thumbnail": "http://http2.mlstatic.com/D_100.jpg",
      "permalink": "https://produto.mercadolivre.com.br/MLB-100",
      "category_id": "MLB108704",
      "attributes": [
        {"id": "BRAND", "value_name": "Farm"},
        {"id": "COLOR", "value_name": "Azul"},
        {"id": "SIZE", "value_name": "M"}
      ],
      "reviews": {"rating_average": 4.6, "total": 12}
    },
    {"id": "MLB101", "title": "Sem preço", "price": null},
    {"id": "MLB102", "title": "Blusa", "price": "abc"},
    {"id": "MLB103", "title": "Blusa Cropped", "price": 49, "original_price": null, "available_quantity": 0, "category_id": "MLB999"}
  ]
}`

func TestMercadoLivreSearch(t *testing.T) {
	t.Parallel()

	queries := make(chan url.Values, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/MLB/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		queries <- r.URL.Query()
		_, _ = w.Write([]byte(mlPayload))
	}))
	defer server.Close()

	adapter := NewMercadoLivre(
		source.Config{ID: "mercadolivre", BaseURL: server.URL},
		transport.NewFetcher(transport.Options{Client: server.Client()}),
		nil,
	)

	req := source.Request{
		Query:  "vestido floral",
		Offset: 50,
		Limit:  80,
		Filters: domain.Filters{
			Category:   "Vestidos",
			PriceRange: &domain.PriceRange{Min: decimal.NewFromInt(50), Max: domain.UpTo(decimal.NewFromInt(300))},
		},
	}
	products, err := adapter.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	query := <-queries
	if query.Get("q") != "vestido floral" || query.Get("offset") != "50" || query.Get("limit") != "50" {
		t.Fatalf("unexpected query params: %v", query)
	}
	if query.Get("price") != "50.00-300.00" || query.Get("category") != "MLB108704" {
		t.Fatalf("filters not translated: %v", query)
	}

	if len(products) != 2 {
		t.Fatalf("expected 2 well-formed products, got %d", len(products))
	}

	first := products[0]
	if first.ID != "mercadolivre_MLB100" || first.SourceID != "MLB100" {
		t.Fatalf("unexpected identity %s / %s", first.ID, first.SourceID)
	}
	if !first.Price.Equal(decimal.RequireFromString("159.9")) {
		t.Fatalf("unexpected price %s", first.Price)
	}
	if first.OriginalPrice == nil || !first.OriginalPrice.Equal(decimal.RequireFromString("199.9")) {
		t.Fatalf("unexpected original price %v", first.OriginalPrice)
	}
	if first.Category != "vestidos" || first.Brand != "Farm" || first.Color != "Azul" || first.Size != "M" {
		t.Fatalf("attributes not mapped: %+v", first)
	}
	if first.ImageURL != "https://http2.mlstatic.com/D_100.jpg" {
		t.Fatalf("thumbnail not upgraded: %s", first.ImageURL)
	}
	if first.Rating == nil || *first.Rating != 4.6 || first.ReviewsCount == nil || *first.ReviewsCount != 12 {
		t.Fatalf("reviews not mapped")
	}
	if len(first.Raw) == 0 {
		t.Fatalf("raw payload not retained")
	}

	second := products[1]
	if second.InStock || second.OnSale() || second.Category != "" {
		t.Fatalf("unexpected second product: %+v", second)
	}
}

func TestMercadoLivreUpstreamFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewMercadoLivre(
		source.Config{ID: "mercadolivre", BaseURL: server.URL},
		transport.NewFetcher(transport.Options{Client: server.Client()}),
		nil,
	)
	if _, err := adapter.Search(context.Background(), source.Request{Query: "x"}); err == nil {
		t.Fatalf("expected error for 429")
	}
}

func TestMercadoLivreCategoryLookup(t *testing.T) {
	t.Parallel()

	if MercadoLivreCategory(" mlb108704 ") != "vestidos" {
		t.Fatalf("lookup should be case-insensitive")
	}
	if MercadoLivreCategory("MLB0") != "" {
		t.Fatalf("unknown codes map to empty category")
	}
	if mercadoLivreCategoryCode("Tênis") != "MLB23262" {
		t.Fatalf("reverse lookup failed")
	}
}

const vtexPayload = `[
  {
    "productId": "5501",
    "productName": "Vestido Midi Estampado",
    "brand": "",
    "description": "Vestido floral de viscose",
    "link": "https://loja.example.com.br/vestido-midi/p",
    "categories": ["/Feminino/Vestidos/", "/Feminino/"],
    "Cor": ["Verde"],
    "items": [
      {
        "itemId": "1",
        "Tamanho": ["P"],
        "images": [{"imageUrl": "https://cdn.example.com/5501.jpg"}],
        "sellers": [{"commertialOffer": {"Price": 139.9, "ListPrice": 179.9, "AvailableQuantity": 7}}]
      }
    ]
  },
  {"productId": "5502", "productName": "Sem sku", "items": []},
  {
    "productId": "5503",
    "productName": "Camiseta Básica",
    "brand": "Basics",
    "categories": ["/Feminino/Camisetas/"],
    "items": [{"itemId": "9", "sellers": [{"commertialOffer": {"Price": 39.9, "ListPrice": 39.9, "AvailableQuantity": 0}}]}]
  }
]`

func TestVTEXSearch(t *testing.T) {
	t.Parallel()

	queries := make(chan url.Values, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != vtexSearchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		queries <- r.URL.Query()
		_, _ = w.Write([]byte(vtexPayload))
	}))
	defer server.Close()

	adapter, err := NewVTEX(
		source.Config{ID: "renner", Name: "Renner", BaseURL: server.URL + "/"},
		transport.NewFetcher(transport.Options{Client: server.Client()}),
		nil,
	)
	if err != nil {
		t.Fatalf("NewVTEX: %v", err)
	}

	products, err := adapter.Search(context.Background(), source.Request{
		Query:   "vestido",
		Offset:  50,
		Limit:   50,
		Filters: domain.Filters{PriceRange: &domain.PriceRange{Max: domain.UpTo(decimal.NewFromInt(200))}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	q := <-queries
	from, to, fq, ft := q.Get("_from"), q.Get("_to"), q.Get("fq"), q.Get("ft")
	if ft != "vestido" || from != "50" || to != "99" {
		t.Fatalf("unexpected window ft=%s from=%s to=%s", ft, from, to)
	}
	if fq != "P:[0.00 TO 200.00]" {
		t.Fatalf("unexpected price filter %q", fq)
	}

	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}

	dress := products[0]
	if dress.ID != "renner_5501" || dress.Brand != "Renner" || dress.Category != "vestidos" {
		t.Fatalf("unexpected dress mapping: %+v", dress)
	}
	if dress.Color != "Verde" || dress.Size != "P" || dress.ImageURL != "https://cdn.example.com/5501.jpg" {
		t.Fatalf("sku fields not mapped: %+v", dress)
	}
	if !dress.InStock || !dress.OnSale() {
		t.Fatalf("expected in-stock sale item")
	}

	tee := products[1]
	if tee.OnSale() {
		t.Fatalf("list price equal to price is not a sale")
	}
	if tee.InStock {
		t.Fatalf("zero quantity must be out of stock")
	}
}

func TestNewVTEXRequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewVTEX(source.Config{ID: "x"}, nil, nil); err == nil {
		t.Fatalf("expected error without base url")
	}
}

package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PozzySearch/internal/config"
	"PozzySearch/internal/domain"
	"PozzySearch/internal/logging"
	"PozzySearch/internal/source"
)

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sites/MLB/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":"MLB1","title":"Vestido Floral Midi","price":159.9,"available_quantity":2}]}`))
	})
	mux.HandleFunc("/api/catalog_system/pub/products/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	mux.HandleFunc("/busca", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div data-product-id="77"><h3 class="product-name">Camisa</h3><span class="price">R$ 90,00</span></div>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) config.Config {
	off := false
	return config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Search:  config.SearchConfig{Timeout: 2 * time.Second, Limit: 10},
		HTTP:    config.HTTPConfig{Timeout: 2 * time.Second},
		Breaker: config.BreakerConfig{Failures: 3, Cooldown: time.Minute},
		Database: config.DatabaseConfig{
			Driver: "sqlite3",
			DSN:    ":memory:",
		},
		Sources: []config.SourceConfig{
			{ID: "ml", Kind: source.KindMercadoLivre, BaseURL: baseURL, Priority: 1},
			{ID: "renner", Kind: source.KindVTEX, BaseURL: baseURL, Priority: 2},
			{ID: "loja", Kind: source.KindStorefront, BaseURL: baseURL, Priority: 3},
			{ID: "off", Kind: source.KindStorefront, BaseURL: baseURL, Enabled: &off},
		},
	}
}

func TestApplicationSearchesConfiguredSources(t *testing.T) {
	t.Parallel()

	server := upstream(t)
	ctx := context.Background()

	application, err := New(ctx, testConfig(server.URL), logging.New("error", "text"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer application.Close()

	if len(application.Sources()) != 4 {
		t.Fatalf("expected all configured sources to be listed")
	}

	search := application.NewSearch()
	products, err := search.Search(ctx, "vestido floral", domain.Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(products) != 2 || products[0].ID != "ml_MLB1" || products[1].ID != "loja_77" {
		t.Fatalf("unexpected products %+v", products)
	}

	history, err := application.History().Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(history) != 1 || history[0].Query != "vestido floral" || history[0].Results != 2 {
		t.Fatalf("unexpected history %+v", history)
	}
	if len(history[0].FailedSources) != 1 || history[0].FailedSources[0] != "renner" {
		t.Fatalf("failed source not recorded: %v", history[0].FailedSources)
	}
}

func TestApplicationServesHTTP(t *testing.T) {
	t.Parallel()

	server := upstream(t)
	cfg := testConfig(server.URL)
	cfg.Database = config.DatabaseConfig{}

	application, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if application.History() != nil {
		t.Fatalf("history must be disabled without a dsn")
	}

	api := httptest.NewServer(application.Server().Handler())
	defer api.Close()

	resp, err := http.Get(api.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", resp.StatusCode)
	}

	resp, err = http.Get(api.URL + "/api/search?q=camisa")
	if err != nil {
		t.Fatalf("GET /api/search: %v", err)
	}
	defer resp.Body.Close()
	body := new(bytes.Buffer)
	_, _ = body.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body.String(), `"id":"loja_77"`) {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body.String())
	}
}

func TestNewRejectsInvalidSources(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://example.com")
	cfg.Database = config.DatabaseConfig{}
	cfg.Sources = append(cfg.Sources, config.SourceConfig{ID: "x", Kind: "carrier-pigeon"})

	if _, err := New(context.Background(), cfg, nil); !errors.Is(err, source.ErrUnknownKind) {
		t.Fatalf("expected unknown kind error, got %v", err)
	}

	cfg.Sources = []config.SourceConfig{{ID: "v", Kind: source.KindVTEX}}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected vtex without base url to fail")
	}
}

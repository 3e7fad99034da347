package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/infrastructure/transport"
	"PozzySearch/internal/source"
)

// Selectors locates product card fields on a storefront search page.
type Selectors struct {
	Card          string
	Name          string
	Price         string
	OriginalPrice string
	Link          string
	Image         string
	Brand         string
	IDAttr        string
	OutOfStock    string
}

var defaultSelectors = Selectors{
	Card:          "[data-product-id], .product-card, li.product",
	Name:          ".product-name, .product-card__name, h2, h3",
	Price:         ".price-current, .product-price, .price, [itemprop='price']",
	OriginalPrice: ".price-old, .price-original, del, s",
	Link:          "a[href]",
	Image:         "img",
	Brand:         ".product-brand, [itemprop='brand']",
	IDAttr:        "data-product-id",
	OutOfStock:    ".out-of-stock, .esgotado, .sold-out",
}

// SelectorsFromOptions overrides defaults with "selector.*" source options.
func SelectorsFromOptions(cfg source.Config) Selectors {
	s := defaultSelectors
	s.Card = cfg.Option("selector.card", s.Card)
	s.Name = cfg.Option("selector.name", s.Name)
	s.Price = cfg.Option("selector.price", s.Price)
	s.OriginalPrice = cfg.Option("selector.originalPrice", s.OriginalPrice)
	s.Link = cfg.Option("selector.link", s.Link)
	s.Image = cfg.Option("selector.image", s.Image)
	s.Brand = cfg.Option("selector.brand", s.Brand)
	s.IDAttr = cfg.Option("selector.idAttr", s.IDAttr)
	s.OutOfStock = cfg.Option("selector.outOfStock", s.OutOfStock)
	return s
}

// Storefront scrapes a retailer's HTML search results page.
type Storefront struct {
	id         string
	brand      string
	baseURL    *url.URL
	searchPath string
	queryParam string
	pageParam  string
	category   string
	selectors  Selectors
	fetcher    *transport.Fetcher
	logger     *slog.Logger
}

var _ source.Adapter = (*Storefront)(nil)

// NewStorefront builds a scraper for cfg. Options: searchPath (default
// "/busca"), queryParam (default "q"), pageParam (enables pagination),
// category (fixed category for the whole store) and selector.* overrides.
func NewStorefront(cfg source.Config, fetcher *transport.Fetcher, logger *slog.Logger) (*Storefront, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("storefront %s: invalid base url %q", cfg.ID, cfg.BaseURL)
	}
	if fetcher == nil {
		fetcher = transport.NewFetcher(transport.Options{})
	}
	return &Storefront{
		id:         cfg.ID,
		brand:      cfg.Option("brand", cfg.Name),
		baseURL:    base,
		searchPath: cfg.Option("searchPath", "/busca"),
		queryParam: cfg.Option("queryParam", "q"),
		pageParam:  cfg.Option("pageParam", ""),
		category:   cfg.Option("category", ""),
		selectors:  SelectorsFromOptions(cfg),
		fetcher:    fetcher,
		logger:     logger,
	}, nil
}

// Search implements source.Adapter.
func (s *Storefront) Search(ctx context.Context, req source.Request) ([]domain.Product, error) {
	if req.Offset > 0 && s.pageParam == "" {
		return nil, nil
	}

	pageURL := s.buildPageURL(req)
	body, err := s.fetcher.Get(ctx, pageURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, fmt.Errorf("storefront %s: %w", s.id, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	products := s.extractCards(doc)
	if len(products) == 0 {
		products = s.extractJSONLD(doc)
	}

	if limit := req.PageLimit(); len(products) > limit {
		products = products[:limit]
	}
	s.debug("storefront page parsed", "source", s.id, "url", pageURL, "products", len(products))
	return products, nil
}

func (s *Storefront) buildPageURL(req source.Request) string {
	u := s.baseURL.ResolveReference(&url.URL{Path: s.searchPath})
	q := u.Query()
	q.Set(s.queryParam, req.Query)
	if s.pageParam != "" {
		page := req.Offset/req.PageLimit() + 1
		q.Set(s.pageParam, strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Storefront) extractCards(doc *goquery.Document) []domain.Product {
	var products []domain.Product
	doc.Find(s.selectors.Card).Each(func(i int, card *goquery.Selection) {
		p, err := s.parseCard(card)
		if err != nil {
			s.debug("skip card", "source", s.id, "index", i, "error", err)
			return
		}
		products = append(products, p)
	})
	return products
}

var errNoPrice = errors.New("card has no price")

func (s *Storefront) parseCard(card *goquery.Selection) (domain.Product, error) {
	name := text(card.Find(s.selectors.Name).First())
	if name == "" {
		name = strings.TrimSpace(card.AttrOr("data-product-name", ""))
	}

	href := card.Find(s.selectors.Link).First().AttrOr("href", "")
	if href == "" {
		href = card.AttrOr("href", "")
	}
	link := s.absolute(href)

	id := strings.TrimSpace(card.AttrOr(s.selectors.IDAttr, ""))
	if id == "" {
		id = idFromLink(link)
	}

	priceNode := card.Find(s.selectors.Price).First()
	priceText := priceNode.AttrOr("content", "")
	if priceText == "" {
		priceText = text(priceNode)
	}
	price, ok := ParsePrice(priceText)
	if !ok {
		return domain.Product{}, fmt.Errorf("%s: %w", id, errNoPrice)
	}

	img := card.Find(s.selectors.Image).First()
	image := img.AttrOr("data-src", "")
	if image == "" {
		image = img.AttrOr("src", "")
	}

	brand := text(card.Find(s.selectors.Brand).First())
	if brand == "" {
		brand = s.brand
	}

	p := domain.Product{
		Name:     name,
		Price:    price,
		Brand:    brand,
		ImageURL: s.absolute(image),
		URL:      link,
		Category: s.category,
		InStock:  card.Find(s.selectors.OutOfStock).Length() == 0,
		Source:   s.id,
		SourceID: id,
	}
	if original, ok := ParsePrice(text(card.Find(s.selectors.OriginalPrice).First())); ok {
		p = p.WithOriginalPrice(original)
	}
	if raw, err := goquery.OuterHtml(card); err == nil {
		p.Raw, _ = json.Marshal(raw)
	}

	if err := p.Normalize(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

type ldOffer struct {
	Price        json.RawMessage `json:"price"`
	LowPrice     json.RawMessage `json:"lowPrice"`
	Availability string          `json:"availability"`
}

type ldProduct struct {
	Type        any             `json:"@type"`
	SKU         string          `json:"sku"`
	ProductID   string          `json:"productID"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
	Image       json.RawMessage `json:"image"`
	Color       string          `json:"color"`
	Category    string          `json:"category"`
	Brand       json.RawMessage `json:"brand"`
	Offers      json.RawMessage `json:"offers"`
	Item        *ldProduct      `json:"item"`
	Elements    []ldProduct     `json:"itemListElement"`
	Graph       []ldProduct     `json:"@graph"`
}

// extractJSONLD reads schema.org Product blocks, used when no card matched.
func (s *Storefront) extractJSONLD(doc *goquery.Document) []domain.Product {
	var products []domain.Product
	doc.Find("script[type='application/ld+json']").Each(func(i int, script *goquery.Selection) {
		payload := []byte(strings.TrimSpace(script.Text()))

		var blocks []ldProduct
		if err := json.Unmarshal(payload, &blocks); err != nil {
			var single ldProduct
			if err := json.Unmarshal(payload, &single); err != nil {
				s.debug("skip json-ld block", "source", s.id, "error", err)
				return
			}
			blocks = []ldProduct{single}
		}

		for _, block := range flatten(blocks) {
			p, err := s.fromLD(block)
			if err != nil {
				s.debug("skip json-ld product", "source", s.id, "error", err)
				continue
			}
			products = append(products, p)
		}
	})
	return products
}

func flatten(blocks []ldProduct) []ldProduct {
	var out []ldProduct
	for _, b := range blocks {
		switch {
		case b.Item != nil:
			out = append(out, flatten([]ldProduct{*b.Item})...)
		case len(b.Elements) > 0:
			out = append(out, flatten(b.Elements)...)
		case len(b.Graph) > 0:
			out = append(out, flatten(b.Graph)...)
		case isType(b.Type, "Product"):
			out = append(out, b)
		}
	}
	return out
}

func isType(raw any, want string) bool {
	switch v := raw.(type) {
	case string:
		return v == want
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func (s *Storefront) fromLD(block ldProduct) (domain.Product, error) {
	var offers []ldOffer
	if err := json.Unmarshal(block.Offers, &offers); err != nil {
		var single ldOffer
		if err := json.Unmarshal(block.Offers, &single); err != nil {
			return domain.Product{}, fmt.Errorf("%s: %w", block.Name, errNoPrice)
		}
		offers = []ldOffer{single}
	}
	if len(offers) == 0 {
		return domain.Product{}, fmt.Errorf("%s: %w", block.Name, errNoPrice)
	}

	offer := offers[0]
	priceRaw := offer.Price
	if len(priceRaw) == 0 {
		priceRaw = offer.LowPrice
	}
	price, ok := ParsePrice(strings.Trim(string(priceRaw), `"`))
	if !ok {
		return domain.Product{}, fmt.Errorf("%s: %w", block.Name, errNoPrice)
	}

	link := s.absolute(block.URL)
	id := block.SKU
	if id == "" {
		id = block.ProductID
	}
	if id == "" {
		id = idFromLink(link)
	}

	brand := ldName(block.Brand)
	if brand == "" {
		brand = s.brand
	}
	category := block.Category
	if category == "" {
		category = s.category
	}

	p := domain.Product{
		Name:        block.Name,
		Description: block.Description,
		Price:       price,
		Brand:       brand,
		ImageURL:    s.absolute(ldFirstString(block.Image)),
		URL:         link,
		Category:    category,
		Color:       block.Color,
		InStock:     offer.Availability == "" || strings.HasSuffix(offer.Availability, "InStock"),
		Source:      s.id,
		SourceID:    id,
	}
	p.Raw, _ = json.Marshal(block)

	if err := p.Normalize(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func ldName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Name != "" {
		return named.Name
	}
	return ldFirstString(raw)
}

func ldFirstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func (s *Storefront) absolute(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return s.baseURL.ResolveReference(parsed).String()
}

func idFromLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(parsed.Path, "/")
	// VTEX-style product pages end in /p.
	p = strings.TrimSuffix(p, "/p")
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

var (
	nonPrice      = regexp.MustCompile(`[^0-9.,]`)
	thousandsOnly = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

// ParsePrice reads a price written in Brazilian notation ("R$ 1.299,90"), as a
// plain decimal ("1299.90") or with US grouping ("1,299.90"). When both
// separators appear the last one marks the decimals; a lone comma always does.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := nonPrice.ReplaceAllString(raw, "")
	if cleaned == "" {
		return decimal.Zero, false
	}

	comma, dot := strings.LastIndex(cleaned, ","), strings.LastIndex(cleaned, ".")
	switch {
	case comma >= 0 && dot > comma:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case comma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case thousandsOnly.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil || price.IsNegative() {
		return decimal.Zero, false
	}
	return price, true
}

func (s *Storefront) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

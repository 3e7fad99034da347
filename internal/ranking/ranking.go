package ranking

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"PozzySearch/internal/domain"
)

// Strategy scores a product against a query; higher is more relevant.
type Strategy interface {
	Score(p domain.Product, query string) int
}

// Weights of the additive relevance heuristic.
const (
	NameMatch        = 10
	DescriptionMatch = 5
	CategoryMatch    = 3
	CheapPrice       = 2
	MidPrice         = 1
	HighRating       = 2
	InStock          = 1
)

var (
	cheapBelow = decimal.NewFromInt(100)
	midBelow   = decimal.NewFromInt(200)
)

// Heuristic is the default additive scorer. Query matching is a
// case-insensitive substring test.
type Heuristic struct{}

var _ Strategy = Heuristic{}

// Score implements Strategy.
func (Heuristic) Score(p domain.Product, query string) int {
	q := fold(strings.TrimSpace(query))
	score := 0

	if q != "" {
		if strings.Contains(fold(p.Name), q) {
			score += NameMatch
		}
		if strings.Contains(fold(p.Description), q) {
			score += DescriptionMatch
		}
		if strings.Contains(fold(p.Category), q) {
			score += CategoryMatch
		}
	}

	switch {
	case p.Price.LessThan(cheapBelow):
		score += CheapPrice
	case p.Price.LessThan(midBelow):
		score += MidPrice
	}

	if p.Rating != nil && *p.Rating > 4 {
		score += HighRating
	}
	if p.InStock {
		score += InStock
	}
	return score
}

func fold(s string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(s)
}

// Rank orders products by descending score. Equal scores keep their input order.
func Rank(products []domain.Product, query string, strategy Strategy) []domain.Product {
	if strategy == nil {
		strategy = Heuristic{}
	}

	scored := make([]scoredProduct, len(products))
	for i, p := range products {
		scored[i] = scoredProduct{product: p, score: strategy.Score(p, query)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]domain.Product, len(scored))
	for i, s := range scored {
		out[i] = s.product
	}
	return out
}

type scoredProduct struct {
	product domain.Product
	score   int
}

package ports

import (
	"context"

	"PozzySearch/internal/aggregator"
	"PozzySearch/internal/domain"
	"PozzySearch/internal/source"
)

// ProductSearcher fans one page request out to every enabled source.
type ProductSearcher interface {
	Aggregate(ctx context.Context, req source.Request) aggregator.Result
}

// SearchRecorder persists an audit entry per executed search page.
type SearchRecorder interface {
	Record(ctx context.Context, record domain.SearchRecord) error
}

// SearchHistory reads back recorded searches, newest first.
type SearchHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.SearchRecord, error)
}

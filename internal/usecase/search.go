package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/ports"
	"PozzySearch/internal/source"
)

var (
	// ErrEmptyQuery is returned when the trimmed query is empty.
	ErrEmptyQuery = errors.New("search query is empty")
	// ErrSuperseded is returned by a call whose search was replaced by a newer one.
	ErrSuperseded = errors.New("search superseded by a newer one")
)

// SearchOptions configures the facade.
type SearchOptions struct {
	// Limit is the per-source batch size of every page.
	Limit    int
	Recorder ports.SearchRecorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// State is the UI-facing view of the current search.
type State struct {
	Loading    bool
	HasMore    bool
	Error      string
	Query      string
	Generation string
	Results    int
}

// Search is the entry point of the search subsystem. It owns the current result
// list and pagination cursor; one value serves one user session.
type Search struct {
	searcher ports.ProductSearcher
	recorder ports.SearchRecorder
	logger   *slog.Logger
	limit    int
	now      func() time.Time

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation string
	query      string
	filters    domain.Filters
	offset     int
	page       int
	results    []domain.Product
	seen       map[domain.Key]struct{}
	hasMore    bool
	loading    bool
	errMsg     string
}

// NewSearch builds the facade over an aggregator.
func NewSearch(searcher ports.ProductSearcher, opts SearchOptions) *Search {
	opts.Limit = source.Request{Limit: opts.Limit}.PageLimit()
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Search{
		searcher: searcher,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		limit:    opts.Limit,
		now:      opts.Now,
		seen:     map[domain.Key]struct{}{},
	}
}

// Search runs a fresh aggregated search and replaces the previous result set.
// Any search or page load still in flight is cancelled.
func (s *Search) Search(ctx context.Context, query string, filters domain.Filters) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	filters = filters.Normalized()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	gen := uuid.NewString()
	s.cancel = cancel
	s.generation = gen
	s.query = query
	s.filters = filters
	s.offset = 0
	s.page = 0
	s.results = nil
	s.seen = map[domain.Key]struct{}{}
	s.hasMore = false
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	return s.run(ctx, runCtx, cancel, gen, query, filters, 0)
}

// LoadMore appends the next page of the current search. When nothing more is
// available, or a page is already loading, it returns the current list as is.
func (s *Search) LoadMore(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	if s.loading || !s.hasMore || s.query == "" {
		out := s.snapshot()
		s.mu.Unlock()
		return out, nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	gen, query, filters := s.generation, s.query, s.filters
	offset := s.offset + s.limit
	s.cancel = cancel
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	return s.run(ctx, runCtx, cancel, gen, query, filters, offset)
}

// State returns the current UI state.
func (s *Search) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Loading:    s.loading,
		HasMore:    s.hasMore,
		Error:      s.errMsg,
		Query:      s.query,
		Generation: s.generation,
		Results:    len(s.results),
	}
}

// Products returns a copy of the current result list.
func (s *Search) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// run fetches one page and commits it unless a newer search took over meanwhile.
func (s *Search) run(
	ctx, runCtx context.Context,
	cancel context.CancelFunc,
	gen, query string,
	filters domain.Filters,
	offset int,
) ([]domain.Product, error) {
	defer cancel()

	started := s.now()
	result := s.searcher.Aggregate(runCtx, source.Request{
		Query:   query,
		Filters: filters,
		Offset:  offset,
		Limit:   s.limit,
	})
	elapsed := s.now().Sub(started)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.debug("search superseded", "query", query, "generation", gen)
		return nil, ErrSuperseded
	}
	s.cancel = nil
	s.loading = false

	if err := ctx.Err(); err != nil {
		s.errMsg = err.Error()
		out := s.snapshot()
		s.mu.Unlock()
		return out, err
	}

	before := len(s.seen)
	fresh := make([]domain.Product, 0, len(result.Products))
	for _, p := range result.Products {
		key := p.Key()
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		if filters.Accepts(p) {
			fresh = append(fresh, p)
		}
	}
	added := len(s.seen) - before

	s.results = append(s.results, fresh...)
	s.offset = offset
	s.page++
	// a source that ignores the offset keeps returning the same batch
	s.hasMore = result.HasMore && added > 0
	page := s.page
	out := s.snapshot()
	s.mu.Unlock()

	failed := result.Failed()
	s.info("search page loaded",
		"query", query,
		"generation", gen,
		"page", page,
		"new", len(fresh),
		"total", len(out),
		"failed_sources", failed,
		"elapsed", elapsed,
	)

	s.record(ctx, domain.SearchRecord{
		Generation:    gen,
		Query:         query,
		Filters:       filters,
		Page:          page,
		Results:       len(fresh),
		FailedSources: failed,
		StartedAt:     started,
		Duration:      elapsed,
	})
	return out, nil
}

func (s *Search) snapshot() []domain.Product {
	out := make([]domain.Product, len(s.results))
	copy(out, s.results)
	return out
}

func (s *Search) record(ctx context.Context, rec domain.SearchRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.warn("record search", "query", rec.Query, "error", err)
	}
}

func (s *Search) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Search) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Search) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/metrics"
	"PozzySearch/internal/ranking"
	"PozzySearch/internal/source"
)

const defaultTimeout = 8 * time.Second

// Options tunes the aggregator; zero values fall back to defaults.
type Options struct {
	// Timeout bounds every adapter call individually.
	Timeout time.Duration
	// Concurrency caps simultaneous adapter calls; zero means one goroutine per source.
	Concurrency int
	// BreakerFailures trips a source's breaker after that many consecutive failures; zero disables breakers.
	BreakerFailures uint32
	// BreakerCooldown is how long a tripped breaker stays open.
	BreakerCooldown time.Duration
	Ranker          ranking.Strategy
	Logger          *slog.Logger
	Metrics         *metrics.Search
}

// Outcome describes how one source behaved during a search.
// Returned is the batch size the adapter produced, malformed items included;
// Count is what survived normalization.
type Outcome struct {
	Source   string
	Returned int
	Count    int
	Err      error
	Duration time.Duration
}

// Result is the merged, deduplicated and ranked output of a search page.
type Result struct {
	Products   []domain.Product
	Outcomes   []Outcome
	Duplicates int
	HasMore    bool
}

// Failed lists the sources that errored.
func (r Result) Failed() []string {
	var failed []string
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o.Source)
		}
	}
	return failed
}

// Aggregator fans a query out to all enabled sources and merges their listings.
type Aggregator struct {
	registry    *source.Registry
	timeout     time.Duration
	concurrency int
	ranker      ranking.Strategy
	logger      *slog.Logger
	metrics     *metrics.Search
	breakers    map[string]*gobreaker.CircuitBreaker
}

// New wires an aggregator over an already populated registry.
func New(registry *source.Registry, opts Options) *Aggregator {
	if registry == nil {
		registry = source.NewRegistry()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Ranker == nil {
		opts.Ranker = ranking.Heuristic{}
	}

	a := &Aggregator{
		registry:    registry,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		ranker:      opts.Ranker,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		breakers:    map[string]*gobreaker.CircuitBreaker{},
	}

	if opts.BreakerFailures > 0 {
		for _, cfg := range registry.Configs() {
			a.breakers[cfg.ID] = a.newBreaker(cfg.ID, opts.BreakerFailures, opts.BreakerCooldown)
		}
	}
	return a
}

func (a *Aggregator) newBreaker(id string, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A search cancelled by the caller says nothing about the source.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.warn("breaker state change", "source", name, "from", from.String(), "to", to.String())
		},
	})
}

// Aggregate runs every enabled adapter concurrently and waits for all of them
// to settle. It never fails: a source that errors, panics or times out simply
// contributes nothing.
func (a *Aggregator) Aggregate(ctx context.Context, req source.Request) Result {
	entries := a.registry.Enabled()
	req.Limit = req.PageLimit()

	var (
		mu       sync.Mutex
		merged   []domain.Product
		outcomes = make([]Outcome, 0, len(entries))
		group    errgroup.Group
	)
	if a.concurrency > 0 {
		group.SetLimit(a.concurrency)
	}

	for _, entry := range entries {
		entry := entry
		group.Go(func() error {
			products, outcome := a.fetch(ctx, entry, req)

			mu.Lock()
			merged = append(merged, products...)
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	unique, dropped := Dedupe(merged)
	result := Result{
		Products:   ranking.Rank(unique, req.Query, a.ranker),
		Outcomes:   outcomes,
		Duplicates: dropped,
	}
	for _, o := range outcomes {
		if o.Err == nil && o.Returned >= req.Limit {
			result.HasMore = true
			break
		}
	}

	a.metrics.ObserveSearch(dropped)
	a.debug("aggregate done",
		"query", req.Query,
		"offset", req.Offset,
		"sources", len(entries),
		"failed", len(result.Failed()),
		"products", len(result.Products),
		"duplicates", dropped,
	)
	return result
}

func (a *Aggregator) fetch(ctx context.Context, entry source.Entry, req source.Request) ([]domain.Product, Outcome) {
	id := entry.Config.ID
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	products, err := a.guarded(callCtx, entry, req)
	outcome := Outcome{Source: id, Err: err, Duration: time.Since(start)}

	if err != nil {
		a.warn("source failed", "source", id, "error", err, "elapsed", outcome.Duration)
		a.metrics.ObserveSource(id, 0, err, outcome.Duration)
		return nil, outcome
	}

	outcome.Returned = len(products)
	valid := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Source == "" {
			p.Source = id
		}
		if nErr := p.Normalize(); nErr != nil {
			a.debug("skip malformed product", "source", id, "error", nErr)
			continue
		}
		valid = append(valid, p)
	}

	outcome.Count = len(valid)
	a.metrics.ObserveSource(id, outcome.Count, nil, outcome.Duration)
	a.debug("source done", "source", id, "count", outcome.Count, "elapsed", outcome.Duration)
	return valid, outcome
}

func (a *Aggregator) guarded(ctx context.Context, entry source.Entry, req source.Request) ([]domain.Product, error) {
	breaker, ok := a.breakers[entry.Config.ID]
	if !ok {
		return callWithDeadline(ctx, entry.Adapter, req)
	}

	res, err := breaker.Execute(func() (interface{}, error) {
		return callWithDeadline(ctx, entry.Adapter, req)
	})
	if err != nil {
		return nil, err
	}
	products, _ := res.([]domain.Product)
	return products, nil
}

type adapterReply struct {
	products []domain.Product
	err      error
}

// callWithDeadline races the adapter against ctx so an adapter that ignores
// its context cannot stall the join.
func callWithDeadline(ctx context.Context, adapter source.Adapter, req source.Request) ([]domain.Product, error) {
	replies := make(chan adapterReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- adapterReply{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		products, err := adapter.Search(ctx, req)
		replies <- adapterReply{products: products, err: err}
	}()

	select {
	case reply := <-replies:
		return reply.products, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dedupe keeps the first product of every (source, sourceId) pair in input
// order and reports how many were dropped.
func Dedupe(products []domain.Product) ([]domain.Product, int) {
	seen := make(map[domain.Key]struct{}, len(products))
	unique := make([]domain.Product, 0, len(products))
	for _, p := range products {
		key := p.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, p)
	}
	return unique, len(products) - len(unique)
}

func (a *Aggregator) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}

func (a *Aggregator) warn(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

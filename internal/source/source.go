package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"PozzySearch/internal/domain"
)

const (
	// DefaultLimit is the batch size requested from each source per page.
	DefaultLimit = 50
	// MaxLimit is the largest window the marketplace APIs serve in one call.
	MaxLimit = 50
)

var (
	// ErrDuplicateSource is returned when two sources share an id.
	ErrDuplicateSource = errors.New("source already registered")
	// ErrUnknownKind is returned when no adapter constructor exists for a kind.
	ErrUnknownKind = errors.New("unknown source kind")
)

// Kinds of adapter implementations.
const (
	KindMercadoLivre = "mercadolivre"
	KindVTEX         = "vtex"
	KindStorefront   = "storefront"
)

// Config describes one retailer or marketplace integration.
type Config struct {
	ID       string
	Name     string
	Kind     string
	BaseURL  string
	Enabled  bool
	Priority int
	Options  map[string]string
}

// Option returns the option value or fallback when absent.
func (c Config) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Request carries the parameters of a single page fetch.
type Request struct {
	Query   string
	Filters domain.Filters
	Offset  int
	Limit   int
}

// PageLimit returns Limit clamped to MaxLimit, or the default batch size.
func (r Request) PageLimit() int {
	switch {
	case r.Limit <= 0:
		return DefaultLimit
	case r.Limit > MaxLimit:
		return MaxLimit
	}
	return r.Limit
}

// Adapter queries exactly one external source and maps its listings into
// normalized products. An error means the whole source failed for this call.
type Adapter interface {
	Search(ctx context.Context, req Request) ([]domain.Product, error)
}

// AdapterFunc lets plain functions serve as adapters.
type AdapterFunc func(ctx context.Context, req Request) ([]domain.Product, error)

// Search calls f.
func (f AdapterFunc) Search(ctx context.Context, req Request) ([]domain.Product, error) {
	return f(ctx, req)
}

// Entry pairs a source configuration with its adapter.
type Entry struct {
	Config  Config
	Adapter Adapter
}

// Registry keeps the configured sources. It is filled during wiring and read
// concurrently afterwards.
type Registry struct {
	entries []Entry
	byID    map[string]int
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]int{}}
}

// Register adds a source; ids must be unique.
func (r *Registry) Register(cfg Config, adapter Adapter) error {
	if cfg.ID == "" {
		return fmt.Errorf("register source: empty id")
	}
	if adapter == nil {
		return fmt.Errorf("register source %s: nil adapter", cfg.ID)
	}
	if r.byID == nil {
		r.byID = map[string]int{}
	}
	if _, ok := r.byID[cfg.ID]; ok {
		return fmt.Errorf("register source %s: %w", cfg.ID, ErrDuplicateSource)
	}
	r.byID[cfg.ID] = len(r.entries)
	r.entries = append(r.entries, Entry{Config: cfg, Adapter: adapter})
	return nil
}

// Resolve returns a source by id.
func (r *Registry) Resolve(id string) (Entry, error) {
	if i, ok := r.byID[id]; ok {
		return r.entries[i], nil
	}
	return Entry{}, fmt.Errorf("source %s is not registered", id)
}

// Enabled returns enabled sources ordered by ascending priority, keeping
// registration order among equal priorities.
func (r *Registry) Enabled() []Entry {
	enabled := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Config.Enabled {
			enabled = append(enabled, e)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Config.Priority < enabled[j].Config.Priority
	})
	return enabled
}

// Configs lists every registered source configuration.
func (r *Registry) Configs() []Config {
	out := make([]Config, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Config)
	}
	return out
}

// Factory builds an adapter for a configuration.
type Factory func(cfg Config) (Adapter, error)

// Build registers every configuration using the factory for its kind.
func Build(configs []Config, factories map[string]Factory) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range configs {
		factory, ok := factories[cfg.Kind]
		if !ok {
			return nil, fmt.Errorf("source %s: %w %q", cfg.ID, ErrUnknownKind, cfg.Kind)
		}
		adapter, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.ID, err)
		}
		if err := reg.Register(cfg, adapter); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

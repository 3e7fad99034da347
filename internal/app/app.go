package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"PozzySearch/internal/aggregator"
	"PozzySearch/internal/config"
	"PozzySearch/internal/infrastructure/httpapi"
	"PozzySearch/internal/infrastructure/marketplace"
	"PozzySearch/internal/infrastructure/scraper"
	"PozzySearch/internal/infrastructure/storage"
	"PozzySearch/internal/infrastructure/transport"
	"PozzySearch/internal/logging"
	"PozzySearch/internal/metrics"
	"PozzySearch/internal/ports"
	"PozzySearch/internal/source"
	"PozzySearch/internal/usecase"
)

// Application wires configs to the search facade and its driven adapters.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *source.Registry
	aggregator *aggregator.Aggregator
	metrics    *metrics.Search
	history    *storage.HistoryRepository
}

// New builds the source registry, the aggregator and, when a DSN is
// configured, the search history store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry, err := source.Build(cfg.SourceConfigs(), Factories(cfg, baseLogger))
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}

	m := metrics.New()
	agg := aggregator.New(registry, aggregator.Options{
		Timeout:         cfg.Search.Timeout,
		Concurrency:     cfg.Search.Concurrency,
		BreakerFailures: cfg.Breaker.Failures,
		BreakerCooldown: cfg.Breaker.Cooldown,
		Logger:          baseLogger.With("component", "aggregator"),
		Metrics:         m,
	})

	application := &Application{
		cfg:        cfg,
		logger:     baseLogger,
		registry:   registry,
		aggregator: agg,
		metrics:    m,
	}

	if cfg.Database.DSN != "" {
		repo, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open search history: %w", err)
		}
		application.history = repo
	}

	return application, nil
}

// Factories returns the adapter constructors per source kind. Every source gets
// its own fetcher so rate limits are tracked per retailer.
func Factories(cfg config.Config, logger *slog.Logger) map[string]source.Factory {
	client := &http.Client{Timeout: cfg.HTTP.Timeout}

	fetcherFor := func(sc source.Config) *transport.Fetcher {
		proxy := sc.Option("proxyUrl", cfg.HTTP.ProxyURL)
		if proxy == "none" {
			proxy = ""
		}
		rps := cfg.HTTP.RatePerSecond
		if raw := sc.Option("ratePerSecond", ""); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				rps = v
			}
		}
		return transport.NewFetcher(transport.Options{
			Client:        client,
			UserAgent:     cfg.HTTP.UserAgent,
			ProxyURL:      proxy,
			RatePerSecond: rps,
			Burst:         cfg.HTTP.Burst,
		})
	}
	componentLogger := func(sc source.Config) *slog.Logger {
		return logger.With("component", "source."+sc.Kind, "source", sc.ID)
	}

	return map[string]source.Factory{
		source.KindMercadoLivre: func(sc source.Config) (source.Adapter, error) {
			return marketplace.NewMercadoLivre(sc, fetcherFor(sc), componentLogger(sc)), nil
		},
		source.KindVTEX: func(sc source.Config) (source.Adapter, error) {
			return marketplace.NewVTEX(sc, fetcherFor(sc), componentLogger(sc))
		},
		source.KindStorefront: func(sc source.Config) (source.Adapter, error) {
			return scraper.NewStorefront(sc, fetcherFor(sc), componentLogger(sc))
		},
	}
}

// NewSearch returns a fresh facade; each caller session owns one.
func (a *Application) NewSearch() *usecase.Search {
	var recorder ports.SearchRecorder
	if a.history != nil {
		recorder = a.history
	}
	return usecase.NewSearch(a.aggregator, usecase.SearchOptions{
		Limit:    a.cfg.Search.Limit,
		Recorder: recorder,
		Logger:   a.logger.With("component", "search"),
	})
}

// Sources lists every configured source.
func (a *Application) Sources() []source.Config {
	return a.registry.Configs()
}

// History returns the search history reader, or nil when disabled.
func (a *Application) History() ports.SearchHistory {
	if a.history == nil {
		return nil
	}
	return a.history
}

// Server builds the HTTP API over this application.
func (a *Application) Server() *httpapi.Server {
	return httpapi.New(httpapi.Options{
		NewSession: a.NewSearch,
		Sources:    a.Sources(),
		History:    a.History(),
		Metrics:    a.metrics.Handler(),
		Logger:     a.logger.With("component", "httpapi"),
	})
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	return a.Server().ListenAndServe(ctx, addr)
}

// Close releases the history store.
func (a *Application) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

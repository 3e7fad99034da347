package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"PozzySearch/internal/domain"
	"PozzySearch/internal/ports"
	"PozzySearch/internal/source"
	"PozzySearch/internal/usecase"
)

const (
	defaultMaxPages     = 5
	defaultHistoryLimit = 20
	shutdownTimeout     = 10 * time.Second
)

// Options wires the API to the search subsystem.
type Options struct {
	// NewSession returns a fresh facade per request; sessions are not shared.
	NewSession func() *usecase.Search
	Sources    []source.Config
	// History is optional; /api/history answers 404 without it.
	History ports.SearchHistory
	// Metrics serves /metrics when set.
	Metrics  http.Handler
	Logger   *slog.Logger
	MaxPages int
}

// Server exposes search over HTTP.
type Server struct {
	newSession func() *usecase.Search
	sources    []source.Config
	history    ports.SearchHistory
	metrics    http.Handler
	logger     *slog.Logger
	maxPages   int
}

// New builds the API server.
func New(opts Options) *Server {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	return &Server{
		newSession: opts.NewSession,
		sources:    opts.Sources,
		history:    opts.History,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		maxPages:   opts.MaxPages,
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/sources", s.handleSources)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.loggingMiddleware(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	enabled := 0
	for _, c := range s.sources {
		if c.Enabled {
			enabled++
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sources": enabled,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, newSourceViews(s.sources))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	page := 1
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.jsonError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	if page > s.maxPages {
		page = s.maxPages
	}

	filters, err := ParseFilters(values)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := s.newSession()
	products, err := session.Search(r.Context(), values.Get("q"), filters)
	switch {
	case errors.Is(err, usecase.ErrEmptyQuery):
		s.jsonError(w, http.StatusBadRequest, "q is required")
		return
	case err != nil:
		s.jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	loaded := 1
	for loaded < page && session.State().HasMore {
		if products, err = session.LoadMore(r.Context()); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		loaded++
	}

	state := session.State()
	s.jsonResponse(w, http.StatusOK, SearchResponse{
		Query:    state.Query,
		Page:     loaded,
		HasMore:  state.HasMore,
		Count:    len(products),
		Products: NewProductViews(products),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusNotFound, "search history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.warn("load history", "error", err)
		s.jsonError(w, http.StatusInternalServerError, "cannot load history")
		return
	}

	views := make([]HistoryView, 0, len(records))
	for _, rec := range records {
		failed := rec.FailedSources
		if failed == nil {
			failed = []string{}
		}
		views = append(views, HistoryView{
			ID:            rec.ID,
			Query:         rec.Query,
			Page:          rec.Page,
			Results:       rec.Results,
			FailedSources: failed,
			StartedAt:     rec.StartedAt.UTC().Format(time.RFC3339),
			DurationMS:    rec.Duration.Milliseconds(),
		})
	}
	s.jsonResponse(w, http.StatusOK, views)
}

// ParseFilters reads min_price, max_price, category, color (repeatable or
// comma separated) and in_stock from query values.
func ParseFilters(values url.Values) (domain.Filters, error) {
	var filters domain.Filters

	minRaw, maxRaw := strings.TrimSpace(values.Get("min_price")), strings.TrimSpace(values.Get("max_price"))
	if minRaw != "" || maxRaw != "" {
		pr := &domain.PriceRange{}
		if minRaw != "" {
			v, err := decimal.NewFromString(minRaw)
			if err != nil || v.IsNegative() {
				return domain.Filters{}, fmt.Errorf("invalid min_price %q", minRaw)
			}
			pr.Min = v
		}
		if maxRaw != "" {
			v, err := decimal.NewFromString(maxRaw)
			if err != nil || v.IsNegative() {
				return domain.Filters{}, fmt.Errorf("invalid max_price %q", maxRaw)
			}
			pr.Max = &v
		}
		if pr.Max != nil && pr.Min.GreaterThan(*pr.Max) {
			return domain.Filters{}, fmt.Errorf("min_price exceeds max_price")
		}
		filters.PriceRange = pr
	}

	filters.Category = values.Get("category")
	for _, raw := range values["color"] {
		filters.Colors = append(filters.Colors, strings.Split(raw, ",")...)
	}

	if raw := values.Get("in_stock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.Filters{}, fmt.Errorf("invalid in_stock %q", raw)
		}
		filters.InStockOnly = v
	}
	return filters.Normalized(), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"elapsed", time.Since(start),
			)
		}
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.warn("encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

func (s *Server) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

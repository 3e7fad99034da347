package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search holds collectors describing aggregated searches. A nil *Search is a no-op.
type Search struct {
	registry       *prometheus.Registry
	sourceRequests *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	sourceProducts *prometheus.CounterVec
	searches       prometheus.Counter
	duplicates     prometheus.Counter
}

// New registers the search collectors on a dedicated registry.
func New() *Search {
	m := &Search{
		registry: prometheus.NewRegistry(),
		sourceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pozzy",
				Name:      "source_requests_total",
				Help:      "Adapter calls per source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pozzy",
				Name:      "source_request_duration_seconds",
				Help:      "Adapter call latency per source.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		),
		sourceProducts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pozzy",
				Name:      "source_products_total",
				Help:      "Products returned per source before deduplication.",
			},
			[]string{"source"},
		),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pozzy",
			Name:      "searches_total",
			Help:      "Aggregated searches executed.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pozzy",
			Name:      "duplicates_dropped_total",
			Help:      "Records dropped by (source, sourceId) deduplication.",
		}),
	}

	m.registry.MustRegister(
		m.sourceRequests,
		m.sourceDuration,
		m.sourceProducts,
		m.searches,
		m.duplicates,
	)
	return m
}

// ObserveSource records one adapter outcome.
func (m *Search) ObserveSource(source string, count int, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sourceRequests.WithLabelValues(source, outcome).Inc()
	m.sourceDuration.WithLabelValues(source).Observe(duration.Seconds())
	m.sourceProducts.WithLabelValues(source).Add(float64(count))
}

// ObserveSearch records an aggregated search and its dropped duplicates.
func (m *Search) ObserveSearch(duplicates int) {
	if m == nil {
		return
	}
	m.searches.Inc()
	m.duplicates.Add(float64(duplicates))
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Search) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Search) Gatherer() prometheus.Gatherer {
	return m.registry
}

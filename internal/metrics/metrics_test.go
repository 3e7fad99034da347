package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSource(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveSource("cea", 3, nil, 200*time.Millisecond)
	m.ObserveSource("cea", 0, errors.New("timeout"), time.Second)

	if got := testutil.ToFloat64(m.sourceRequests.WithLabelValues("cea", "ok")); got != 1 {
		t.Fatalf("expected one ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.sourceRequests.WithLabelValues("cea", "error")); got != 1 {
		t.Fatalf("expected one failed request, got %v", got)
	}
	if got := testutil.ToFloat64(m.sourceProducts.WithLabelValues("cea")); got != 3 {
		t.Fatalf("expected 3 products, got %v", got)
	}
}

func TestObserveSearch(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveSearch(2)
	m.ObserveSearch(0)

	expected := `
# HELP pozzy_searches_total Aggregated searches executed.
# TYPE pozzy_searches_total counter
pozzy_searches_total 2
`
	if err := testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "pozzy_searches_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if got := testutil.ToFloat64(m.duplicates); got != 2 {
		t.Fatalf("expected 2 duplicates, got %v", got)
	}
}

func TestNilSearchIsNoop(t *testing.T) {
	t.Parallel()

	var m *Search
	m.ObserveSource("x", 1, nil, time.Millisecond)
	m.ObserveSearch(1)
	if m.Handler() == nil {
		t.Fatalf("nil metrics must still expose a handler")
	}
}

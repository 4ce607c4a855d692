package http

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, func() int { return 3 }, func() int { return 7 })

	m.RequestsTotal.WithLabelValues("POST", "ok").Inc()
	m.ContentServed.WithLabelValues("daily_forecast", "cache").Add(2)
	m.GenerationFailures.WithLabelValues("timeout").Inc()
	m.RateLimitRejections.WithLabelValues("generation").Inc()

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "ok")); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContentServed.WithLabelValues("daily_forecast", "cache")); got != 2 {
		t.Errorf("content_served_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheEntries); got != 3 {
		t.Errorf("cache_entries = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.RateLimitWindows); got != 7 {
		t.Errorf("rate_limit_windows = %v, want 7", got)
	}
}

func TestNewMetrics_NilGaugeSources(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, nil, nil)

	if got := testutil.ToFloat64(m.CacheEntries); got != 0 {
		t.Errorf("cache_entries = %v, want 0 with nil source", got)
	}
	if got := testutil.ToFloat64(m.RateLimitWindows); got != 0 {
		t.Errorf("rate_limit_windows = %v, want 0 with nil source", got)
	}
}

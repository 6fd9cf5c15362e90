package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangeScope/internal/cache"
	"rangeScope/internal/calculator"
	"rangeScope/internal/kv"
	"rangeScope/internal/source"
)

var (
	_ cache.Recorder      = (*Metrics)(nil)
	_ source.Recorder     = (*Metrics)(nil)
	_ calculator.Recorder = (*Metrics)(nil)
)

func TestMetricsRecordEvents(t *testing.T) {
	m := NewMetrics("")

	m.Calculation("computed", 20*time.Millisecond)
	m.Calculation("computed", 30*time.Millisecond)
	m.Calculation("cache_hit", time.Millisecond)
	m.WindowDegraded("30d")
	m.SourceFallback(42161, "stale")
	m.SourceLag(1, 90*time.Second)
	m.CacheHit("apr")
	m.CacheMiss("apr")
	m.CacheEvicted("apr", "expired", 3)
	m.HTTPRequest("/apr", 200, 5*time.Millisecond)

	text := scrape(t, m)
	assert.Contains(t, text, `rangescope_calculator_calculations_total{outcome="computed"} 2`)
	assert.Contains(t, text, `rangescope_calculator_windows_degraded_total{window="30d"} 1`)
	assert.Contains(t, text, `rangescope_source_fallbacks_total{chain_id="42161",reason="stale"} 1`)
	assert.Contains(t, text, `rangescope_source_indexed_lag_seconds{chain_id="1"} 90`)
	assert.Contains(t, text, `rangescope_cache_evicted_total{namespace="apr",reason="expired"} 3`)
	assert.Contains(t, text, `rangescope_http_requests_total{route="/apr",status="200"} 1`)
}

func TestMetricsCountCacheExpiry(t *testing.T) {
	m := NewMetrics("")
	now := time.Unix(1_700_000_000, 0)
	c := cache.New[int](kv.NewMemoryStore(), cache.Options{
		Namespace: "apr",
		Now:       func() time.Time { return now },
		Recorder:  m,
	})
	ctx := context.Background()

	c.Set(ctx, "k", 1, time.Minute)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)

	text := scrape(t, m)
	assert.Contains(t, text, `rangescope_cache_hits_total{namespace="apr"} 1`)
	assert.Contains(t, text, `rangescope_cache_misses_total{namespace="apr"} 1`)
	assert.Contains(t, text, `rangescope_cache_evicted_total{namespace="apr",reason="expired"} 1`)
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")
	a.CacheHit("apr")
	assert.Contains(t, scrape(t, a), `test_cache_hits_total{namespace="apr"} 1`)
	assert.NotContains(t, scrape(t, b), "test_cache_hits_total{")
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("")
	m.CacheMiss("apr")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `rangescope_cache_misses_total{namespace="apr"} 1`), text)
	assert.Contains(t, text, "go_goroutines")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

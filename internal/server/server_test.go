package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangeScope/internal/cache"
	"rangeScope/internal/calculator"
	"rangeScope/internal/kv"
	"rangeScope/internal/model"
	"rangeScope/internal/oracle"
	"rangeScope/internal/source"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCalculator struct {
	got    model.PositionInput
	result model.APRResult
	err    error
}

func (f *fakeCalculator) Calculate(_ context.Context, input model.PositionInput) (model.APRResult, error) {
	f.got = input
	return f.result, f.err
}

type fakeHealth struct{ healthy bool }

func (f fakeHealth) Health(_ context.Context, chainID uint64) source.Health {
	return source.Health{ChainID: chainID, Healthy: f.healthy, LagSeconds: 42, BlockNumber: 100}
}

type fakePools struct {
	query string
	limit int
}

func (f *fakePools) SearchPools(_ context.Context, chainID uint64, query string, limit int) ([]model.Pool, error) {
	f.query, f.limit = query, limit
	if query == "none" {
		return nil, nil
	}
	return []model.Pool{{ID: "0xabc", ChainID: chainID, Fee: 500}}, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (f *fakeRecorder) HTTPRequest(route string, status int, _ time.Duration) {
	f.mu.Lock()
	f.routes = append(f.routes, fmt.Sprintf("%s %d", route, status))
	f.mu.Unlock()
}

func newTestServer(calc Calculator, rec Recorder) *Server {
	return New(Config{
		Calculator: calc,
		Health:     fakeHealth{healthy: true},
		Pools:      &fakePools{},
		Chains:     []uint64{1, 42161},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("rangescope_up 1\n"))
		}),
		Recorder: rec,
	})
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const aprBody = `{
	"chainId": 1,
	"poolId": "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
	"tickLower": -600,
	"tickUpper": 600,
	"deposit": {"usd": 1000}
}`

func TestCalculateRoute(t *testing.T) {
	calc := &fakeCalculator{result: model.APRResult{ChainID: 1, APR24h: 0.12, PositionValue: 1000}}
	rec := &fakeRecorder{}
	router := newTestServer(calc, rec).Router()

	w := do(t, router, http.MethodPost, "/apr", aprBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data model.APRResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.12, resp.Data.APR24h)

	assert.Equal(t, int32(-600), calc.got.TickLower)
	require.NotNil(t, calc.got.Deposit.USD)
	assert.Equal(t, 1000.0, *calc.got.Deposit.USD)
	assert.Equal(t, []string{"/apr 200"}, rec.routes)
}

func TestCalculateRouteErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed json", `{"chainId":`, nil, http.StatusBadRequest},
		{"unsupported chain", strings.Replace(aprBody, `"chainId": 1`, `"chainId": 56`, 1), nil, http.StatusBadRequest},
		{"invalid input", aprBody, fmt.Errorf("%w: tickLower must be below tickUpper", model.ErrInvalidInput), http.StatusBadRequest},
		{"pool not found", aprBody, fmt.Errorf("lookup: %w", source.ErrPoolNotFound), http.StatusNotFound},
		{"sources down", aprBody, fmt.Errorf("no fee data: %w", source.ErrSourceUnavailable), http.StatusServiceUnavailable},
		{"unexpected", aprBody, fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestServer(&fakeCalculator{err: tc.err}, nil).Router()
			w := do(t, router, http.MethodPost, "/apr", tc.body)
			assert.Equal(t, tc.want, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// emptyChain is a chain with no contract at any pool address.
type emptyChain struct {
	mu        sync.Mutex
	poolCalls int
}

func (c *emptyChain) ReadPoolState(_ context.Context, _ uint64, poolID string, _ *uint64) (model.Pool, error) {
	c.mu.Lock()
	c.poolCalls++
	c.mu.Unlock()
	return model.Pool{}, fmt.Errorf("call token0 on %s: %w", poolID, model.ErrPoolNotFound)
}

func (c *emptyChain) ReadTick(context.Context, uint64, string, int32, *uint64) (model.TickSnapshot, error) {
	return model.TickSnapshot{}, fmt.Errorf("unreachable")
}

func (c *emptyChain) LatestBlock(context.Context, uint64) (uint64, error) { return 20_000_000, nil }

func (c *emptyChain) EstimateBlockAt(context.Context, uint64, time.Time) (uint64, error) {
	return 19_990_000, nil
}

func TestCalculateRouteUnknownPool(t *testing.T) {
	chain := &emptyChain{}
	arb := source.NewArbiter(nil, chain, source.Config{})
	results := cache.New[model.APRResult](kv.NewMemoryStore(), cache.Options{Namespace: "apr"})
	calc := calculator.New(arb, oracle.NewStatic(map[uint64]float64{1: 3000}), results, nil, calculator.Config{
		RetryBackoff: time.Millisecond,
	})

	w := do(t, newTestServer(calc, nil).Router(), http.MethodPost, "/apr", aprBody)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 3, chain.poolCalls, "one read per window, no retries")
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(&fakeCalculator{}, nil)
	router := srv.Router()

	w := do(t, router, http.MethodGet, "/health/42161", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data source.Health `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(42161), resp.Data.ChainID)
	assert.Equal(t, int64(42), resp.Data.LagSeconds)

	srv.health = fakeHealth{healthy: false}
	w = do(t, srv.Router(), http.MethodGet, "/health/1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/health/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/health/56", "").Code)
}

func TestSearchPoolsRoute(t *testing.T) {
	pools := &fakePools{}
	srv := newTestServer(&fakeCalculator{}, nil)
	srv.pools = pools
	router := srv.Router()

	w := do(t, router, http.MethodGet, "/pools/search?chainId=1&q=WETH&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "WETH", pools.query)
	assert.Equal(t, 5, pools.limit)
	assert.Contains(t, w.Body.String(), `"id":"0xabc"`)

	w = do(t, router, http.MethodGet, "/pools/search?chainId=1&q=none", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodGet, "/pools/search?q=WETH", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodGet, "/pools/search?chainId=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/pools/search?chainId=1&q=a&limit=x", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	rec := &fakeRecorder{}
	router := newTestServer(&fakeCalculator{}, rec).Router()

	w := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rangescope_up 1\n", w.Body.String())

	do(t, router, http.MethodGet, "/nope", "")
	assert.Equal(t, []string{"/metrics 200", "unmatched 404"}, rec.routes)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := newTestServer(&fakeCalculator{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server did not stop")
	}
}

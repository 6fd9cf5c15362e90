package subgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangeScope/internal/model"
)

const (
	usdcWethPool = "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"
	usdc         = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	weth         = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

type graphRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type fakeGraph struct {
	mu       sync.Mutex
	requests []graphRequest
	auth     []string
	respond  func(req graphRequest) string
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(f.respond(req)))
}

func (f *fakeGraph) last() graphRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, graph *fakeGraph) *Client {
	t.Helper()
	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)
	return New(Config{Endpoints: map[uint64]string{1: srv.URL}, APIKey: "key"})
}

const poolJSON = `{
  "id": "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
  "token0": {"id": "` + usdc + `", "symbol": "USDC", "name": "USD Coin", "decimals": "6"},
  "token1": {"id": "` + weth + `", "symbol": "WETH", "name": "Wrapped Ether", "decimals": "18"},
  "feeTier": "500",
  "sqrtPrice": "1459148620414727637612063434431862",
  "liquidity": "21406966740143161050",
  "tick": "197000",
  "feeGrowthGlobal0X128": "3417260839373418376486271706722917",
  "feeGrowthGlobal1X128": "1567896123451230000000000000000000000000",
  "volumeUSD": "1234567.5",
  "feesUSD": "617.25",
  "totalValueLockedUSD": "250000000.1"
}`

func TestFetchPool(t *testing.T) {
	graph := &fakeGraph{respond: func(req graphRequest) string {
		return `{"data": {"pool": ` + poolJSON + `, "_meta": {"block": {"number": 19000000, "timestamp": 1700000000}}}}`
	}}
	client := newTestClient(t, graph)

	block := uint64(18990000)
	got, err := client.FetchPool(context.Background(), 1, "0x"+strings.ToUpper(usdcWethPool[2:]), &block)
	require.NoError(t, err)

	assert.Equal(t, usdcWethPool, got.Pool.ID)
	assert.Equal(t, uint32(500), got.Pool.Fee)
	assert.Equal(t, int32(10), got.Pool.TickSpacing)
	assert.Equal(t, int32(197000), got.Pool.Tick)
	assert.Equal(t, uint8(6), got.Pool.Token0.Decimals)
	assert.Equal(t, "21406966740143161050", got.Pool.Liquidity.Dec())
	assert.InDelta(t, 250000000.1, got.Pool.TVLUSD, 1e-6)
	assert.Equal(t, uint64(19000000), got.SourceBlock)
	assert.Equal(t, int64(1700000000), got.SourceTimestamp.Unix())

	req := graph.last()
	assert.Contains(t, req.Query, "pool(id: $id, block: $block)")
	assert.Equal(t, usdcWethPool, req.Variables["id"])
	assert.Equal(t, map[string]interface{}{"number": float64(18990000)}, req.Variables["block"])
	assert.Equal(t, "Bearer key", graph.auth[0])
}

func TestFetchPoolCanonicalizesReversedTokens(t *testing.T) {
	reversed := strings.NewReplacer(usdc, "TMP", weth, usdc).Replace(poolJSON)
	reversed = strings.ReplaceAll(reversed, "TMP", weth)
	graph := &fakeGraph{respond: func(graphRequest) string {
		return `{"data": {"pool": ` + reversed + `, "_meta": {"block": {"number": 1, "timestamp": 1}}}}`
	}}
	client := newTestClient(t, graph)

	got, err := client.FetchPool(context.Background(), 1, usdcWethPool, nil)
	require.NoError(t, err)
	assert.Equal(t, usdc, got.Pool.Token0.Address)
	assert.Equal(t, "WETH", got.Pool.Token0.Symbol)
	assert.Equal(t, int32(-197000), got.Pool.Tick)
	assert.Equal(t, "1567896123451230000000000000000000000000", got.Pool.FeeGrowthGlobal0X128.Dec())
	assert.NotContains(t, graph.last().Variables, "block")
}

func TestFetchPoolNotFound(t *testing.T) {
	graph := &fakeGraph{respond: func(graphRequest) string {
		return `{"data": {"pool": null, "_meta": {"block": {"number": 1, "timestamp": 1}}}}`
	}}
	client := newTestClient(t, graph)

	_, err := client.FetchPool(context.Background(), 1, usdcWethPool, nil)
	assert.ErrorIs(t, err, model.ErrPoolNotFound)
}

func TestFetchPoolGraphError(t *testing.T) {
	graph := &fakeGraph{respond: func(graphRequest) string {
		return `{"errors": [{"message": "indexing_error"}]}`
	}}
	client := newTestClient(t, graph)

	_, err := client.FetchPool(context.Background(), 1, usdcWethPool, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing_error")
}

func TestFetchTick(t *testing.T) {
	graph := &fakeGraph{respond: func(req graphRequest) string {
		if req.Variables["id"] == usdcWethPool+"#-60" {
			return `{"data": {"tick": null}}`
		}
		return `{"data": {"tick": {"tickIdx": "120", "feeGrowthOutside0X128": "700", "feeGrowthOutside1X128": "900", "liquidityGross": "10", "liquidityNet": "-10"}}}`
	}}
	client := newTestClient(t, graph)

	snap, err := client.FetchTick(context.Background(), 1, usdcWethPool, 120, nil)
	require.NoError(t, err)
	assert.True(t, snap.Initialized)
	assert.Equal(t, "700", snap.FeeGrowthOutside0X128.Dec())
	assert.Equal(t, "-10", snap.LiquidityNet)
	assert.Equal(t, usdcWethPool+"#120", graph.last().Variables["id"])

	snap, err = client.FetchTick(context.Background(), 1, usdcWethPool, -60, nil)
	require.NoError(t, err)
	assert.False(t, snap.Initialized)
	assert.True(t, snap.FeeGrowthOutside1X128.IsZero())
}

func TestMeta(t *testing.T) {
	graph := &fakeGraph{respond: func(graphRequest) string {
		return `{"data": {"_meta": {"block": {"number": 123, "timestamp": 1700000000}}}}`
	}}
	client := newTestClient(t, graph)

	meta, err := client.Meta(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), meta.BlockNumber)
	assert.Equal(t, int64(1700000000), meta.Timestamp.Unix())
}

func TestUnknownChain(t *testing.T) {
	client := New(Config{})
	_, err := client.Meta(context.Background(), 10)
	assert.ErrorContains(t, err, "no subgraph endpoint for chain 10")
}

func TestSearchPools(t *testing.T) {
	graph := &fakeGraph{respond: func(graphRequest) string {
		return `{"data": {"pools": [` + poolJSON + `, {"id": "0xbad", "feeTier": "x"}]}}`
	}}
	client := newTestClient(t, graph)

	pools, err := client.SearchPools(context.Background(), 1, "usdc", 0)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, usdcWethPool, pools[0].ID)

	req := graph.last()
	assert.Equal(t, float64(defaultSearchLimit), req.Variables["first"])
	where := req.Variables["where"].(map[string]interface{})
	assert.Len(t, where["or"], 4)

	_, err = client.SearchPools(context.Background(), 1, strings.ToUpper(usdc), 500)
	require.NoError(t, err)
	req = graph.last()
	assert.Equal(t, float64(maxPoolsLimit), req.Variables["first"])
	or := req.Variables["where"].(map[string]interface{})["or"].([]interface{})
	assert.Equal(t, map[string]interface{}{"id": strings.ToLower(usdc)}, or[0])

	_, err = client.SearchPools(context.Background(), 1, "  ", 10)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestPopularPools(t *testing.T) {
	graph := &fakeGraph{respond: func(graphRequest) string {
		return `{"data": {"pools": [` + poolJSON + `]}}`
	}}
	client := newTestClient(t, graph)

	pools, err := client.PopularPools(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
	where := graph.last().Variables["where"].(map[string]interface{})
	assert.Equal(t, "1000", where["totalValueLockedUSD_gt"])
}

func TestPoolByTokensSortsAddresses(t *testing.T) {
	var empty atomic.Bool
	graph := &fakeGraph{respond: func(graphRequest) string {
		if empty.Load() {
			return `{"data": {"pools": []}}`
		}
		return `{"data": {"pools": [` + poolJSON + `]}}`
	}}
	client := newTestClient(t, graph)

	pool, err := client.PoolByTokens(context.Background(), 1, weth, strings.ToUpper(usdc), 500)
	require.NoError(t, err)
	assert.Equal(t, usdcWethPool, pool.ID)
	where := graph.last().Variables["where"].(map[string]interface{})
	assert.Equal(t, usdc, where["token0"])
	assert.Equal(t, weth, where["token1"])
	assert.Equal(t, "500", where["feeTier"])

	empty.Store(true)
	_, err = client.PoolByTokens(context.Background(), 1, usdc, weth, 3000)
	assert.ErrorIs(t, err, model.ErrPoolNotFound)
}

// Package subgraph reads Uniswap V3 pool and tick state from The Graph.
package subgraph

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"

	"rangeScope/internal/model"
)

//go:embed queries/pool.graphql
var poolQuery string

//go:embed queries/tick.graphql
var tickQuery string

//go:embed queries/meta.graphql
var metaQuery string

//go:embed queries/pools.graphql
var poolsQuery string

const (
	defaultSearchLimit = 20
	maxPoolsLimit      = 100
	popularMinTVL      = "1000"
)

// Config configures the subgraph client.
type Config struct {
	// Endpoints maps chain id to subgraph URL.
	Endpoints  map[uint64]string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries per-chain subgraphs.
type Client struct {
	endpoints  map[uint64]string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[uint64]*graphql.Client
}

// New creates a subgraph client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoints:  cfg.Endpoints,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		clients:    make(map[uint64]*graphql.Client),
	}
}

// FetchPool returns the pool at atBlock, or at the indexed head when atBlock is nil.
func (c *Client) FetchPool(ctx context.Context, chainID uint64, poolID string, atBlock *uint64) (model.IndexedPool, error) {
	req := c.newRequest(poolQuery)
	req.Var("id", model.NormalizePoolID(poolID))
	setBlock(req, atBlock)

	var resp struct {
		Pool *poolResponse `json:"pool"`
		Meta metaResponse  `json:"_meta"`
	}
	if err := c.run(ctx, chainID, req, &resp); err != nil {
		return model.IndexedPool{}, err
	}
	if resp.Pool == nil {
		return model.IndexedPool{}, fmt.Errorf("chain %d pool %s: %w", chainID, poolID, model.ErrPoolNotFound)
	}

	pool, err := resp.Pool.toPool(chainID)
	if err != nil {
		return model.IndexedPool{}, fmt.Errorf("decode pool %s: %w", poolID, err)
	}
	meta := resp.Meta.toMeta()
	return model.IndexedPool{
		Pool:            pool,
		SourceBlock:     meta.BlockNumber,
		SourceTimestamp: meta.Timestamp,
	}, nil
}

// FetchTick returns the tick boundary state. Ticks the subgraph has never
// seen are uninitialized.
func (c *Client) FetchTick(ctx context.Context, chainID uint64, poolID string, tick int32, atBlock *uint64) (model.TickSnapshot, error) {
	req := c.newRequest(tickQuery)
	req.Var("id", tickID(poolID, tick))
	setBlock(req, atBlock)

	var resp struct {
		Tick *tickResponse `json:"tick"`
	}
	if err := c.run(ctx, chainID, req, &resp); err != nil {
		return model.TickSnapshot{}, err
	}
	if resp.Tick == nil {
		return model.EmptyTick(tick), nil
	}
	snap, err := resp.Tick.toSnapshot(tick)
	if err != nil {
		return model.TickSnapshot{}, fmt.Errorf("decode tick %s: %w", tickID(poolID, tick), err)
	}
	return snap, nil
}

// Meta returns the indexed head block.
func (c *Client) Meta(ctx context.Context, chainID uint64) (model.SourceMeta, error) {
	var resp struct {
		Meta metaResponse `json:"_meta"`
	}
	if err := c.run(ctx, chainID, c.newRequest(metaQuery), &resp); err != nil {
		return model.SourceMeta{}, err
	}
	return resp.Meta.toMeta(), nil
}

// SearchPools finds pools by token symbol, token name, or address.
func (c *Client) SearchPools(ctx context.Context, chainID uint64, query string, limit int) ([]model.Pool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", model.ErrInvalidInput)
	}
	return c.queryPools(ctx, chainID, searchFilter(query), clampLimit(limit))
}

// PopularPools lists the deepest pools by TVL.
func (c *Client) PopularPools(ctx context.Context, chainID uint64, limit int) ([]model.Pool, error) {
	where := map[string]interface{}{"totalValueLockedUSD_gt": popularMinTVL}
	return c.queryPools(ctx, chainID, where, clampLimit(limit))
}

// PoolByTokens returns the pool for a token pair and fee tier. The token
// order of the arguments does not matter.
func (c *Client) PoolByTokens(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (model.Pool, error) {
	tokens := []string{model.NormalizePoolID(tokenA), model.NormalizePoolID(tokenB)}
	sort.Strings(tokens)
	where := map[string]interface{}{
		"token0":  tokens[0],
		"token1":  tokens[1],
		"feeTier": fmt.Sprintf("%d", fee),
	}
	pools, err := c.queryPools(ctx, chainID, where, 1)
	if err != nil {
		return model.Pool{}, err
	}
	if len(pools) == 0 {
		return model.Pool{}, fmt.Errorf("chain %d pair %s/%s fee %d: %w", chainID, tokens[0], tokens[1], fee, model.ErrPoolNotFound)
	}
	return pools[0], nil
}

func (c *Client) queryPools(ctx context.Context, chainID uint64, where map[string]interface{}, limit int) ([]model.Pool, error) {
	req := c.newRequest(poolsQuery)
	req.Var("first", limit)
	req.Var("where", where)

	var resp struct {
		Pools []poolResponse `json:"pools"`
	}
	if err := c.run(ctx, chainID, req, &resp); err != nil {
		return nil, err
	}

	pools := make([]model.Pool, 0, len(resp.Pools))
	for _, raw := range resp.Pools {
		pool, err := raw.toPool(chainID)
		if err != nil {
			c.logger.Debug("skip undecodable pool", zap.String("pool", raw.ID), zap.Error(err))
			continue
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func (c *Client) newRequest(query string) *graphql.Request {
	req := graphql.NewRequest(query)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req
}

func (c *Client) run(ctx context.Context, chainID uint64, req *graphql.Request, resp interface{}) error {
	client, err := c.client(chainID)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := client.Run(ctx, req, resp); err != nil {
		return fmt.Errorf("subgraph query on chain %d: %w", chainID, err)
	}
	c.logger.Debug("subgraph query", zap.Uint64("chain_id", chainID), zap.Duration("took", time.Since(start)))
	return nil
}

func (c *Client) client(chainID uint64) (*graphql.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chainID]; ok {
		return client, nil
	}
	url, ok := c.endpoints[chainID]
	if !ok || url == "" {
		return nil, fmt.Errorf("no subgraph endpoint for chain %d", chainID)
	}
	client := graphql.NewClient(url, graphql.WithHTTPClient(c.httpClient))
	c.clients[chainID] = client
	return client, nil
}

func setBlock(req *graphql.Request, atBlock *uint64) {
	if atBlock == nil {
		return
	}
	req.Var("block", map[string]interface{}{"number": *atBlock})
}

func searchFilter(query string) map[string]interface{} {
	if len(query) == 42 && strings.HasPrefix(strings.ToLower(query), "0x") {
		address := strings.ToLower(query)
		return map[string]interface{}{
			"or": []map[string]interface{}{
				{"id": address},
				{"token0": address},
				{"token1": address},
			},
		}
	}
	return map[string]interface{}{
		"or": []map[string]interface{}{
			{"token0_": map[string]interface{}{"symbol_contains_nocase": query}},
			{"token1_": map[string]interface{}{"symbol_contains_nocase": query}},
			{"token0_": map[string]interface{}{"name_contains_nocase": query}},
			{"token1_": map[string]interface{}{"name_contains_nocase": query}},
		},
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxPoolsLimit {
		return maxPoolsLimit
	}
	return limit
}

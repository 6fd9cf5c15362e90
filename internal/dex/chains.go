package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rangeScope/internal/model"
)

// ChainClient is the slice of an RPC client the multi-chain reader needs.
type ChainClient interface {
	ContractCaller
	LatestBlockNumber(ctx context.Context) (uint64, error)
	EstimateBlockAt(ctx context.Context, at time.Time) (uint64, error)
}

// Dialer returns the client for a chain.
type Dialer func(ctx context.Context, chainID uint64) (ChainClient, error)

// ChainReader serves direct contract reads for every configured chain.
type ChainReader struct {
	dial   Dialer
	known  map[uint64][]model.Token
	logger *zap.Logger

	mu      sync.Mutex
	clients map[uint64]ChainClient
	readers map[uint64]*Reader
}

// NewChainReader creates a multi-chain reader. known seeds token metadata
// per chain.
func NewChainReader(dial Dialer, known map[uint64][]model.Token, logger *zap.Logger) *ChainReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainReader{
		dial:    dial,
		known:   known,
		logger:  logger,
		clients: make(map[uint64]ChainClient),
		readers: make(map[uint64]*Reader),
	}
}

// ReadPoolState loads pool state at atBlock, or at the latest block when nil.
func (c *ChainReader) ReadPoolState(ctx context.Context, chainID uint64, poolID string, atBlock *uint64) (model.Pool, error) {
	address, err := model.ParseAddress(poolID)
	if err != nil {
		return model.Pool{}, err
	}
	_, reader, err := c.reader(ctx, chainID)
	if err != nil {
		return model.Pool{}, err
	}
	pool, err := reader.ReadPool(ctx, address, blockArg(atBlock))
	if err != nil {
		return model.Pool{}, err
	}
	return pool.Canonical(), nil
}

// ReadTick loads one tick boundary at atBlock.
func (c *ChainReader) ReadTick(ctx context.Context, chainID uint64, poolID string, tick int32, atBlock *uint64) (model.TickSnapshot, error) {
	address, err := model.ParseAddress(poolID)
	if err != nil {
		return model.TickSnapshot{}, err
	}
	_, reader, err := c.reader(ctx, chainID)
	if err != nil {
		return model.TickSnapshot{}, err
	}
	return reader.ReadTick(ctx, address, tick, blockArg(atBlock))
}

// LatestBlock returns the chain head.
func (c *ChainReader) LatestBlock(ctx context.Context, chainID uint64) (uint64, error) {
	client, _, err := c.reader(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return client.LatestBlockNumber(ctx)
}

// EstimateBlockAt returns a block close to the given time.
func (c *ChainReader) EstimateBlockAt(ctx context.Context, chainID uint64, at time.Time) (uint64, error) {
	client, _, err := c.reader(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return client.EstimateBlockAt(ctx, at)
}

// LatestRound reads a price feed on a chain.
func (c *ChainReader) LatestRound(ctx context.Context, chainID uint64, feed string) (LatestRound, error) {
	if !common.IsHexAddress(feed) {
		return LatestRound{}, fmt.Errorf("invalid feed address: %s", feed)
	}
	_, reader, err := c.reader(ctx, chainID)
	if err != nil {
		return LatestRound{}, err
	}
	return reader.ReadLatestRound(ctx, common.HexToAddress(feed))
}

func (c *ChainReader) reader(ctx context.Context, chainID uint64) (ChainClient, *Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reader, ok := c.readers[chainID]; ok {
		return c.clients[chainID], reader, nil
	}
	if c.dial == nil {
		return nil, nil, fmt.Errorf("no chain dialer configured")
	}
	client, err := c.dial(ctx, chainID)
	if err != nil {
		return nil, nil, err
	}
	reader := NewReader(client, chainID, c.known[chainID], c.logger.With(zap.Uint64("chain_id", chainID)))
	c.clients[chainID] = client
	c.readers[chainID] = reader
	return client, reader, nil
}

func blockArg(atBlock *uint64) *big.Int {
	if atBlock == nil {
		return nil
	}
	return new(big.Int).SetUint64(*atBlock)
}

package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// maxTimestamps bounds the block timestamp memo of a client.
const maxTimestamps = 1024

// Client is an RPC connection to one chain. It answers head and historical
// block lookups and read-only contract calls.
type Client struct {
	chainID   uint64
	rpcClient *rpc.Client
	eth       *ethclient.Client
	blockTime time.Duration

	mu         sync.RWMutex
	timestamps map[uint64]uint64
}

// NewClient dials rpcURL and checks that the endpoint serves chainID.
// blockTime is the average block interval used to estimate historical
// block numbers.
func NewClient(ctx context.Context, chainID uint64, rpcURL string, blockTime time.Duration) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	eth := ethclient.NewClient(rpcClient)

	remote, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	if !remote.IsUint64() || remote.Uint64() != chainID {
		rpcClient.Close()
		return nil, fmt.Errorf("endpoint serves chain %s, want %d", remote, chainID)
	}
	if blockTime <= 0 {
		blockTime = 2 * time.Second
	}

	return &Client{
		chainID:    chainID,
		rpcClient:  rpcClient,
		eth:        eth,
		blockTime:  blockTime,
		timestamps: make(map[uint64]uint64),
	}, nil
}

// ChainID returns the chain the client is connected to.
func (c *Client) ChainID() uint64 { return c.chainID }

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// LatestBlockNumber returns the head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.timestamps[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	c.remember(number, header.Time)
	return header.Time, nil
}

// remember memoizes a block timestamp. When the memo is full the oldest
// block is dropped.
func (c *Client) remember(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timestamps[number]; ok {
		return
	}
	if len(c.timestamps) >= maxTimestamps {
		oldest := number
		for n := range c.timestamps {
			if n < oldest {
				oldest = n
			}
		}
		if oldest == number {
			return
		}
		delete(c.timestamps, oldest)
	}
	c.timestamps[number] = ts
}

// EstimateBlockAt returns a block number whose timestamp is close to at.
// The first guess uses the average block interval; one refinement step
// corrects it using the observed timestamp of the guessed block.
func (c *Client) EstimateBlockAt(ctx context.Context, at time.Time) (uint64, error) {
	latest, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("latest header: %w", err)
	}
	head := latest.Number.Uint64()
	c.remember(head, latest.Time)

	target := at.Unix()
	guess := stepBack(head, int64(latest.Time)-target, c.blockTime)
	if guess == head {
		return head, nil
	}

	ts, err := c.blockTimestamp(ctx, guess)
	if err != nil {
		return 0, fmt.Errorf("block %d timestamp: %w", guess, err)
	}
	return stepBack(guess, int64(ts)-target, c.blockTime), nil
}

// CallContract performs an eth_call, at the head when blockNumber is nil.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// stepBack moves from block by delta seconds (positive is backwards) and
// clamps the result to block 1.
func stepBack(block uint64, deltaSeconds int64, blockTime time.Duration) uint64 {
	blocks := int64(time.Duration(deltaSeconds) * time.Second / blockTime)
	next := int64(block) - blocks
	if next < 1 {
		return 1
	}
	return uint64(next)
}

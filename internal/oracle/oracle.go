// Package oracle prices a chain's native currency in the quote currency.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rangeScope/internal/dex"
)

// ErrNoPrice is returned when no price is known for a chain.
var ErrNoPrice = errors.New("no native price")

// PriceOracle returns the price of one unit of native currency.
type PriceOracle interface {
	NativePriceInQuote(ctx context.Context, chainID uint64) (float64, error)
}

// Static serves configured prices.
type Static struct {
	prices map[uint64]float64
}

// NewStatic creates a static oracle.
func NewStatic(prices map[uint64]float64) *Static {
	return &Static{prices: prices}
}

// NativePriceInQuote implements PriceOracle.
func (s *Static) NativePriceInQuote(_ context.Context, chainID uint64) (float64, error) {
	price, ok := s.prices[chainID]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("chain %d: %w", chainID, ErrNoPrice)
	}
	return price, nil
}

// FeedReader reads the latest answer of an on-chain price feed.
type FeedReader interface {
	LatestRound(ctx context.Context, chainID uint64, feed string) (dex.LatestRound, error)
}

// ChainlinkConfig configures the feed oracle.
type ChainlinkConfig struct {
	// Feeds maps chain id to the native/USD aggregator address.
	Feeds map[uint64]string
	// MaxAge rejects answers older than this. Zero disables the check.
	MaxAge time.Duration
	// CacheFor reuses an answer for this long.
	CacheFor time.Duration
	// Fallback is consulted when the feed cannot be used.
	Fallback PriceOracle
	Now      func() time.Time
	Logger   *zap.Logger
}

type cachedPrice struct {
	price   float64
	fetched time.Time
}

// Chainlink reads latestRoundData from aggregator contracts.
type Chainlink struct {
	reader FeedReader
	cfg    ChainlinkConfig

	mu    sync.Mutex
	cache map[uint64]cachedPrice
}

// NewChainlink creates a feed oracle.
func NewChainlink(reader FeedReader, cfg ChainlinkConfig) *Chainlink {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Chainlink{reader: reader, cfg: cfg, cache: make(map[uint64]cachedPrice)}
}

// NativePriceInQuote implements PriceOracle.
func (c *Chainlink) NativePriceInQuote(ctx context.Context, chainID uint64) (float64, error) {
	now := c.cfg.Now()

	c.mu.Lock()
	cached, ok := c.cache[chainID]
	c.mu.Unlock()
	if ok && now.Sub(cached.fetched) < c.cfg.CacheFor {
		return cached.price, nil
	}

	price, err := c.read(ctx, chainID, now)
	if err != nil {
		if c.cfg.Fallback == nil {
			return 0, err
		}
		c.cfg.Logger.Warn("price feed unusable, using fallback", zap.Uint64("chain_id", chainID), zap.Error(err))
		return c.cfg.Fallback.NativePriceInQuote(ctx, chainID)
	}

	c.mu.Lock()
	c.cache[chainID] = cachedPrice{price: price, fetched: now}
	c.mu.Unlock()
	return price, nil
}

func (c *Chainlink) read(ctx context.Context, chainID uint64, now time.Time) (float64, error) {
	feed, ok := c.cfg.Feeds[chainID]
	if !ok || feed == "" {
		return 0, fmt.Errorf("chain %d has no price feed: %w", chainID, ErrNoPrice)
	}
	if c.reader == nil {
		return 0, fmt.Errorf("no feed reader: %w", ErrNoPrice)
	}

	round, err := c.reader.LatestRound(ctx, chainID, feed)
	if err != nil {
		return 0, fmt.Errorf("read feed %s: %w", feed, err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return 0, fmt.Errorf("feed %s returned non-positive answer: %w", feed, ErrNoPrice)
	}
	if c.cfg.MaxAge > 0 && now.Sub(round.UpdatedAt) > c.cfg.MaxAge {
		return 0, fmt.Errorf("feed %s last updated %s: %w", feed, round.UpdatedAt.Format(time.RFC3339), ErrNoPrice)
	}
	return round.Price(), nil
}

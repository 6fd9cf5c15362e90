// Package source chooses between the indexed source and direct chain reads
// for each fee window.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rangeScope/internal/model"
)

// DefaultLagThreshold is the indexed-source lag above which direct reads are
// preferred.
const DefaultLagThreshold = 30 * time.Minute

// IndexedSource serves pool and tick state from an indexer.
type IndexedSource interface {
	FetchPool(ctx context.Context, chainID uint64, poolID string, atBlock *uint64) (model.IndexedPool, error)
	FetchTick(ctx context.Context, chainID uint64, poolID string, tick int32, atBlock *uint64) (model.TickSnapshot, error)
	Meta(ctx context.Context, chainID uint64) (model.SourceMeta, error)
}

// ChainReader serves pool and tick state from contract storage.
type ChainReader interface {
	ReadPoolState(ctx context.Context, chainID uint64, poolID string, atBlock *uint64) (model.Pool, error)
	ReadTick(ctx context.Context, chainID uint64, poolID string, tick int32, atBlock *uint64) (model.TickSnapshot, error)
	LatestBlock(ctx context.Context, chainID uint64) (uint64, error)
	EstimateBlockAt(ctx context.Context, chainID uint64, at time.Time) (uint64, error)
}

// Recorder receives source selection events.
type Recorder interface {
	SourceFallback(chainID uint64, reason string)
	SourceLag(chainID uint64, lag time.Duration)
}

// Config configures the arbiter.
type Config struct {
	LagThreshold time.Duration
	// BlockTimes is the average block interval per chain, used to place
	// historical indexed queries.
	BlockTimes map[uint64]time.Duration
	Now        func() time.Time
	Logger     *zap.Logger
	Recorder   Recorder
}

// Arbiter fetches window observations, preferring the indexed source and
// falling back to direct chain reads.
type Arbiter struct {
	indexed IndexedSource
	chain   ChainReader

	lagThreshold time.Duration
	blockTimes   map[uint64]time.Duration
	now          func() time.Time
	logger       *zap.Logger
	recorder     Recorder
}

// NewArbiter creates an arbiter. Either source may be nil, in which case
// only the other branch is tried.
func NewArbiter(indexed IndexedSource, chain ChainReader, cfg Config) *Arbiter {
	if cfg.LagThreshold <= 0 {
		cfg.LagThreshold = DefaultLagThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Arbiter{
		indexed:      indexed,
		chain:        chain,
		lagThreshold: cfg.LagThreshold,
		blockTimes:   cfg.BlockTimes,
		now:          cfg.Now,
		logger:       cfg.Logger,
		recorder:     cfg.Recorder,
	}
}

// Range identifies the pool and tick bounds being observed.
type Range struct {
	ChainID   uint64
	PoolID    string
	TickLower int32
	TickUpper int32
}

// Observe returns the data for one window. It makes at most one attempt on
// the indexed source and one on the chain.
func (a *Arbiter) Observe(ctx context.Context, r Range, window model.Window) (WindowObservation, error) {
	logger := a.logger.With(
		zap.Uint64("chain_id", r.ChainID),
		zap.String("pool", r.PoolID),
		zap.Stringer("window", window),
	)

	var (
		primary    WindowObservation
		primaryErr error
		stale      *StaleDataError
	)
	if a.indexed != nil {
		primary, primaryErr = a.observeIndexed(ctx, r, window)
		if primaryErr == nil && primary.LagSeconds > int64(a.lagThreshold/time.Second) {
			stale = &StaleDataError{
				ChainID:   r.ChainID,
				Lag:       time.Duration(primary.LagSeconds) * time.Second,
				Threshold: a.lagThreshold,
			}
		}
		if primaryErr == nil && stale == nil {
			return primary, nil
		}
	} else {
		primaryErr = errors.New("no indexed source configured")
	}

	reason := "error"
	if stale != nil {
		reason = "stale"
		logger.Warn("indexed source stale, reading chain", zap.Int64("lag_seconds", primary.LagSeconds))
	} else {
		if errors.Is(primaryErr, ErrPoolNotFound) {
			reason = "not_found"
		}
		logger.Info("indexed source failed, reading chain", zap.Error(primaryErr))
	}
	a.recordFallback(r.ChainID, reason)

	if a.chain == nil {
		if stale != nil {
			primary.Advisories = append(primary.Advisories, stale)
			return primary, nil
		}
		return WindowObservation{}, fmt.Errorf("%w: indexed: %v; no chain reader configured", ErrSourceUnavailable, primaryErr)
	}

	direct, directErr := a.observeDirect(ctx, r, window)
	if directErr == nil {
		if stale != nil {
			direct.Advisories = append(direct.Advisories, stale)
		}
		return direct, nil
	}

	if stale != nil {
		// Old data beats no data.
		logger.Warn("chain read failed, using stale indexed data", zap.Error(directErr))
		primary.Advisories = append(primary.Advisories, stale)
		return primary, nil
	}
	if errors.Is(directErr, ErrPoolNotFound) && (a.indexed == nil || errors.Is(primaryErr, ErrPoolNotFound)) {
		return WindowObservation{}, fmt.Errorf("chain %d pool %s: %w", r.ChainID, r.PoolID, ErrPoolNotFound)
	}
	return WindowObservation{}, fmt.Errorf("%w: indexed: %v; direct: %v", ErrSourceUnavailable, primaryErr, directErr)
}

func (a *Arbiter) observeIndexed(ctx context.Context, r Range, window model.Window) (WindowObservation, error) {
	current, err := a.indexed.FetchPool(ctx, r.ChainID, r.PoolID, nil)
	if err != nil {
		return WindowObservation{}, err
	}
	if !current.Pool.Complete() {
		return WindowObservation{}, fmt.Errorf("indexed pool %s is incomplete", r.PoolID)
	}

	lag := int64(0)
	if !current.SourceTimestamp.IsZero() {
		lag = int64(a.now().Sub(current.SourceTimestamp) / time.Second)
		if lag < 0 {
			lag = 0
		}
	}
	if a.recorder != nil {
		a.recorder.SourceLag(r.ChainID, time.Duration(lag)*time.Second)
	}

	head := current.SourceBlock
	if head == 0 {
		return WindowObservation{}, fmt.Errorf("indexed pool %s has no source block", r.PoolID)
	}
	histBlock := HistoricalBlock(head, window.Duration(), a.blockTime(r.ChainID))
	historical, err := a.indexed.FetchPool(ctx, r.ChainID, r.PoolID, &histBlock)
	if err != nil {
		return WindowObservation{}, fmt.Errorf("historical pool at block %d: %w", histBlock, err)
	}
	if !historical.Pool.Complete() {
		return WindowObservation{}, fmt.Errorf("indexed pool %s is incomplete at block %d", r.PoolID, histBlock)
	}

	ticks, err := a.fetchTicks(ctx, r, &head, &histBlock, a.indexed.FetchTick)
	if err != nil {
		return WindowObservation{}, err
	}

	return WindowObservation{
		Window:          window,
		Current:         Indexed{Pool: current.Pool, Block: head, LagSeconds: lag},
		Historical:      Indexed{Pool: historical.Pool, Block: histBlock, LagSeconds: lag},
		CurrentLower:    ticks[0],
		CurrentUpper:    ticks[1],
		HistoricalLower: ticks[2],
		HistoricalUpper: ticks[3],
		LagSeconds:      lag,
	}, nil
}

func (a *Arbiter) observeDirect(ctx context.Context, r Range, window model.Window) (WindowObservation, error) {
	head, err := a.chain.LatestBlock(ctx, r.ChainID)
	if err != nil {
		return WindowObservation{}, fmt.Errorf("latest block: %w", err)
	}
	histBlock, err := a.chain.EstimateBlockAt(ctx, r.ChainID, a.now().Add(-window.Duration()))
	if err != nil {
		return WindowObservation{}, fmt.Errorf("estimate block: %w", err)
	}

	current, err := a.chain.ReadPoolState(ctx, r.ChainID, r.PoolID, &head)
	if err != nil {
		return WindowObservation{}, fmt.Errorf("pool at block %d: %w", head, err)
	}
	historical, err := a.chain.ReadPoolState(ctx, r.ChainID, r.PoolID, &histBlock)
	if err != nil {
		return WindowObservation{}, fmt.Errorf("pool at block %d: %w", histBlock, err)
	}

	ticks, err := a.fetchTicks(ctx, r, &head, &histBlock, a.chain.ReadTick)
	if err != nil {
		return WindowObservation{}, err
	}

	return WindowObservation{
		Window:          window,
		Current:         Direct{Pool: current, Block: head},
		Historical:      Direct{Pool: historical, Block: histBlock},
		CurrentLower:    ticks[0],
		CurrentUpper:    ticks[1],
		HistoricalLower: ticks[2],
		HistoricalUpper: ticks[3],
		UsedFallback:    true,
	}, nil
}

type tickFetcher func(ctx context.Context, chainID uint64, poolID string, tick int32, atBlock *uint64) (model.TickSnapshot, error)

// fetchTicks returns lower/upper at head followed by lower/upper at hist.
func (a *Arbiter) fetchTicks(ctx context.Context, r Range, head, hist *uint64, fetch tickFetcher) ([4]model.TickSnapshot, error) {
	var out [4]model.TickSnapshot
	points := []struct {
		tick  int32
		block *uint64
	}{
		{r.TickLower, head},
		{r.TickUpper, head},
		{r.TickLower, hist},
		{r.TickUpper, hist},
	}
	for i, p := range points {
		snap, err := fetch(ctx, r.ChainID, r.PoolID, p.tick, p.block)
		if err != nil {
			return out, fmt.Errorf("tick %d: %w", p.tick, err)
		}
		out[i] = snap
	}
	return out, nil
}

func (a *Arbiter) blockTime(chainID uint64) time.Duration {
	if bt, ok := a.blockTimes[chainID]; ok && bt > 0 {
		return bt
	}
	return 12 * time.Second
}

func (a *Arbiter) recordFallback(chainID uint64, reason string) {
	if a.recorder != nil {
		a.recorder.SourceFallback(chainID, reason)
	}
}

// HistoricalBlock returns the block roughly lookback before head, never
// below block 1.
func HistoricalBlock(head uint64, lookback, blockTime time.Duration) uint64 {
	if blockTime <= 0 {
		return head
	}
	back := uint64(lookback / blockTime)
	if back >= head {
		return 1
	}
	return head - back
}

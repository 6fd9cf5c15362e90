// Package calculator computes the projected return of a liquidity position.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"rangeScope/internal/cache"
	"rangeScope/internal/model"
	"rangeScope/internal/oracle"
	"rangeScope/internal/projection"
	"rangeScope/internal/source"
	"rangeScope/internal/v3math"
)

const (
	DefaultFreshness    = 5 * time.Minute
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Source observes one fee window. source.Arbiter implements it.
type Source interface {
	Observe(ctx context.Context, r source.Range, window model.Window) (source.WindowObservation, error)
}

// ResultSink records computed results.
type ResultSink interface {
	SaveResult(ctx context.Context, input model.PositionInput, result model.APRResult) error
}

// Recorder receives calculation outcomes.
type Recorder interface {
	Calculation(outcome string, took time.Duration)
	WindowDegraded(window string)
}

// Config configures a Calculator.
type Config struct {
	// Freshness bounds the age of a cached result's ComputedAt.
	Freshness    time.Duration
	CacheTTL     time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	// WrappedNative maps chain id to the wrapped native token symbol.
	WrappedNative map[uint64]string
	Now           func() time.Time
	Logger        *zap.Logger
	Recorder      Recorder
}

// Calculator wires the source, price oracle, cache and history sink.
type Calculator struct {
	source  Source
	oracle  oracle.PriceOracle
	results *cache.Cache[model.APRResult]
	sink    ResultSink
	cfg     Config
	group   singleflight.Group
}

// New creates a calculator. results and sink may be nil.
func New(src Source, prices oracle.PriceOracle, results *cache.Cache[model.APRResult], sink ResultSink, cfg Config) *Calculator {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Calculator{source: src, oracle: prices, results: results, sink: sink, cfg: cfg}
}

// CacheKey identifies a position and its deposit in the result cache.
func CacheKey(input model.PositionInput) string {
	key := cache.PositionKey(input.ChainID, input.PoolID, input.TickLower, input.TickUpper)
	if input.Deposit.IsUSD() {
		return key + ":usd=" + strconv.FormatFloat(*input.Deposit.USD, 'f', -1, 64)
	}
	amount0, amount1, err := input.Deposit.Amounts()
	if err != nil {
		return key
	}
	return key + ":amt=" + amount0.Dec() + "," + amount1.Dec()
}

// Calculate returns the projected return of a position. Invalid input is
// rejected before any data is fetched. Concurrent calls for the same
// position share one computation.
func (c *Calculator) Calculate(ctx context.Context, input model.PositionInput) (model.APRResult, error) {
	start := time.Now()
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		c.record("invalid", start)
		return model.APRResult{}, err
	}

	key := CacheKey(input)
	if cached, ok := c.cached(ctx, key); ok {
		c.record("cache_hit", start)
		return cached, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		if cached, ok := c.cached(ctx, key); ok {
			return cached, nil
		}
		result, err := c.compute(ctx, input)
		if err != nil {
			return model.APRResult{}, err
		}
		c.store(ctx, key, input, result)
		return result, nil
	})
	if err != nil {
		c.record("failed", start)
		return model.APRResult{}, err
	}
	if shared {
		c.cfg.Logger.Debug("shared in-flight calculation", zap.String("key", key))
	}
	c.record("computed", start)
	return v.(model.APRResult), nil
}

func (c *Calculator) cached(ctx context.Context, key string) (model.APRResult, bool) {
	if c.results == nil {
		return model.APRResult{}, false
	}
	result, ok := c.results.Get(ctx, key)
	if !ok {
		return model.APRResult{}, false
	}
	if c.cfg.Now().Sub(result.ComputedAt) > c.cfg.Freshness {
		return model.APRResult{}, false
	}
	return result, true
}

func (c *Calculator) store(ctx context.Context, key string, input model.PositionInput, result model.APRResult) {
	if c.results != nil {
		c.results.Set(ctx, key, result, c.cfg.CacheTTL)
	}
	if c.sink != nil {
		if err := c.sink.SaveResult(ctx, input, result); err != nil {
			c.cfg.Logger.Warn("save result history failed", zap.String("key", key), zap.Error(err))
		}
	}
}

type windowOutcome struct {
	obs source.WindowObservation
	err error
}

func (c *Calculator) compute(ctx context.Context, input model.PositionInput) (model.APRResult, error) {
	r := source.Range{
		ChainID:   input.ChainID,
		PoolID:    input.PoolID,
		TickLower: input.TickLower,
		TickUpper: input.TickUpper,
	}

	var outcomes []windowOutcome
	err := withRetry(ctx, c.cfg.MaxAttempts-1, c.cfg.RetryBackoff, retryable, func(ctx context.Context) error {
		outcomes = c.observeAll(ctx, r)
		return allFailed(outcomes)
	})
	if err != nil {
		return model.APRResult{}, fmt.Errorf("no fee data for pool %s on chain %d: %w", input.PoolID, input.ChainID, err)
	}

	current, ok := currentPool(outcomes)
	if !ok {
		return model.APRResult{}, fmt.Errorf("no current state for pool %s", input.PoolID)
	}

	p, err := c.priceTokens(ctx, current)
	if err != nil {
		return model.APRResult{}, fmt.Errorf("value pool %s: %w", input.PoolID, err)
	}

	liquidity, positionValue, err := c.positionLiquidity(input, current, p)
	if err != nil {
		return model.APRResult{}, err
	}

	var advisories []string
	if p.advisory != "" {
		advisories = append(advisories, p.advisory)
	}
	if liquidity.IsZero() {
		advisories = append(advisories, "deposit yields zero liquidity in this range")
	}

	windows := make([]model.FeeWindowResult, 0, len(outcomes))
	for i, w := range model.Windows {
		out := outcomes[i]
		if out.err != nil {
			c.cfg.Logger.Warn("window degraded to zero fees",
				zap.Stringer("window", w), zap.String("pool", input.PoolID), zap.Error(out.err))
			if c.cfg.Recorder != nil {
				c.cfg.Recorder.WindowDegraded(w.String())
			}
			windows = append(windows, model.ZeroWindow(w, out.err))
			advisories = append(advisories, fmt.Sprintf("%s: %v", w, out.err))
			continue
		}
		for _, adv := range out.obs.Advisories {
			advisories = append(advisories, fmt.Sprintf("%s: %v", w, adv))
		}
		res, err := windowFees(input, out.obs, liquidity, current, p)
		if err != nil {
			windows = append(windows, model.ZeroWindow(w, err))
			advisories = append(advisories, fmt.Sprintf("%s: %v", w, err))
			continue
		}
		windows = append(windows, res)
	}

	positionFloat, _ := positionValue.Float64()
	result := projection.Project(windows, positionFloat, c.cfg.Now())
	result.ChainID = input.ChainID
	result.PoolID = input.PoolID
	result.TickLower = input.TickLower
	result.TickUpper = input.TickUpper
	result.Liquidity = liquidity
	result.Advisories = advisories
	return result, nil
}

// observeAll fetches every window concurrently. Each window keeps its own
// observation or error.
func (c *Calculator) observeAll(ctx context.Context, r source.Range) []windowOutcome {
	outcomes := make([]windowOutcome, len(model.Windows))
	var wg sync.WaitGroup
	for i, w := range model.Windows {
		wg.Add(1)
		go func(i int, w model.Window) {
			defer wg.Done()
			obs, err := c.source.Observe(ctx, r, w)
			outcomes[i] = windowOutcome{obs: obs, err: err}
		}(i, w)
	}
	wg.Wait()
	return outcomes
}

func (c *Calculator) positionLiquidity(input model.PositionInput, pool model.Pool, p prices) (*uint256.Int, decimal.Decimal, error) {
	var (
		amount0, amount1 *uint256.Int
		value            decimal.Decimal
		err              error
	)
	if input.Deposit.IsUSD() {
		amount0, amount1, err = splitDeposit(*input.Deposit.USD, pool, p)
		if err != nil {
			return nil, decimal.Zero, err
		}
		value = decimal.NewFromFloat(*input.Deposit.USD)
	} else {
		amount0, amount1, err = input.Deposit.Amounts()
		if err != nil {
			return nil, decimal.Zero, err
		}
		value = tokenValue(amount0, pool.Token0.Decimals, p.token0).
			Add(tokenValue(amount1, pool.Token1.Decimals, p.token1))
	}

	sqrtA, err := v3math.SqrtRatioAtTick(input.TickLower)
	if err != nil {
		return nil, decimal.Zero, err
	}
	sqrtB, err := v3math.SqrtRatioAtTick(input.TickUpper)
	if err != nil {
		return nil, decimal.Zero, err
	}
	liquidity, err := v3math.LiquidityForAmounts(pool.SqrtPriceX96, sqrtA, sqrtB, amount0, amount1)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("position liquidity: %w", err)
	}
	return liquidity, value, nil
}

func windowFees(input model.PositionInput, obs source.WindowObservation, liquidity *uint256.Int, valuation model.Pool, p prices) (model.FeeWindowResult, error) {
	current := source.PoolOf(obs.Current)
	historical := source.PoolOf(obs.Historical)

	end0, end1 := v3math.PoolFeeGrowthInside(current, input.TickLower, input.TickUpper, obs.CurrentLower, obs.CurrentUpper)
	start0, start1 := v3math.PoolFeeGrowthInside(historical, input.TickLower, input.TickUpper, obs.HistoricalLower, obs.HistoricalUpper)

	fees0, fees1, err := v3math.FeesFromLiquidity(liquidity, start0, start1, end0, end1)
	if err != nil {
		return model.FeeWindowResult{}, fmt.Errorf("fees: %w", err)
	}

	quote0 := tokenValue(fees0, valuation.Token0.Decimals, p.token0)
	quote1 := tokenValue(fees1, valuation.Token1.Decimals, p.token1)
	q0, _ := quote0.Float64()
	q1, _ := quote1.Float64()
	total, _ := quote0.Add(quote1).Float64()

	return model.FeeWindowResult{
		Window:             obs.Window,
		GrowthInsideStart0: start0,
		GrowthInsideStart1: start1,
		GrowthInsideEnd0:   end0,
		GrowthInsideEnd1:   end1,
		Fees0:              fees0,
		Fees1:              fees1,
		Fees0Quote:         q0,
		Fees1Quote:         q1,
		TotalQuote:         total,
		LagSeconds:         obs.LagSeconds,
		UsedFallback:       obs.UsedFallback,
	}, nil
}

// currentPool picks the freshest current snapshot, preferring the shortest
// window.
func currentPool(outcomes []windowOutcome) (model.Pool, bool) {
	for _, out := range outcomes {
		if out.err == nil && out.obs.Current != nil {
			return source.PoolOf(out.obs.Current), true
		}
	}
	return model.Pool{}, false
}

// allFailed returns the first window error when no window succeeded.
func allFailed(outcomes []windowOutcome) error {
	var first error
	for _, out := range outcomes {
		if out.err == nil {
			return nil
		}
		if first == nil {
			first = out.err
		}
	}
	return first
}

func retryable(err error) bool {
	return !errors.Is(err, source.ErrPoolNotFound) &&
		!errors.Is(err, model.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled)
}

func (c *Calculator) record(outcome string, start time.Time) {
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.Calculation(outcome, time.Since(start))
	}
}

package subgraph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"rangeScope/internal/model"
	"rangeScope/internal/v3math"
)

type tokenResponse struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals string `json:"decimals"`
}

type poolResponse struct {
	ID                   string        `json:"id"`
	Token0               tokenResponse `json:"token0"`
	Token1               tokenResponse `json:"token1"`
	FeeTier              string        `json:"feeTier"`
	SqrtPrice            string        `json:"sqrtPrice"`
	Liquidity            string        `json:"liquidity"`
	Tick                 *string       `json:"tick"`
	FeeGrowthGlobal0X128 string        `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 string        `json:"feeGrowthGlobal1X128"`
	VolumeUSD            string        `json:"volumeUSD"`
	FeesUSD              string        `json:"feesUSD"`
	TotalValueLockedUSD  string        `json:"totalValueLockedUSD"`
}

type tickResponse struct {
	TickIdx               string `json:"tickIdx"`
	FeeGrowthOutside0X128 string `json:"feeGrowthOutside0X128"`
	FeeGrowthOutside1X128 string `json:"feeGrowthOutside1X128"`
	LiquidityGross        string `json:"liquidityGross"`
	LiquidityNet          string `json:"liquidityNet"`
}

type metaResponse struct {
	Block struct {
		Number    uint64 `json:"number"`
		Timestamp *int64 `json:"timestamp"`
	} `json:"block"`
}

func (m metaResponse) toMeta() model.SourceMeta {
	meta := model.SourceMeta{BlockNumber: m.Block.Number}
	if m.Block.Timestamp != nil {
		meta.Timestamp = time.Unix(*m.Block.Timestamp, 0).UTC()
	}
	return meta
}

func (t tokenResponse) toToken(chainID uint64) (model.Token, error) {
	decimals, err := strconv.ParseUint(t.Decimals, 10, 8)
	if err != nil {
		return model.Token{}, fmt.Errorf("token %s decimals %q: %w", t.ID, t.Decimals, err)
	}
	return model.Token{
		Address:  strings.ToLower(t.ID),
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: uint8(decimals),
		ChainID:  chainID,
	}, nil
}

// toPool converts a subgraph pool into a canonical model.Pool.
func (p poolResponse) toPool(chainID uint64) (model.Pool, error) {
	token0, err := p.Token0.toToken(chainID)
	if err != nil {
		return model.Pool{}, err
	}
	token1, err := p.Token1.toToken(chainID)
	if err != nil {
		return model.Pool{}, err
	}
	fee, err := strconv.ParseUint(p.FeeTier, 10, 32)
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool %s feeTier %q: %w", p.ID, p.FeeTier, err)
	}

	pool := model.Pool{
		ID:          model.NormalizePoolID(p.ID),
		ChainID:     chainID,
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(fee),
		TickSpacing: v3math.TickSpacingForFee(uint32(fee)),
		TVLUSD:      parseFloat(p.TotalValueLockedUSD),
		VolumeUSD:   parseFloat(p.VolumeUSD),
		FeesUSD:     parseFloat(p.FeesUSD),
	}
	if pool.SqrtPriceX96, err = parseUint256("sqrtPrice", p.SqrtPrice); err != nil {
		return model.Pool{}, err
	}
	if pool.Liquidity, err = parseUint256("liquidity", p.Liquidity); err != nil {
		return model.Pool{}, err
	}
	if pool.FeeGrowthGlobal0X128, err = parseUint256("feeGrowthGlobal0X128", p.FeeGrowthGlobal0X128); err != nil {
		return model.Pool{}, err
	}
	if pool.FeeGrowthGlobal1X128, err = parseUint256("feeGrowthGlobal1X128", p.FeeGrowthGlobal1X128); err != nil {
		return model.Pool{}, err
	}
	// A pool that was created but never initialized has a null tick.
	if p.Tick != nil {
		tick, err := strconv.ParseInt(*p.Tick, 10, 32)
		if err != nil {
			return model.Pool{}, fmt.Errorf("pool %s tick %q: %w", p.ID, *p.Tick, err)
		}
		pool.Tick = int32(tick)
	}

	return pool.Canonical(), nil
}

func (t tickResponse) toSnapshot(tick int32) (model.TickSnapshot, error) {
	snap := model.TickSnapshot{Tick: tick, LiquidityNet: t.LiquidityNet, Initialized: true}
	var err error
	if snap.FeeGrowthOutside0X128, err = parseUint256("feeGrowthOutside0X128", t.FeeGrowthOutside0X128); err != nil {
		return model.TickSnapshot{}, err
	}
	if snap.FeeGrowthOutside1X128, err = parseUint256("feeGrowthOutside1X128", t.FeeGrowthOutside1X128); err != nil {
		return model.TickSnapshot{}, err
	}
	if snap.LiquidityGross, err = parseUint256("liquidityGross", t.LiquidityGross); err != nil {
		return model.TickSnapshot{}, err
	}
	if snap.LiquidityNet == "" {
		snap.LiquidityNet = "0"
	}
	return snap, nil
}

func parseUint256(field, value string) (*uint256.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s: missing", field)
	}
	out, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", field, value, err)
	}
	return out, nil
}

// parseFloat reads a BigDecimal field; unparsable values count as zero.
func parseFloat(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

// tickID is the subgraph entity id of a tick.
func tickID(poolID string, tick int32) string {
	return model.NormalizePoolID(poolID) + "#" + strconv.FormatInt(int64(tick), 10)
}

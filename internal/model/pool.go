package model

import (
	"github.com/holiman/uint256"
)

// Pool is a point-in-time snapshot of a V3 pool. Protocol integers use
// fixed-width 256-bit values; fee growth accumulators wrap on overflow.
type Pool struct {
	ID                   string       `json:"id"`
	ChainID              uint64       `json:"chain_id"`
	Token0               Token        `json:"token0"`
	Token1               Token        `json:"token1"`
	Fee                  uint32       `json:"fee"`
	TickSpacing          int32        `json:"tick_spacing"`
	SqrtPriceX96         *uint256.Int `json:"sqrt_price_x96"`
	Liquidity            *uint256.Int `json:"liquidity"`
	Tick                 int32        `json:"tick"`
	FeeGrowthGlobal0X128 *uint256.Int `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 *uint256.Int `json:"fee_growth_global1_x128"`
	TVLUSD               float64      `json:"tvl_usd"`
	VolumeUSD            float64      `json:"volume_usd"`
	FeesUSD              float64      `json:"fees_usd"`
}

var q192 = new(uint256.Int).Lsh(uint256.NewInt(1), 192)

// Canonical returns a copy of the pool whose tokens are in ascending address
// order. When the tokens had to be swapped, the per-token accumulators are
// swapped too, the tick is negated and the sqrt price is inverted.
func (p Pool) Canonical() Pool {
	out := p.clone()
	if !p.Token1.Less(p.Token0) {
		return out
	}

	out.Token0, out.Token1 = p.Token1, p.Token0
	out.FeeGrowthGlobal0X128, out.FeeGrowthGlobal1X128 = out.FeeGrowthGlobal1X128, out.FeeGrowthGlobal0X128
	out.Tick = -p.Tick
	if out.SqrtPriceX96 != nil && !out.SqrtPriceX96.IsZero() {
		out.SqrtPriceX96 = new(uint256.Int).Div(q192, out.SqrtPriceX96)
	}
	return out
}

// Complete reports whether every field needed for fee accounting is present.
func (p Pool) Complete() bool {
	return p.ID != "" &&
		p.SqrtPriceX96 != nil &&
		p.Liquidity != nil &&
		p.FeeGrowthGlobal0X128 != nil &&
		p.FeeGrowthGlobal1X128 != nil
}

func (p Pool) clone() Pool {
	out := p
	out.SqrtPriceX96 = cloneInt(p.SqrtPriceX96)
	out.Liquidity = cloneInt(p.Liquidity)
	out.FeeGrowthGlobal0X128 = cloneInt(p.FeeGrowthGlobal0X128)
	out.FeeGrowthGlobal1X128 = cloneInt(p.FeeGrowthGlobal1X128)
	return out
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

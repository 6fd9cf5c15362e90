package model

import "github.com/holiman/uint256"

const (
	MinTick = -887272
	MaxTick = 887272

	// DefaultTickSpacing is used to derive full-range ticks when the pool's
	// own spacing is unknown.
	DefaultTickSpacing = 60
)

// TickSnapshot is the state recorded at one initialized tick boundary.
type TickSnapshot struct {
	Tick                  int32        `json:"tick"`
	FeeGrowthOutside0X128 *uint256.Int `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128 *uint256.Int `json:"fee_growth_outside1_x128"`
	LiquidityGross        *uint256.Int `json:"liquidity_gross"`
	LiquidityNet          string       `json:"liquidity_net"`
	Initialized           bool         `json:"initialized"`
}

// EmptyTick returns the snapshot of an uninitialized tick.
func EmptyTick(tick int32) TickSnapshot {
	return TickSnapshot{
		Tick:                  tick,
		FeeGrowthOutside0X128: new(uint256.Int),
		FeeGrowthOutside1X128: new(uint256.Int),
		LiquidityGross:        new(uint256.Int),
		LiquidityNet:          "0",
	}
}

// FullRangeTicks returns the widest usable ticks for a spacing.
func FullRangeTicks(spacing int32) (int32, int32) {
	if spacing <= 0 {
		spacing = DefaultTickSpacing
	}
	return (MinTick / spacing) * spacing, (MaxTick / spacing) * spacing
}

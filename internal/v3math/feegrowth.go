package v3math

import (
	"github.com/holiman/uint256"

	"rangeScope/internal/model"
)

// FeeGrowthInside returns the per-liquidity fee growth accrued inside
// [tickLower, tickUpper) for both tokens. Subtraction wraps modulo 2^256,
// matching the on-chain accumulators.
func FeeGrowthInside(
	tickLower int32,
	tickUpper int32,
	currentTick int32,
	global0 *uint256.Int,
	global1 *uint256.Int,
	lower model.TickSnapshot,
	upper model.TickSnapshot,
) (*uint256.Int, *uint256.Int) {
	inside0 := growthInside(tickLower, tickUpper, currentTick, global0, lower.FeeGrowthOutside0X128, upper.FeeGrowthOutside0X128)
	inside1 := growthInside(tickLower, tickUpper, currentTick, global1, lower.FeeGrowthOutside1X128, upper.FeeGrowthOutside1X128)
	return inside0, inside1
}

// PoolFeeGrowthInside applies FeeGrowthInside to a pool snapshot.
func PoolFeeGrowthInside(pool model.Pool, tickLower, tickUpper int32, lower, upper model.TickSnapshot) (*uint256.Int, *uint256.Int) {
	return FeeGrowthInside(tickLower, tickUpper, pool.Tick, pool.FeeGrowthGlobal0X128, pool.FeeGrowthGlobal1X128, lower, upper)
}

func growthInside(tickLower, tickUpper, currentTick int32, global, outsideLower, outsideUpper *uint256.Int) *uint256.Int {
	global = orZero(global)
	outsideLower = orZero(outsideLower)
	outsideUpper = orZero(outsideUpper)

	below := new(uint256.Int)
	if currentTick >= tickLower {
		below.Set(outsideLower)
	} else {
		below.Sub(global, outsideLower)
	}

	above := new(uint256.Int)
	if currentTick < tickUpper {
		above.Set(outsideUpper)
	} else {
		above.Sub(global, outsideUpper)
	}

	inside := new(uint256.Int).Sub(global, below)
	return inside.Sub(inside, above)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

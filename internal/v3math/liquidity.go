package v3math

import (
	"fmt"

	"github.com/holiman/uint256"
)

const maxLiquidityBits = 128

func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, domainErrorf("division by zero")
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: mulDiv %s*%s/%s", ErrOverflow, x, y, d)
	}
	return out, nil
}

func sortedBounds(sqrtA, sqrtB *uint256.Int) (*uint256.Int, *uint256.Int) {
	if sqrtA.Gt(sqrtB) {
		return sqrtB, sqrtA
	}
	return sqrtA, sqrtB
}

// LiquidityForAmount0 returns the liquidity supplied by amount0 over
// [sqrtA, sqrtB].
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortedBounds(sqrtA, sqrtB)
	width := new(uint256.Int).Sub(sqrtB, sqrtA)
	if width.IsZero() {
		return nil, domainErrorf("empty price range")
	}
	intermediate, err := mulDiv(sqrtA, sqrtB, Q96)
	if err != nil {
		return nil, err
	}
	return mulDiv(amount0, intermediate, width)
}

// LiquidityForAmount1 returns the liquidity supplied by amount1 over
// [sqrtA, sqrtB].
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortedBounds(sqrtA, sqrtB)
	width := new(uint256.Int).Sub(sqrtB, sqrtA)
	if width.IsZero() {
		return nil, domainErrorf("empty price range")
	}
	return mulDiv(amount1, Q96, width)
}

// LiquidityForAmounts returns the largest liquidity the two amounts can
// back at sqrtPrice. Below the range only amount0 counts, above it only
// amount1, and inside it the scarcer side binds.
func LiquidityForAmounts(sqrtPrice, sqrtA, sqrtB, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortedBounds(sqrtA, sqrtB)

	var (
		liquidity *uint256.Int
		err       error
	)
	switch {
	case !sqrtPrice.Gt(sqrtA):
		liquidity, err = LiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtPrice.Lt(sqrtB):
		var l0, l1 *uint256.Int
		if l0, err = LiquidityForAmount0(sqrtPrice, sqrtB, amount0); err != nil {
			return nil, err
		}
		if l1, err = LiquidityForAmount1(sqrtA, sqrtPrice, amount1); err != nil {
			return nil, err
		}
		liquidity = l0
		if l1.Lt(l0) {
			liquidity = l1
		}
	default:
		liquidity, err = LiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
	if err != nil {
		return nil, err
	}
	if liquidity.BitLen() > maxLiquidityBits {
		return nil, fmt.Errorf("%w: liquidity %s exceeds uint128", ErrOverflow, liquidity)
	}
	return liquidity, nil
}

// Amount0ForLiquidity returns the token0 amount backing liquidity over
// [sqrtA, sqrtB], rounded down.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortedBounds(sqrtA, sqrtB)
	if sqrtA.IsZero() {
		return nil, domainErrorf("zero sqrt price")
	}
	shifted := new(uint256.Int).Lsh(liquidity, 96)
	width := new(uint256.Int).Sub(sqrtB, sqrtA)
	out, err := mulDiv(shifted, width, sqrtB)
	if err != nil {
		return nil, err
	}
	return out.Div(out, sqrtA), nil
}

// Amount1ForLiquidity returns the token1 amount backing liquidity over
// [sqrtA, sqrtB], rounded down.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	sqrtA, sqrtB = sortedBounds(sqrtA, sqrtB)
	width := new(uint256.Int).Sub(sqrtB, sqrtA)
	return mulDiv(liquidity, width, Q96)
}

// AmountsForLiquidity is the inverse of LiquidityForAmounts.
func AmountsForLiquidity(sqrtPrice, sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	sqrtA, sqrtB = sortedBounds(sqrtA, sqrtB)

	switch {
	case !sqrtPrice.Gt(sqrtA):
		amount0, err := Amount0ForLiquidity(sqrtA, sqrtB, liquidity)
		return amount0, new(uint256.Int), err
	case sqrtPrice.Lt(sqrtB):
		amount0, err := Amount0ForLiquidity(sqrtPrice, sqrtB, liquidity)
		if err != nil {
			return nil, nil, err
		}
		amount1, err := Amount1ForLiquidity(sqrtA, sqrtPrice, liquidity)
		if err != nil {
			return nil, nil, err
		}
		return amount0, amount1, nil
	default:
		amount1, err := Amount1ForLiquidity(sqrtA, sqrtB, liquidity)
		return new(uint256.Int), amount1, err
	}
}

// FeesFromLiquidity returns liquidity * (end - start) / 2^128 per token,
// floored, with wrapping subtraction of the growth values.
func FeesFromLiquidity(liquidity, start0, start1, end0, end1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	fees0, err := feesFromGrowth(liquidity, start0, end0)
	if err != nil {
		return nil, nil, fmt.Errorf("token0 fees: %w", err)
	}
	fees1, err := feesFromGrowth(liquidity, start1, end1)
	if err != nil {
		return nil, nil, fmt.Errorf("token1 fees: %w", err)
	}
	return fees0, fees1, nil
}

func feesFromGrowth(liquidity, start, end *uint256.Int) (*uint256.Int, error) {
	delta := new(uint256.Int).Sub(orZero(end), orZero(start))
	return mulDiv(orZero(liquidity), delta, Q128)
}

package calculator

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"rangeScope/internal/model"
	"rangeScope/internal/v3math"
)

// prices holds the quote value of one whole token of each side.
type prices struct {
	token0 decimal.Decimal
	token1 decimal.Decimal
	// advisory is set when neither side has a known quote value.
	advisory string
}

// priceTokens values both pool tokens in the quote currency. A stable side
// is worth one unit; a wrapped-native side is priced by the oracle; the
// other side follows from the pool price.
func (c *Calculator) priceTokens(ctx context.Context, pool model.Pool) (prices, error) {
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.IsZero() {
		return prices{}, fmt.Errorf("pool %s has no price", pool.ID)
	}
	// token1 per token0, decimal adjusted.
	raw := v3math.PriceFromSqrtPriceX96(pool.SqrtPriceX96, pool.Token0.Decimals, pool.Token1.Decimals)
	if raw <= 0 {
		return prices{}, fmt.Errorf("pool %s price underflows", pool.ID)
	}
	price := decimal.NewFromFloat(raw)
	one := decimal.NewFromInt(1)

	switch {
	case v3math.IsStable(pool.Token1):
		return prices{token0: price, token1: one}, nil
	case v3math.IsStable(pool.Token0):
		return prices{token0: one, token1: one.DivRound(price, 18)}, nil
	}

	wrapped := c.wrappedNative(pool.ChainID)
	switch {
	case strings.EqualFold(pool.Token1.Symbol, wrapped):
		native, err := c.oracle.NativePriceInQuote(ctx, pool.ChainID)
		if err != nil {
			return prices{}, fmt.Errorf("native price: %w", err)
		}
		n := decimal.NewFromFloat(native)
		return prices{token0: price.Mul(n), token1: n}, nil
	case strings.EqualFold(pool.Token0.Symbol, wrapped):
		native, err := c.oracle.NativePriceInQuote(ctx, pool.ChainID)
		if err != nil {
			return prices{}, fmt.Errorf("native price: %w", err)
		}
		n := decimal.NewFromFloat(native)
		return prices{token0: n, token1: n.DivRound(price, 18)}, nil
	}

	return prices{
		token0:   price,
		token1:   one,
		advisory: fmt.Sprintf("no quote price for %s/%s: values are in %s", pool.Token0.Symbol, pool.Token1.Symbol, pool.Token1.Symbol),
	}, nil
}

func (c *Calculator) wrappedNative(chainID uint64) string {
	if symbol, ok := c.cfg.WrappedNative[chainID]; ok && symbol != "" {
		return symbol
	}
	return "WETH"
}

// tokenValue returns amount raw units of a token worth unitPrice each.
func tokenValue(amount *uint256.Int, decimals uint8, unitPrice decimal.Decimal) decimal.Decimal {
	if amount == nil || amount.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).Mul(unitPrice)
}

// splitDeposit converts a quote amount into raw token amounts, half on
// each side.
func splitDeposit(usd float64, pool model.Pool, p prices) (*uint256.Int, *uint256.Int, error) {
	if !p.token0.IsPositive() || !p.token1.IsPositive() {
		return nil, nil, fmt.Errorf("cannot split deposit without positive token prices")
	}
	half := decimal.NewFromFloat(usd).Div(decimal.NewFromInt(2))
	amount0, err := toRaw(half.DivRound(p.token0, 36), pool.Token0.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("token0 amount: %w", err)
	}
	amount1, err := toRaw(half.DivRound(p.token1, 36), pool.Token1.Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("token1 amount: %w", err)
	}
	return amount0, amount1, nil
}

func toRaw(amount decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	raw := amount.Shift(int32(decimals)).Floor().BigInt()
	out, overflow := uint256.FromBig(raw)
	if overflow || raw.Sign() < 0 {
		return nil, fmt.Errorf("amount %s out of range", amount.String())
	}
	return out, nil
}

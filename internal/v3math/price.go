package v3math

import (
	"math"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"rangeScope/internal/model"
)

// tickSnapTolerance bounds the float error of a tick recovered from
// PriceFromTick, which stays below 1e-9 ticks over the whole domain.
const tickSnapTolerance = 1e-6

var (
	stableSymbols  = map[string]struct{}{"USDC": {}, "USDT": {}, "DAI": {}, "BUSD": {}, "FRAX": {}}
	wrappedSymbols = map[string]struct{}{"WETH": {}, "WBTC": {}}

	q96Float = math.Ldexp(1, 96)

	// logTickBase is ln(1.0001).
	logTickBase = math.Log1p(1e-4)
)

// PriceFromTick returns 1.0001^tick.
func PriceFromTick(tick int32) float64 {
	return math.Exp(float64(tick) * logTickBase)
}

// TickFromPrice returns the tick whose price is closest below price. Results
// within tickSnapTolerance of an integer snap to it so PriceFromTick
// round-trips.
func TickFromPrice(price float64) (int32, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, domainErrorf("price %v must be positive and finite", price)
	}

	raw := math.Log(price) / logTickBase
	tick := math.Floor(raw)
	if nearest := math.Round(raw); math.Abs(raw-nearest) < tickSnapTolerance {
		tick = nearest
	}
	if tick < MinTick || tick > MaxTick {
		return 0, domainErrorf("price %v maps outside the tick domain", price)
	}
	return int32(tick), nil
}

func decimalAdjustment(token0, token1 model.Token) float64 {
	return math.Pow(10, float64(int(token0.Decimals)-int(token1.Decimals)))
}

// ReadablePrice returns the token1-per-token0 price of a tick corrected for
// token decimals, or token0-per-token1 when invert is set.
func ReadablePrice(tick int32, token0, token1 model.Token, invert bool) float64 {
	price := PriceFromTick(tick) * decimalAdjustment(token0, token1)
	if invert {
		return 1 / price
	}
	return price
}

// TickFromReadablePrice is the inverse of ReadablePrice.
func TickFromReadablePrice(price float64, token0, token1 model.Token, invert bool) (int32, error) {
	if invert {
		if price == 0 {
			return 0, domainErrorf("price must be positive")
		}
		price = 1 / price
	}
	return TickFromPrice(price / decimalAdjustment(token0, token1))
}

// PriceFromSqrtPriceX96 converts a packed sqrt price into a decimal-corrected
// token1-per-token0 price.
func PriceFromSqrtPriceX96(sqrtPriceX96 *uint256.Int, decimals0, decimals1 uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return 0
	}
	ratio := sqrtPriceX96.Float64() / q96Float
	return ratio * ratio * math.Pow(10, float64(int(decimals0)-int(decimals1)))
}

// DisplayShouldInvert reports whether a pair reads better as token0 per
// token1. A stable token is preferred as the quote side, then a wrapped
// native token as the base side.
func DisplayShouldInvert(token0, token1 model.Token) bool {
	stable0, stable1 := isStable(token0), isStable(token1)
	switch {
	case stable1 && !stable0:
		return false
	case stable0 && !stable1:
		return true
	case isWrapped(token1) && !isWrapped(token0):
		return true
	default:
		return false
	}
}

// IsStable reports whether the token is a recognized stable-value token.
func IsStable(token model.Token) bool {
	return isStable(token)
}

// IsWrappedNative reports whether the token is a recognized wrapped token.
func IsWrappedNative(token model.Token) bool {
	return isWrapped(token)
}

func isStable(token model.Token) bool {
	_, ok := stableSymbols[strings.ToUpper(token.Symbol)]
	return ok
}

func isWrapped(token model.Token) bool {
	_, ok := wrappedSymbols[strings.ToUpper(token.Symbol)]
	return ok
}

// FormatPrice renders a price with a precision suited to its magnitude.
func FormatPrice(price float64, maxDecimals int) string {
	switch {
	case price == 0:
		return "0"
	case price < 0.000001:
		return strconv.FormatFloat(price, 'e', 3, 64)
	case price > 1_000_000:
		return strconv.FormatFloat(price/1_000_000, 'f', 2, 64) + "M"
	case price > 1_000:
		return strconv.FormatFloat(price/1_000, 'f', 2, 64) + "K"
	}

	places := -int(math.Floor(math.Log10(math.Abs(price)))) + 3
	if places < 0 {
		places = 0
	}
	if places > maxDecimals {
		places = maxDecimals
	}
	return strconv.FormatFloat(price, 'f', places, 64)
}

package v3math

import (
	"github.com/holiman/uint256"
)

// Q128 multipliers for sqrt(1.0001)^-(2^i), i = 1..19.
var tickRatios = [...]*uint256.Int{
	hexInt("0xfff97272373d413259a46990580e213a"),
	hexInt("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	hexInt("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	hexInt("0xffcb9843d60f6159c9db58835c926644"),
	hexInt("0xff973b41fa98c081472e6896dfb254c0"),
	hexInt("0xff2ea16466c96a3843ec78b326b52861"),
	hexInt("0xfe5dee046a99a2a811c461f1969c3053"),
	hexInt("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	hexInt("0xf987a7253ac413176f2b074cf7815e54"),
	hexInt("0xf3392b0822b70005940c7a398e4b70f3"),
	hexInt("0xe7159475a2c29b7443b29c7fa6e889d9"),
	hexInt("0xd097f3bdfd2022b8845ad8f792aa5825"),
	hexInt("0xa9f746462d870fdf8a65dc1f90e061e5"),
	hexInt("0x70d869a156d2a1b890bb3df62baf32f7"),
	hexInt("0x31be135f97d08fd981231505542fcfa6"),
	hexInt("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	hexInt("0x5d6af8dedb81196699c329225ee604"),
	hexInt("0x2216e584f5fa1ea926041bedfe98"),
	hexInt("0x48a170391f7dc42444e8fa2"),
}

var (
	oddTickRatio = hexInt("0xfffcb933bd6fad37aa2d162d1a594001")
	lowMask32    = uint256.NewInt(0xffffffff)
)

func hexInt(s string) *uint256.Int {
	v, err := uint256.FromHex(s)
	if err != nil {
		panic(err)
	}
	return v
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value, bit-exact with
// the on-chain TickMath library.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, domainErrorf("tick %d out of range", tick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&0x1 != 0 {
		ratio.Set(oddTickRatio)
	} else {
		ratio.Set(Q128)
	}
	for i, mul := range tickRatios {
		if absTick&(1<<uint(i+1)) != 0 {
			ratio.Mul(ratio, mul)
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128.128 to Q64.96, rounding up.
	roundUp := !new(uint256.Int).And(ratio, lowMask32).IsZero()
	ratio.Rsh(ratio, 32)
	if roundUp {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// MustSqrtRatioAtTick is SqrtRatioAtTick for ticks already known to be valid.
func MustSqrtRatioAtTick(tick int32) *uint256.Int {
	ratio, err := SqrtRatioAtTick(tick)
	if err != nil {
		panic(err)
	}
	return ratio
}

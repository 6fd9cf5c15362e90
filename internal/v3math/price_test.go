package v3math

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"

	"rangeScope/internal/model"
)

func TestTickPriceRoundTrip(t *testing.T) {
	for tick := int32(MinTick); tick <= MaxTick; tick++ {
		got, err := TickFromPrice(PriceFromTick(tick))
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if got != tick {
			t.Fatalf("round trip mismatch: %d -> %d", tick, got)
		}
	}
}

func TestTickFromPriceErrorWithinTolerance(t *testing.T) {
	worst := 0.0
	for tick := int32(MinTick); tick <= MaxTick; tick += 13 {
		raw := math.Log(PriceFromTick(tick)) / logTickBase
		if d := math.Abs(raw - float64(tick)); d > worst {
			worst = d
		}
	}
	if worst > tickSnapTolerance/100 {
		t.Fatalf("worst tick error %v too close to tolerance %v", worst, tickSnapTolerance)
	}
}

func TestReadableTickRoundTrip(t *testing.T) {
	usdc := model.Token{Symbol: "USDC", Decimals: 6}
	weth := model.Token{Symbol: "WETH", Decimals: 18}
	for tick := int32(-400000); tick <= 400000; tick += 7 {
		for _, invert := range []bool{false, true} {
			price := ReadablePrice(tick, usdc, weth, invert)
			got, err := TickFromReadablePrice(price, usdc, weth, invert)
			if err != nil {
				t.Fatalf("tick %d invert %v: %v", tick, invert, err)
			}
			if got != tick {
				t.Fatalf("readable round trip mismatch (invert %v): %d -> %d", invert, tick, got)
			}
		}
	}
}

func TestTickFromPriceFloorsBetweenTicks(t *testing.T) {
	price := math.Sqrt(PriceFromTick(10) * PriceFromTick(11))
	tick, err := TickFromPrice(price)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick != 10 {
		t.Fatalf("expected floor to 10, got %d", tick)
	}

	price = math.Sqrt(PriceFromTick(-11) * PriceFromTick(-10))
	if tick, _ = TickFromPrice(price); tick != -11 {
		t.Fatalf("expected floor to -11, got %d", tick)
	}
}

func TestTickFromPriceDomain(t *testing.T) {
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := TickFromPrice(price); !errors.Is(err, ErrDomain) {
			t.Fatalf("price %v: expected ErrDomain, got %v", price, err)
		}
	}
}

func TestReadablePrice(t *testing.T) {
	usdc := model.Token{Symbol: "USDC", Decimals: 6}
	weth := model.Token{Symbol: "WETH", Decimals: 18}

	// token0 USDC, token1 WETH; tick for 1 WETH = 2000 USDC.
	tick, err := TickFromReadablePrice(2000, usdc, weth, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ReadablePrice(tick, usdc, weth, true)
	if math.Abs(got-2000)/2000 > 1e-3 {
		t.Fatalf("readable price mismatch: %v", got)
	}
	if direct := ReadablePrice(tick, usdc, weth, false); math.Abs(direct*got-1) > 1e-12 {
		t.Fatalf("inverted price should be the reciprocal: %v * %v", direct, got)
	}
}

func TestPriceFromSqrtPriceX96(t *testing.T) {
	sqrt := new(uint256.Int).Lsh(uint256.NewInt(1), 97)
	if got := PriceFromSqrtPriceX96(sqrt, 18, 18); got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
	if got := PriceFromSqrtPriceX96(sqrt, 18, 6); math.Abs(got-4e12)/4e12 > 1e-12 {
		t.Fatalf("expected 4e12, got %v", got)
	}
	if got := PriceFromSqrtPriceX96(nil, 18, 6); got != 0 {
		t.Fatalf("expected 0 for nil, got %v", got)
	}
}

func TestDisplayShouldInvert(t *testing.T) {
	tok := func(symbol string) model.Token { return model.Token{Symbol: symbol} }
	cases := []struct {
		token0, token1 string
		want           bool
	}{
		{"WETH", "USDC", false},
		{"USDC", "WETH", true},
		{"USDC", "USDT", false},
		{"UNI", "WETH", true},
		{"WETH", "UNI", false},
		{"WBTC", "WETH", false},
		{"UNI", "LINK", false},
		{"dai", "link", true},
	}
	for _, tc := range cases {
		if got := DisplayShouldInvert(tok(tc.token0), tok(tc.token1)); got != tc.want {
			t.Fatalf("%s/%s: got %v want %v", tc.token0, tc.token1, got, tc.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[float64]string{
		0:          "0",
		0.00000012: "1.200e-07",
		2500000:    "2.50M",
		1234.5:     "1.23K",
		1.5:        "1.500",
		0.0123:     "0.01230",
	}
	for price, want := range cases {
		if got := FormatPrice(price, 6); got != want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", price, got, want)
		}
	}
}

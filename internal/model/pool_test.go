package model

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
)

func TestPoolCanonicalSwapsReversedTokens(t *testing.T) {
	sqrt := new(uint256.Int).Lsh(uint256.NewInt(1), 97) // price 4
	pool := Pool{
		ID:                   "0xpool",
		Token0:               Token{Address: "0xB000000000000000000000000000000000000000", Symbol: "B"},
		Token1:               Token{Address: "0xa000000000000000000000000000000000000000", Symbol: "A"},
		SqrtPriceX96:         sqrt,
		Liquidity:            uint256.NewInt(10),
		Tick:                 13863,
		FeeGrowthGlobal0X128: uint256.NewInt(1),
		FeeGrowthGlobal1X128: uint256.NewInt(2),
	}

	canonical := pool.Canonical()
	if canonical.Token0.Symbol != "A" || canonical.Token1.Symbol != "B" {
		t.Fatalf("tokens not swapped: %s %s", canonical.Token0.Symbol, canonical.Token1.Symbol)
	}
	if canonical.Tick != -13863 {
		t.Fatalf("tick not negated: %d", canonical.Tick)
	}
	if canonical.FeeGrowthGlobal0X128.Uint64() != 2 || canonical.FeeGrowthGlobal1X128.Uint64() != 1 {
		t.Fatalf("accumulators not swapped")
	}
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 95)
	if !canonical.SqrtPriceX96.Eq(want) {
		t.Fatalf("sqrt price not inverted: %s", canonical.SqrtPriceX96)
	}
	if !pool.SqrtPriceX96.Eq(sqrt) || pool.Token0.Symbol != "B" {
		t.Fatalf("original pool mutated")
	}
}

func TestPoolCanonicalKeepsSortedTokens(t *testing.T) {
	pool := Pool{
		Token0:       Token{Address: "0x1"},
		Token1:       Token{Address: "0x2"},
		SqrtPriceX96: uint256.NewInt(7),
		Tick:         5,
	}
	canonical := pool.Canonical()
	if canonical.Tick != 5 || canonical.SqrtPriceX96.Uint64() != 7 {
		t.Fatalf("sorted pool changed: %+v", canonical)
	}
	canonical.SqrtPriceX96.SetUint64(9)
	if pool.SqrtPriceX96.Uint64() != 7 {
		t.Fatalf("canonical copy shares integers with the original")
	}
}

func TestPoolJSONStringIntegers(t *testing.T) {
	pool := Pool{
		ID:                   "0xpool",
		SqrtPriceX96:         uint256.MustFromDecimal("79228162514264337593543950336"),
		Liquidity:            uint256.NewInt(5),
		FeeGrowthGlobal0X128: new(uint256.Int).Lsh(uint256.NewInt(1), 200),
		FeeGrowthGlobal1X128: uint256.NewInt(0),
	}
	data, err := json.Marshal(pool)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, ok := decoded["sqrt_price_x96"].(string); !ok || v != "79228162514264337593543950336" {
		t.Fatalf("sqrt_price_x96 should be a decimal string, got %v", decoded["sqrt_price_x96"])
	}

	var back Pool
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal pool failed: %v", err)
	}
	if !back.FeeGrowthGlobal0X128.Eq(pool.FeeGrowthGlobal0X128) {
		t.Fatalf("fee growth mismatch: %s", back.FeeGrowthGlobal0X128)
	}
	if !back.Complete() {
		t.Fatalf("decoded pool should be complete")
	}
}

// Package v3math implements the read-side arithmetic of concentrated
// liquidity pools: tick and price conversion, fee growth accounting and
// liquidity from token amounts.
package v3math

import (
	"github.com/holiman/uint256"

	"rangeScope/internal/model"
)

const (
	MinTick = model.MinTick
	MaxTick = model.MaxTick
)

var (
	Q96  = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	// MinSqrtRatio and MaxSqrtRatio are SqrtRatioAtTick(MinTick) and
	// SqrtRatioAtTick(MaxTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	maxUint256 = new(uint256.Int).SetAllOne()
)

package model

import (
	"time"

	"github.com/holiman/uint256"
)

// FeeWindowResult holds the fee accounting for one lookback window.
// Fees0/Fees1 are raw token units.
type FeeWindowResult struct {
	Window             Window       `json:"window"`
	GrowthInsideStart0 *uint256.Int `json:"growth_inside_start0"`
	GrowthInsideStart1 *uint256.Int `json:"growth_inside_start1"`
	GrowthInsideEnd0   *uint256.Int `json:"growth_inside_end0"`
	GrowthInsideEnd1   *uint256.Int `json:"growth_inside_end1"`
	Fees0              *uint256.Int `json:"fees0"`
	Fees1              *uint256.Int `json:"fees1"`
	Fees0Quote         float64      `json:"fees0_quote"`
	Fees1Quote         float64      `json:"fees1_quote"`
	TotalQuote         float64      `json:"total_quote"`
	LagSeconds         int64        `json:"lag_seconds"`
	UsedFallback       bool         `json:"used_fallback"`
	Err                string       `json:"error,omitempty"`
}

// ZeroWindow is the contribution of a window whose data could not be fetched.
func ZeroWindow(w Window, err error) FeeWindowResult {
	res := FeeWindowResult{
		Window: w,
		Fees0:  new(uint256.Int),
		Fees1:  new(uint256.Int),
	}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// APRResult is the projected return of a position.
type APRResult struct {
	ChainID        uint64            `json:"chain_id"`
	PoolID         string            `json:"pool_id"`
	TickLower      int32             `json:"tick_lower"`
	TickUpper      int32             `json:"tick_upper"`
	APR24h         float64           `json:"apr_24h"`
	APR7d          float64           `json:"apr_7d"`
	APR30d         float64           `json:"apr_30d"`
	APY24h         float64           `json:"apy_24h"`
	APY7d          float64           `json:"apy_7d"`
	APY30d         float64           `json:"apy_30d"`
	MonthlyRevenue float64           `json:"monthly_revenue"`
	YearlyRevenue  float64           `json:"yearly_revenue"`
	PositionValue  float64           `json:"position_value"`
	Liquidity      *uint256.Int      `json:"liquidity"`
	Windows        []FeeWindowResult `json:"windows"`
	Advisories     []string          `json:"advisories,omitempty"`
	ComputedAt     time.Time         `json:"computed_at"`
}

// APRFor returns the APR of a window.
func (r APRResult) APRFor(w Window) float64 {
	switch w {
	case Window24h:
		return r.APR24h
	case Window7d:
		return r.APR7d
	case Window30d:
		return r.APR30d
	default:
		return 0
	}
}

// APYFor returns the APY of a window.
func (r APRResult) APYFor(w Window) float64 {
	switch w {
	case Window24h:
		return r.APY24h
	case Window7d:
		return r.APY7d
	case Window30d:
		return r.APY30d
	default:
		return 0
	}
}

// WindowResult returns the fee result recorded for w.
func (r APRResult) WindowResult(w Window) (FeeWindowResult, bool) {
	for _, res := range r.Windows {
		if res.Window == w {
			return res, true
		}
	}
	return FeeWindowResult{}, false
}

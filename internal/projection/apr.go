// Package projection turns accrued window fees into annualized returns and
// revenue estimates.
package projection

import (
	"math"
	"time"

	"rangeScope/internal/model"
)

const (
	hoursPerYear  = 365 * 24
	daysPerYear   = 365
	daysPerMonth  = 30
	revenueWindow = model.Window30d
	revenueDays   = 30
)

// APR annualizes fees earned over windowHours against the position value.
// A zero value or window yields 0.
func APR(fees, value, windowHours float64) float64 {
	if value == 0 || windowHours == 0 {
		return 0
	}
	return (fees / value) * (hoursPerYear / windowHours)
}

// APY compounds an APR daily: (1 + apr/365)^365 - 1.
func APY(apr float64) float64 {
	return math.Expm1(daysPerYear * math.Log1p(apr/daysPerYear))
}

// Revenue extrapolates the 30-day fee total linearly to a month and a year.
func Revenue(fees30d float64) (monthly, yearly float64) {
	daily := fees30d / revenueDays
	return daily * daysPerMonth, daily * daysPerYear
}

// Project builds the return figures for a set of window results. Windows
// missing from the input contribute zero.
func Project(windows []model.FeeWindowResult, positionValue float64, now time.Time) model.APRResult {
	result := model.APRResult{
		PositionValue: positionValue,
		Windows:       windows,
		ComputedAt:    now,
	}

	for _, w := range windows {
		apr := APR(w.TotalQuote, positionValue, w.Window.Hours())
		apy := APY(apr)
		switch w.Window {
		case model.Window24h:
			result.APR24h, result.APY24h = apr, apy
		case model.Window7d:
			result.APR7d, result.APY7d = apr, apy
		case model.Window30d:
			result.APR30d, result.APY30d = apr, apy
		}
		if w.Window == revenueWindow {
			result.MonthlyRevenue, result.YearlyRevenue = Revenue(w.TotalQuote)
		}
	}

	return result
}

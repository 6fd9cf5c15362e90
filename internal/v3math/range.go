package v3math

import "rangeScope/internal/model"

const maxRangeRatio = 100

// RangeSuggestion is a preset price band around the current price.
type RangeSuggestion struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// RangeSuggestions returns the tight, normal and wide bands for a price.
func RangeSuggestions(current float64) []RangeSuggestion {
	return []RangeSuggestion{
		{Name: "tight", Lower: current * 0.95, Upper: current * 1.05},
		{Name: "normal", Lower: current * 0.8, Upper: current * 1.25},
		{Name: "wide", Lower: current * 0.5, Upper: current * 2},
	}
}

// ValidateRange checks a price range against the current price. The first
// failing rule wins.
func ValidateRange(lower, upper, current float64) error {
	reason := ""
	switch {
	case lower <= 0 || upper <= 0:
		reason = ReasonNonPositive
	case lower >= upper:
		reason = ReasonLowerAbove
	case current < lower || current > upper:
		reason = ReasonOutsideRange
	case upper/lower > maxRangeRatio:
		reason = ReasonTooWide
	default:
		return nil
	}
	return &RangeError{Reason: reason, Lower: lower, Upper: upper, Price: current}
}

// TickSpacingForFee maps a fee tier to its tick spacing.
func TickSpacingForFee(fee uint32) int32 {
	switch fee {
	case 100:
		return 1
	case 500:
		return 10
	case 3000:
		return 60
	case 10000:
		return 200
	default:
		return model.DefaultTickSpacing
	}
}

// NearestUsableTick rounds a tick to the closest multiple of spacing that
// stays inside the tick domain.
func NearestUsableTick(tick, spacing int32) int32 {
	if spacing <= 0 {
		spacing = 1
	}
	rounded := tick / spacing * spacing
	rem := tick - rounded
	if rem*2 >= spacing {
		rounded += spacing
	} else if -rem*2 > spacing {
		rounded -= spacing
	}

	lower, upper := FullRangeTicks(spacing)
	if rounded < lower {
		return lower
	}
	if rounded > upper {
		return upper
	}
	return rounded
}

// FullRangeTicks returns the min and max usable ticks for a spacing.
func FullRangeTicks(spacing int32) (int32, int32) {
	return model.FullRangeTicks(spacing)
}

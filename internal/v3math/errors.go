package v3math

import (
	"errors"
	"fmt"
)

var (
	// ErrDomain is returned for inputs outside a function's mathematical domain.
	ErrDomain = errors.New("domain error")
	// ErrInvalidRange is matched by every *RangeError.
	ErrInvalidRange = errors.New("invalid range")
	// ErrOverflow is returned when a fixed-width result does not fit.
	ErrOverflow = errors.New("overflow")
)

// Range rejection reasons.
const (
	ReasonNonPositive  = "non-positive"
	ReasonLowerAbove   = "lower>=upper"
	ReasonOutsideRange = "outside range"
	ReasonTooWide      = "too wide"
)

// RangeError describes why a price range was rejected.
type RangeError struct {
	Reason string
	Lower  float64
	Upper  float64
	Price  float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%g, %g] at price %g: %s", e.Lower, e.Upper, e.Price, e.Reason)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

func domainErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDomain, fmt.Sprintf(format, args...))
}

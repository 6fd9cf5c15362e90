package source

import (
	"errors"
	"fmt"
	"time"

	"rangeScope/internal/model"
)

var (
	// ErrPoolNotFound is returned when no source knows the pool.
	ErrPoolNotFound = model.ErrPoolNotFound
	// ErrSourceUnavailable is returned when both the indexed and the direct
	// branch failed for a window.
	ErrSourceUnavailable = errors.New("data source unavailable")
)

// StaleDataError reports an indexed source trailing the chain by more than
// the configured threshold. It is an advisory, not a failure.
type StaleDataError struct {
	ChainID   uint64
	Lag       time.Duration
	Threshold time.Duration
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("indexed data for chain %d is %s behind (threshold %s)",
		e.ChainID, e.Lag.Truncate(time.Second), e.Threshold)
}

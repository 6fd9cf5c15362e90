// Package storage keeps a history of computed results.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rangeScope/internal/model"
)

// Record is one computed result together with the position that produced it.
type Record struct {
	ID         string              `json:"id"`
	RecordedAt time.Time           `json:"recorded_at"`
	Input      model.PositionInput `json:"input"`
	Result     model.APRResult     `json:"result"`
}

// NewRecord stamps a result with a fresh id.
func NewRecord(input model.PositionInput, result model.APRResult, now time.Time) Record {
	return Record{
		ID:         uuid.NewString(),
		RecordedAt: now.UTC(),
		Input:      input,
		Result:     result,
	}
}

// Sink receives computed results.
type Sink interface {
	SaveResult(ctx context.Context, input model.PositionInput, result model.APRResult) error
	Close() error
}

// Filter selects history records. Zero fields match everything.
type Filter struct {
	ChainID uint64
	PoolID  string
	Since   time.Time
	Limit   int
}

func (f Filter) match(r Record) bool {
	if f.ChainID != 0 && r.Input.ChainID != f.ChainID {
		return false
	}
	if f.PoolID != "" && r.Input.PoolID != model.NormalizePoolID(f.PoolID) {
		return false
	}
	if !f.Since.IsZero() && r.RecordedAt.Before(f.Since) {
		return false
	}
	return true
}

package source

import "rangeScope/internal/model"

// Observation is a pool snapshot tagged with the branch that produced it.
// It is either Indexed or Direct.
type Observation interface {
	observed() model.Pool
}

// Indexed is a snapshot served by the indexed source.
type Indexed struct {
	Pool       model.Pool
	Block      uint64
	LagSeconds int64
}

// Direct is a snapshot read from contract storage.
type Direct struct {
	Pool  model.Pool
	Block uint64
}

func (o Indexed) observed() model.Pool { return o.Pool }
func (o Direct) observed() model.Pool { return o.Pool }

// PoolOf returns the snapshot carried by an observation.
func PoolOf(o Observation) model.Pool {
	if o == nil {
		return model.Pool{}
	}
	return o.observed()
}

// BlockOf returns the block an observation was taken at.
func BlockOf(o Observation) uint64 {
	switch v := o.(type) {
	case Indexed:
		return v.Block
	case Direct:
		return v.Block
	default:
		return 0
	}
}

// WindowObservation is the data needed to account fees over one window:
// the pool and both range boundaries at the start and end of the window.
type WindowObservation struct {
	Window          model.Window
	Current         Observation
	Historical      Observation
	CurrentLower    model.TickSnapshot
	CurrentUpper    model.TickSnapshot
	HistoricalLower model.TickSnapshot
	HistoricalUpper model.TickSnapshot
	LagSeconds      int64
	UsedFallback    bool
	// Advisories are non-fatal conditions, such as *StaleDataError.
	Advisories []error
}

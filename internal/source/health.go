package source

import (
	"context"
	"time"
)

// Health describes the freshness of the indexed source on one chain.
type Health struct {
	ChainID     uint64 `json:"chain_id"`
	Healthy     bool   `json:"healthy"`
	LagSeconds  int64  `json:"lag_seconds"`
	BlockNumber uint64 `json:"block_number"`
	Err         string `json:"error,omitempty"`
}

// Health checks the indexed source independently of any pool.
func (a *Arbiter) Health(ctx context.Context, chainID uint64) Health {
	out := Health{ChainID: chainID}
	if a.indexed == nil {
		out.Err = "no indexed source configured"
		return out
	}

	meta, err := a.indexed.Meta(ctx, chainID)
	if err != nil {
		out.Err = err.Error()
		return out
	}

	lag := meta.Lag(a.now())
	out.BlockNumber = meta.BlockNumber
	out.LagSeconds = int64(lag / time.Second)
	out.Healthy = !meta.Timestamp.IsZero() && lag < a.lagThreshold
	if a.recorder != nil {
		a.recorder.SourceLag(chainID, lag)
	}
	return out
}

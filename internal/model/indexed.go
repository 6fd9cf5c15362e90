package model

import "time"

// SourceMeta is the head block an indexed source has processed.
type SourceMeta struct {
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// Lag returns how far the source trails now, never negative.
func (m SourceMeta) Lag(now time.Time) time.Duration {
	if m.Timestamp.IsZero() || now.Before(m.Timestamp) {
		return 0
	}
	return now.Sub(m.Timestamp)
}

// IndexedPool is a pool snapshot as served by an indexed source, tagged with
// the block it was read at.
type IndexedPool struct {
	Pool            Pool      `json:"pool"`
	SourceBlock     uint64    `json:"source_block"`
	SourceTimestamp time.Time `json:"source_timestamp"`
}

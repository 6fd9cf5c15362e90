package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheCorruption marks a stored entry that cannot be decoded.
var ErrCacheCorruption = errors.New("cache entry corrupted")

// Entry is the stored form of a cached value. Timestamp and TTL are in
// milliseconds.
type Entry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	TTL       int64 `json:"ttl"`
}

// Expired reports whether now - timestamp exceeds the TTL.
func (e Entry[T]) Expired(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp > e.TTL
}

// WrittenAt returns the write time of the entry.
func (e Entry[T]) WrittenAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func decodeEntry[T any](raw []byte) (Entry[T], error) {
	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry[T]{}, fmt.Errorf("%w: %v", ErrCacheCorruption, err)
	}
	if entry.Timestamp <= 0 || entry.TTL < 0 {
		return Entry[T]{}, fmt.Errorf("%w: bad timestamp %d or ttl %d", ErrCacheCorruption, entry.Timestamp, entry.TTL)
	}
	return entry, nil
}

// PositionKey is the cache key of a position result.
func PositionKey(chainID uint64, poolID string, tickLower, tickUpper int32) string {
	return fmt.Sprintf("%s%d:%d", PoolPrefix(chainID, poolID), tickLower, tickUpper)
}

// PoolPrefix is the key prefix shared by every position of a pool.
func PoolPrefix(chainID uint64, poolID string) string {
	return fmt.Sprintf("%d:%s:", chainID, normalizeID(poolID))
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

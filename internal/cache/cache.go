// Package cache implements a TTL cache with capacity eviction on top of a
// kv.Store.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rangeScope/internal/kv"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 1000
)

// Recorder receives cache events. observability.Metrics implements it.
type Recorder interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
	CacheEvicted(namespace, reason string, n int)
}

// Options configures a Cache.
type Options struct {
	// Namespace prefixes every stored key, e.g. "apr".
	Namespace  string
	DefaultTTL time.Duration
	MaxEntries int
	Now        func() time.Time
	Logger     *zap.Logger
	Recorder   Recorder
}

// Cache stores values of type T as JSON entries. Reads are lock free; every
// write and every delete caused by expiry or eviction goes through one
// writer lock, so a concurrent Set is never undone by a sweep.
type Cache[T any] struct {
	store     kv.Store
	namespace string
	ttl       time.Duration
	max       int
	now       func() time.Time
	logger    *zap.Logger
	recorder  Recorder

	mu     sync.Mutex
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a cache without sweeping the store.
func New[T any](store kv.Store, opts Options) *Cache[T] {
	c := &Cache[T]{
		store:     store,
		namespace: opts.Namespace,
		ttl:       opts.DefaultTTL,
		max:       opts.MaxEntries,
		now:       opts.Now,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.max <= 0 {
		c.max = DefaultMaxEntries
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Open builds a cache and runs an initial cleanup.
func Open[T any](ctx context.Context, store kv.Store, opts Options) (*Cache[T], error) {
	c := New[T](store, opts)
	if _, err := c.Cleanup(ctx); err != nil {
		return nil, fmt.Errorf("initial cache cleanup: %w", err)
	}
	return c, nil
}

func (c *Cache[T]) storeKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

func (c *Cache[T]) userKey(storeKey string) string {
	if c.namespace == "" {
		return storeKey
	}
	return strings.TrimPrefix(storeKey, c.namespace+":")
}

// Get returns the cached value when present and not expired. Expired and
// corrupt entries are removed and reported as a miss.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	entry, ok := c.GetEntry(ctx, key)
	if !ok {
		return zero, false
	}
	return entry.Data, true
}

// GetEntry is Get returning the stored entry.
func (c *Cache[T]) GetEntry(ctx context.Context, key string) (Entry[T], bool) {
	sk := c.storeKey(key)
	raw, ok, err := c.store.Get(ctx, sk)
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("key", sk), zap.Error(err))
		c.miss()
		return Entry[T]{}, false
	}
	if !ok {
		c.miss()
		return Entry[T]{}, false
	}

	entry, err := decodeEntry[T](raw)
	if err != nil {
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", sk), zap.Error(err))
		c.deleteIfUnchanged(ctx, sk, raw, "corrupt")
		c.miss()
		return Entry[T]{}, false
	}
	if entry.Expired(c.now()) {
		c.deleteIfUnchanged(ctx, sk, raw, "expired")
		c.miss()
		return Entry[T]{}, false
	}

	c.hits.Add(1)
	if c.recorder != nil {
		c.recorder.CacheHit(c.namespace)
	}
	return entry, true
}

func (c *Cache[T]) miss() {
	c.misses.Add(1)
	if c.recorder != nil {
		c.recorder.CacheMiss(c.namespace)
	}
}

// Set stores value under key, overwriting any previous entry. A ttl <= 0
// uses the cache default. Failures are logged.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry := Entry[T]{Data: value, Timestamp: c.now().UnixMilli(), TTL: ttl.Milliseconds()}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(ctx, c.storeKey(key), raw); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(ctx, c.storeKey(key)); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes every entry of the namespace.
func (c *Cache[T]) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := c.store.ListKeys(ctx, c.storeKey(""))
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func (c *Cache[T]) deleteIfUnchanged(ctx context.Context, storeKey string, seen []byte, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok, err := c.store.Get(ctx, storeKey)
	if err != nil || !ok || !bytes.Equal(current, seen) {
		return
	}
	if err := c.store.Delete(ctx, storeKey); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", storeKey), zap.Error(err))
		return
	}
	if c.recorder != nil {
		c.recorder.CacheEvicted(c.namespace, reason, 1)
	}
}

// CleanupResult counts the entries removed by one sweep.
type CleanupResult struct {
	Expired   int
	Corrupt   int
	Evicted   int
	Remaining int
}

type liveEntry struct {
	key       string
	timestamp int64
}

// Cleanup removes expired and corrupt entries, then evicts the oldest
// entries until at most MaxEntries remain.
func (c *Cache[T]) Cleanup(ctx context.Context) (CleanupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result CleanupResult
	keys, err := c.store.ListKeys(ctx, c.storeKey(""))
	if err != nil {
		return result, fmt.Errorf("list cache keys: %w", err)
	}

	now := c.now()
	live := make([]liveEntry, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return result, fmt.Errorf("read cache entry %s: %w", key, err)
		}
		if !ok {
			continue
		}
		entry, err := decodeEntry[json.RawMessage](raw)
		switch {
		case err != nil:
			result.Corrupt++
		case entry.Expired(now):
			result.Expired++
		default:
			live = append(live, liveEntry{key: key, timestamp: entry.Timestamp})
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			return result, fmt.Errorf("delete cache entry %s: %w", key, err)
		}
	}

	if len(live) > c.max {
		sort.SliceStable(live, func(i, j int) bool { return live[i].timestamp < live[j].timestamp })
		excess := live[:len(live)-c.max]
		for _, item := range excess {
			if err := c.store.Delete(ctx, item.key); err != nil {
				return result, fmt.Errorf("evict cache entry %s: %w", item.key, err)
			}
		}
		result.Evicted = len(excess)
		live = live[len(excess):]
	}
	result.Remaining = len(live)

	if c.recorder != nil {
		c.recorder.CacheEvicted(c.namespace, "expired", result.Expired)
		c.recorder.CacheEvicted(c.namespace, "corrupt", result.Corrupt)
		c.recorder.CacheEvicted(c.namespace, "capacity", result.Evicted)
	}
	return result, nil
}

// Run sweeps the cache every interval until ctx is done.
func (c *Cache[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := c.Cleanup(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					c.logger.Warn("cache cleanup failed", zap.String("namespace", c.namespace), zap.Error(err))
				}
				continue
			}
			c.logger.Debug("cache cleanup",
				zap.String("namespace", c.namespace),
				zap.Int("expired", result.Expired),
				zap.Int("corrupt", result.Corrupt),
				zap.Int("evicted", result.Evicted),
				zap.Int("remaining", result.Remaining),
			)
		}
	}
}

// Stats summarizes the stored entries.
type Stats struct {
	Entries int       `json:"entries"`
	Expired int       `json:"expired"`
	Bytes   int       `json:"bytes"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
	Hits    uint64    `json:"hits"`
	Misses  uint64    `json:"misses"`
}

// Stats scans the namespace. Corrupt entries count toward Entries and Bytes
// only.
func (c *Cache[T]) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	keys, err := c.store.ListKeys(ctx, c.storeKey(""))
	if err != nil {
		return stats, fmt.Errorf("list cache keys: %w", err)
	}

	now := c.now()
	var oldest, newest int64
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return stats, fmt.Errorf("read cache entry %s: %w", key, err)
		}
		if !ok {
			continue
		}
		stats.Entries++
		stats.Bytes += len(raw)

		entry, err := decodeEntry[json.RawMessage](raw)
		if err != nil {
			continue
		}
		if entry.Expired(now) {
			stats.Expired++
		}
		if oldest == 0 || entry.Timestamp < oldest {
			oldest = entry.Timestamp
		}
		if entry.Timestamp > newest {
			newest = entry.Timestamp
		}
	}
	if oldest > 0 {
		stats.Oldest = time.UnixMilli(oldest).UTC()
		stats.Newest = time.UnixMilli(newest).UTC()
	}
	return stats, nil
}

// Export writes every entry of the namespace as one JSON object keyed by
// cache key.
func (c *Cache[T]) Export(ctx context.Context, w io.Writer) (int, error) {
	keys, err := c.store.ListKeys(ctx, c.storeKey(""))
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}

	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("read cache entry %s: %w", key, err)
		}
		if !ok || !json.Valid(raw) {
			continue
		}
		out[c.userKey(key)] = raw
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 0, fmt.Errorf("encode cache export: %w", err)
	}
	return len(out), nil
}

// Import loads entries produced by Export. Entries that fail to decode are
// skipped; expired ones are kept and left to the next sweep.
func (c *Cache[T]) Import(ctx context.Context, r io.Reader) (int, error) {
	var in map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return 0, fmt.Errorf("decode cache import: %w", err)
	}

	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	c.mu.Lock()
	defer c.mu.Unlock()

	imported := 0
	for _, key := range keys {
		raw := in[key]
		if _, err := decodeEntry[T](raw); err != nil {
			c.logger.Warn("skipping cache import entry", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := c.store.Set(ctx, c.storeKey(key), raw); err != nil {
			return imported, fmt.Errorf("store cache entry %s: %w", key, err)
		}
		imported++
	}
	return imported, nil
}

// HistoryItem is a live entry returned by History.
type HistoryItem[T any] struct {
	Key       string    `json:"key"`
	Data      T         `json:"data"`
	WrittenAt time.Time `json:"written_at"`
}

// History returns the live entries whose key starts with prefix, newest
// first.
func (c *Cache[T]) History(ctx context.Context, prefix string) ([]HistoryItem[T], error) {
	keys, err := c.store.ListKeys(ctx, c.storeKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}

	now := c.now()
	items := make([]HistoryItem[T], 0, len(keys))
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read cache entry %s: %w", key, err)
		}
		if !ok {
			continue
		}
		entry, err := decodeEntry[T](raw)
		if err != nil || entry.Expired(now) {
			continue
		}
		items = append(items, HistoryItem[T]{
			Key:       c.userKey(key),
			Data:      entry.Data,
			WrittenAt: entry.WrittenAt().UTC(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].WrittenAt.After(items[j].WrittenAt) })
	return items, nil
}

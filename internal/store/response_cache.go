package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/compress"
	"github.com/devrev/prboard/internal/metrics"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/scheduler"
)

// CacheEntry is one memoized GET response, keyed by the exact request
// URL including its query string.
type CacheEntry struct {
	URL        string          `json:"url"`
	Payload    json.RawMessage `json:"payload"`
	Status     int             `json:"status"`
	StatusText string          `json:"status_text"`
	// Timestamp is the capture instant in epoch milliseconds. It must
	// be finite and positive; an entry violating that is purged on read.
	Timestamp int64 `json:"timestamp"`
}

// CacheStats reports the store's size without mutating it.
type CacheStats struct {
	Entries        int  `json:"entries"`
	RawSize        int  `json:"raw_size"`
	CompressedSize int  `json:"compressed_size"`
	Compressed     bool `json:"compressed"`
}

// CacheOptions tunes a ResponseCache.
type CacheOptions struct {
	// BlobKey is the KeyValueStore key the serialized store persists under.
	BlobKey string
	// Debounce is the window within which writes coalesce into one persist.
	Debounce time.Duration
	// EvictFraction is the share of oldest entries dropped when
	// persistence hits the storage quota.
	EvictFraction float64
	// Compression enables compressing the persisted blob.
	Compression bool
	// Metrics receives eviction and entry-count updates. May be nil.
	Metrics *metrics.Metrics
}

func (o *CacheOptions) applyDefaults() {
	if o.BlobKey == "" {
		o.BlobKey = "prboard:response-cache"
	}
	if o.Debounce <= 0 {
		o.Debounce = 2500 * time.Millisecond
	}
	if o.EvictFraction <= 0 || o.EvictFraction > 1 {
		o.EvictFraction = 0.75
	}
}

// ResponseCache memoizes GET responses with per-category TTLs. The
// in-memory map is authoritative; the persisted copy trails it within
// the debounce window. Safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry

	policy   *TTLPolicy
	kv       KeyValueStore
	sched    scheduler.Scheduler
	notifier notify.Notifier
	logger   *zap.Logger
	opts     CacheOptions

	compression bool
	// retried guards the quota-eviction retry: one scheduled retry per
	// failure episode, never an unbounded loop.
	retried bool

	// now is the millisecond clock, replaceable in tests.
	now func() int64
}

// NewResponseCache creates the cache and loads any persisted blob. A
// corrupt or undecodable blob degrades to an empty store.
func NewResponseCache(
	kv KeyValueStore,
	policy *TTLPolicy,
	sched scheduler.Scheduler,
	notifier notify.Notifier,
	logger *zap.Logger,
	opts CacheOptions,
) *ResponseCache {
	opts.applyDefaults()
	c := &ResponseCache{
		entries:     make(map[string]*CacheEntry),
		policy:      policy,
		kv:          kv,
		sched:       sched,
		notifier:    notifier,
		logger:      logger,
		opts:        opts,
		compression: opts.Compression,
		now: func() int64 {
			return time.Now().UnixMilli()
		},
	}
	c.load()
	return c
}

func (c *ResponseCache) load() {
	blob, err := c.kv.Get(context.Background(), c.opts.BlobKey)
	if err == ErrNotFound {
		return
	}
	if err != nil {
		c.logger.Warn("failed to load cache blob, starting empty", zap.Error(err))
		return
	}

	raw, err := compress.Decode(blob)
	if err != nil {
		c.logger.Warn("cache blob decompression failed, starting empty", zap.Error(err))
		return
	}

	var entries map[string]*CacheEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.logger.Warn("cache blob corrupt, starting empty", zap.Error(err))
		return
	}

	loaded := 0
	for url, e := range entries {
		if e == nil || e.Timestamp <= 0 {
			continue
		}
		c.entries[url] = e
		loaded++
	}
	c.updateEntriesMetric()
	c.logger.Info("response cache loaded",
		zap.Int("entries", loaded),
		zap.Bool("compressed", compress.IsCompressed(blob)))
}

// updateEntriesMetric refreshes the entry-count gauge. Callers may hold
// the mutex; len on the map is the only read.
func (c *ResponseCache) updateEntriesMetric() {
	if c.opts.Metrics != nil {
		c.opts.Metrics.UpdateCacheEntries(len(c.entries))
	}
}

// Get returns the cached entry for url, or false when absent, expired,
// or carrying an invalid timestamp. Expired and invalid entries are
// purged as a side effect.
func (c *ResponseCache) Get(url string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if e.Timestamp <= 0 {
		delete(c.entries, url)
		c.updateEntriesMetric()
		c.schedulePersistLocked()
		return nil, false
	}
	if c.now()-e.Timestamp > c.policy.For(url).Milliseconds() {
		delete(c.entries, url)
		c.updateEntriesMetric()
		c.schedulePersistLocked()
		return nil, false
	}
	return e, true
}

// Set stores a response under url. Last write wins. The call is a no-op
// when the clock cannot produce a valid capture timestamp, so an entry
// never exists with unusable freshness metadata.
func (c *ResponseCache) Set(url string, payload json.RawMessage, status int, statusText string) {
	ts := c.now()
	if ts <= 0 {
		c.logger.Warn("refusing to cache entry without valid timestamp", zap.String("url", url))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = &CacheEntry{
		URL:        url,
		Payload:    payload,
		Status:     status,
		StatusText: statusText,
		Timestamp:  ts,
	}
	c.updateEntriesMetric()
	c.schedulePersistLocked()
}

// Delete removes one entry.
func (c *ResponseCache) Delete(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
	c.updateEntriesMetric()
	c.schedulePersistLocked()
}

// Clear wipes all entries immediately and persists the empty store
// synchronously. Backs the explicit user action.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.updateEntriesMetric()
	c.mu.Unlock()
	c.Flush()
}

// Flush persists the store now, bypassing the debounce window.
func (c *ResponseCache) Flush() {
	c.persist()
}

// Stats reports entry count and sizes without mutating state.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	raw, err := json.Marshal(c.entries)
	compression := c.compression
	entries := len(c.entries)
	c.mu.Unlock()
	if err != nil {
		return CacheStats{Entries: entries, Compressed: compression}
	}

	stats := CacheStats{
		Entries:        entries,
		RawSize:        len(raw),
		CompressedSize: len(raw),
		Compressed:     compression,
	}
	if compression {
		if encoded, err := compress.Encode(string(raw)); err == nil {
			stats.CompressedSize = len(encoded)
		}
	}
	return stats
}

// SetCompressionEnabled toggles blob compression and reschedules a
// persist so the stored format catches up.
func (c *ResponseCache) SetCompressionEnabled(enabled bool) {
	c.mu.Lock()
	c.compression = enabled
	c.schedulePersistLocked()
	c.mu.Unlock()
}

// SetTTL overrides one category's TTL at runtime.
func (c *ResponseCache) SetTTL(cat Category, d time.Duration) {
	c.policy.Set(cat, d)
}

// Policy exposes the TTL policy for read access.
func (c *ResponseCache) Policy() *TTLPolicy {
	return c.policy
}

func (c *ResponseCache) schedulePersistLocked() {
	c.sched.Schedule(c.opts.Debounce, c.persist)
}

func (c *ResponseCache) persist() {
	c.mu.Lock()
	raw, err := json.Marshal(c.entries)
	compression := c.compression
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("failed to serialize cache", zap.Error(err))
		return
	}

	blob := string(raw)
	if compression {
		encoded, err := compress.Encode(blob)
		if err != nil {
			c.logger.Warn("cache compression failed, persisting uncompressed", zap.Error(err))
		} else {
			blob = encoded
		}
	}

	if err := c.kv.Set(context.Background(), c.opts.BlobKey, blob); err != nil {
		c.handlePersistFailure(err)
		return
	}

	c.mu.Lock()
	c.retried = false
	c.mu.Unlock()
}

// handlePersistFailure treats any persistence error as storage-quota
// pressure: evict the oldest fraction of entries and retry exactly once.
func (c *ResponseCache) handlePersistFailure(err error) {
	c.mu.Lock()
	evicted := c.evictOldestLocked(c.opts.EvictFraction)
	retry := !c.retried
	c.retried = true
	c.mu.Unlock()

	c.logger.Warn("cache persistence failed",
		zap.Error(err),
		zap.Int("evicted", evicted),
		zap.Bool("retry_scheduled", retry))
	c.notifier.Notify("cache storage full, evicted oldest entries", notify.SeverityWarning, notify.DurationMedium)

	if retry {
		c.sched.Schedule(c.opts.Debounce, c.persist)
	}
}

// evictOldestLocked removes the oldest-timestamp share of entries and
// returns how many were dropped. Always drops at least one when the
// store is non-empty.
func (c *ResponseCache) evictOldestLocked(fraction float64) int {
	n := len(c.entries)
	if n == 0 {
		return 0
	}
	count := int(math.Ceil(fraction * float64(n)))
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}

	type aged struct {
		url string
		ts  int64
	}
	byAge := make([]aged, 0, n)
	for url, e := range c.entries {
		byAge = append(byAge, aged{url: url, ts: e.Timestamp})
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].ts < byAge[j].ts })

	for _, a := range byAge[:count] {
		delete(c.entries, a.url)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordEviction(count)
	}
	c.updateEntriesMetric()
	return count
}

// Package cache is the in-memory read-through cache for metadata and query
// results. Entries live in independently locked shards, each bounded by an
// LRU, and expire by TTL. Concurrent loads of one key share a single origin
// fetch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/telemetry"
)

type entry struct {
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) >= e.ttl
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU
	// gen is bumped by every invalidation so that loads which started
	// earlier do not insert.
	gen uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg     Config
	shards  []*shard
	enabled atomic.Bool
	group   singleflight.Group
	log     *logrus.Entry
}

// New creates a cache. cfg is validated and defaulted first.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = telemetry.L()
	}

	c := &Cache{
		cfg:    cfg,
		shards: make([]*shard, cfg.Shards),
		log:    log.WithField("component", "cache"),
	}
	perShard := cfg.MaxEntries / cfg.Shards
	for i := range c.shards {
		lru, err := simplelru.NewLRU(perShard, nil)
		if err != nil {
			return nil, apierr.Wrap(err, apierr.KindConfiguration, "create cache shard")
		}
		c.shards[i] = &shard{lru: lru}
	}
	c.enabled.Store(cfg.Enabled)
	return c, nil
}

// Enabled reports the global enable flag.
func (c *Cache) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled flips the global enable flag. Disabling does not evict; reads
// miss and writes are dropped until the cache is enabled again.
func (c *Cache) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	c.log.WithField("enabled", enabled).Debug("cache toggled")
}

// QueryTTL returns the TTL for a query result: the default when requested is
// zero, capped at the configured maximum.
func (c *Cache) QueryTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return c.cfg.QueryTTL
	}
	if requested > c.cfg.MaxQueryTTL {
		return c.cfg.MaxQueryTTL
	}
	return requested
}

func (c *Cache) shardFor(key string) *shard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

func (c *Cache) ttlFor(key string, ttl time.Duration) time.Duration {
	if NamespaceOf(key) == NamespaceQuery {
		return c.QueryTTL(ttl)
	}
	if ttl <= 0 {
		return c.cfg.MetadataTTL
	}
	return ttl
}

// Get returns the live entry for key.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	value, ok := c.get(key)
	c.record(key, ok)
	return value, ok
}

func (c *Cache) get(key string) ([]byte, bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	raw, ok := sh.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if e.expired(c.cfg.Now()) {
		sh.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A zero ttl uses the namespace default.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c.insertLocked(sh, key, value, ttl)
}

func (c *Cache) insertLocked(sh *shard, key string, value []byte, ttl time.Duration) {
	sh.lru.Add(key, entry{value: value, insertedAt: c.cfg.Now(), ttl: c.ttlFor(key, ttl)})
}

// Delete removes keys. Invalidation applies even while the cache is
// disabled, so re-enabling never resurrects stale entries.
func (c *Cache) Delete(keys ...string) {
	for _, key := range keys {
		sh := c.shardFor(key)
		sh.mu.Lock()
		sh.gen++
		sh.lru.Remove(key)
		sh.mu.Unlock()
		c.group.Forget(key)
	}
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	removed := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.gen++
		for _, k := range sh.lru.Keys() {
			if key := k.(string); strings.HasPrefix(key, prefix) {
				sh.lru.Remove(key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.gen++
		sh.lru.Purge()
		sh.mu.Unlock()
	}
	c.log.Debug("cache cleared")
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += sh.lru.Len()
		sh.mu.Unlock()
	}
	return n
}

func (c *Cache) record(key string, hit bool) {
	if c.cfg.Recorder == nil {
		return
	}
	ns := string(NamespaceOf(key))
	if hit {
		c.cfg.Recorder.OnCacheHit(ns)
	} else {
		c.cfg.Recorder.OnCacheMiss(ns)
	}
}

// Load returns the cached value for key or calls fetch and caches its result.
// Concurrent loads of the same key share one fetch and observe the same value
// or error. A caller whose ctx ends stops waiting without affecting the
// others. Failed fetches are not cached, and a fetch that overlaps an
// invalidation of its shard returns its value without caching it.
func (c *Cache) Load(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if !c.Enabled() {
		return fetch(ctx)
	}
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	sh := c.shardFor(key)
	for {
		var led bool
		ch := c.group.DoChan(key, func() (interface{}, error) {
			led = true
			sh.mu.Lock()
			gen := sh.gen
			sh.mu.Unlock()

			value, err := fetch(ctx)
			if err != nil {
				return nil, err
			}

			sh.mu.Lock()
			if sh.gen == gen && c.Enabled() {
				c.insertLocked(sh, key, value, ttl)
			}
			sh.mu.Unlock()
			return value, nil
		})

		select {
		case <-ctx.Done():
			return nil, canceled(ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				// The leader gave up; a waiter that is still interested
				// starts a fetch of its own.
				if !led && errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.([]byte), nil
		}
	}
}

// Fetch is the typed form of Load. Values cross the cache JSON encoded, so
// callers never share decoded values.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || !c.Enabled() {
		return load(ctx)
	}

	data, err := c.Load(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, apierr.Wrap(err, apierr.KindSerialization, "encode cache entry")
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		c.Delete(key)
		return zero, apierr.Wrap(err, apierr.KindSerialization, "decode cache entry")
	}
	return out, nil
}

func canceled(err error) error {
	e := apierr.Wrap(err, apierr.KindTransport, "request canceled")
	e.Retryable = false
	return e
}

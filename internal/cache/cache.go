// Package cache is the shared second-level entity cache.
//
// Entities are stored as JSON in Redis under l2:{region}:{id} and shared by
// every transaction and server instance. Cache state follows committed data:
// inside a transaction, loads and writes populate the cache only after
// commit, and evictions apply both immediately and after commit. Evicted
// keys hold a short-lived tombstone and fills after a miss use SETNX, so a
// load that read a row before it was changed can neither overwrite a
// committed Put nor restore an evicted entry. A nil *EntityCache is valid
// and caches nothing.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ignite/person-registry/internal/pkg/logger"
	"github.com/ignite/person-registry/internal/pkg/txn"
)

// Cache regions.
const (
	RegionPerson      = "person"
	RegionLocation    = "location"
	RegionCoordinates = "coordinates"
)

const keyPrefix = "l2:"

// tombstoneTTL bounds how long an evicted key refuses fills. It must exceed
// the longest expected entity load.
const tombstoneTTL = 10 * time.Second

// tombstone is never valid JSON, so it cannot collide with an entity.
var tombstone = []byte("\x00evicted")

// Stats is a snapshot of the cumulative counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// EntityCache is a Redis-backed read-through/write-through cache.
type EntityCache struct {
	client redis.UniversalClient
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	group  singleflight.Group
}

// New creates an entity cache. ttl <= 0 keeps entries until evicted.
func New(client redis.UniversalClient, ttl time.Duration) *EntityCache {
	return &EntityCache{client: client, ttl: ttl}
}

// Stats returns the cumulative hit/miss counters.
func (c *EntityCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Key returns the Redis key for an entity.
func Key(region string, id int64) string {
	return keyPrefix + region + ":" + strconv.FormatInt(id, 10)
}

// ReadThrough returns the cached entity or calls load and caches its result.
// Outside a transaction, concurrent misses for one key share a single load.
// Load errors are returned unchanged and never cached.
func ReadThrough[T any](ctx context.Context, c *EntityCache, region string, id int64, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	key := Key(region, id)
	var cached T
	if c.lookup(ctx, region, key, &cached) {
		return cached, nil
	}

	if txn.Active(ctx) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		txn.AfterCommit(ctx, func(ctx context.Context) { c.fill(ctx, key, v) })
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (c *EntityCache) lookup(ctx context.Context, region, key string, dst interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil && bytes.Equal(data, tombstone):
		// recently evicted
	case err == nil:
		if jerr := json.Unmarshal(data, dst); jerr == nil {
			c.hits.Add(1)
			metricsSingleton().hits.WithLabelValues(region).Inc()
			return true
		}
		// stale encoding; drop it and reload
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		metricsSingleton().errors.WithLabelValues("get").Inc()
		logger.Warn("cache: get failed", "key", key, "error", err)
	}
	c.misses.Add(1)
	metricsSingleton().misses.WithLabelValues(region).Inc()
	return false
}

// Put writes v for region/id, after commit when ctx carries a transaction.
func (c *EntityCache) Put(ctx context.Context, region string, id int64, v interface{}) {
	if c == nil {
		return
	}
	key := Key(region, id)
	txn.AfterCommit(ctx, func(ctx context.Context) {
		c.set(ctx, key, v)
	})
}

// Evict tombstones region/id now and again after commit, so readers can
// neither see the old value during the transaction nor repopulate it with a
// load that started before commit. A Put registered after Evict in the same
// transaction replaces the tombstone.
func (c *EntityCache) Evict(ctx context.Context, region string, id int64) {
	if c == nil {
		return
	}
	key := Key(region, id)
	c.bury(ctx, key)
	if txn.Active(ctx) {
		txn.AfterCommit(ctx, func(ctx context.Context) { c.bury(ctx, key) })
	}
}

// EvictRegion tombstones every cached entry of region, now and after commit.
func (c *EntityCache) EvictRegion(ctx context.Context, region string) {
	if c == nil {
		return
	}
	c.evictRegion(ctx, region)
	if txn.Active(ctx) {
		txn.AfterCommit(ctx, func(ctx context.Context) { c.evictRegion(ctx, region) })
	}
}

func (c *EntityCache) evictRegion(ctx context.Context, region string) {
	iter := c.client.Scan(ctx, 0, keyPrefix+region+":*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metricsSingleton().errors.WithLabelValues("scan").Inc()
		logger.Warn("cache: scan failed", "region", region, "error", err)
		return
	}
	if len(keys) > 0 {
		c.bury(ctx, keys...)
	}
}

func (c *EntityCache) set(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		metricsSingleton().errors.WithLabelValues("set").Inc()
		logger.Warn("cache: set failed", "key", key, "error", err)
	}
}

// fill stores v for a key that missed. It never replaces an existing value:
// a committed Put or a tombstone always wins over a concurrent load.
func (c *EntityCache) fill(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.SetNX(ctx, key, data, c.ttl).Err(); err != nil {
		metricsSingleton().errors.WithLabelValues("setnx").Inc()
		logger.Warn("cache: fill failed", "key", key, "error", err)
	}
}

func (c *EntityCache) bury(ctx context.Context, keys ...string) {
	pipe := c.client.Pipeline()
	for _, k := range keys {
		pipe.Set(ctx, k, tombstone, tombstoneTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metricsSingleton().errors.WithLabelValues("evict").Inc()
		logger.Warn("cache: evict failed", "keys", fmt.Sprint(keys), "error", err)
	}
}

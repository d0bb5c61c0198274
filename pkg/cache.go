// Package cache is the public façade over the slab allocator and item index
// (internal/allocator): a single-threaded-cooperative SSD-backed cache,
// serialized behind one mutex so concurrent callers see it as thread-safe
// without the engine itself needing to know about goroutines.
//
// config.go, metrics.go, loader.go, and loaderfunc.go live alongside this
// file. There is no sharding: the core owns one item index over one device
// region, so splitting callers across independent shards would just be lock
// contention relabeled.
//
// © 2025 slabcache authors. MIT License.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/Voskan/slabcache/internal/allocator"
	"github.com/Voskan/slabcache/internal/blockdev"
	"github.com/Voskan/slabcache/internal/clock"
	"github.com/Voskan/slabcache/internal/errs"
)

// Cache is the top-level handle: one slab allocator, one item index, one
// backing device region.
type Cache struct {
	mu      sync.Mutex
	engine  *allocator.Engine
	loader  *loaderGroup
	metrics metricsSink
	clk     clock.Source

	prevDrains, prevEvicts uint64
}

// New constructs a Cache backed by device, using memBytes of host memory for
// the memory tier and diskRange of device for the disk tier (obtained via
// internal/blockdev.Shard if device is partitioned among cooperating
// instances).
func New(device blockdev.Device, diskRange blockdev.Range, memBytes int64, opts ...Option) (*Cache, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: device must not be nil", errs.ErrBadConfig)
	}
	if memBytes <= 0 {
		return nil, fmt.Errorf("%w: memBytes must be positive", errs.ErrBadConfig)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	memSlabs := uint32(memBytes / int64(cfg.slabSize))
	if memSlabs == 0 {
		return nil, fmt.Errorf("%w: memBytes smaller than one slab", errs.ErrBadConfig)
	}
	if cfg.nBucket == 0 {
		cfg.nBucket = nextPow2(memSlabs * 4)
	}
	if cfg.maxItems == 0 {
		cfg.maxItems = memSlabs * 64
	}
	if cfg.diskSlabs == 0 {
		cfg.diskSlabs = uint32(diskRange.Size() / int64(cfg.slabSize))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	eng, err := allocator.New(allocator.Config{
		SlabSize:   cfg.slabSize,
		MemSlabs:   memSlabs,
		Profile:    cfg.profile,
		NBucket:    cfg.nBucket,
		MaxItems:   cfg.maxItems,
		Device:     device,
		DeviceBase: diskRange.Start,
		DiskSlabs:  cfg.diskSlabs,
		Clock:      cfg.clk,
		Logger:     cfg.logger,
		Tracer:     cfg.tracer,
	})
	if err != nil {
		return nil, err
	}

	return &Cache{
		engine:  eng,
		loader:  newLoaderGroup(),
		metrics: newMetricsSink(cfg.registry),
		clk:     cfg.clk,
	}, nil
}

// Get returns the value stored under key, if any and not expired.
func (c *Cache) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok, err := c.engine.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.metrics.incHit()
	} else {
		c.metrics.incMiss()
	}
	c.reportTierStats()
	return val, ok, nil
}

// Set stores value under key. ttlSeconds == 0 means no expiry; otherwise the
// item expires ttlSeconds from now, per the Cache's clock source. hot routes
// the item through the class's dedicated hot slab instead of its general
// cold partial slab — set it for keys expected to churn, so their slab
// fragments independently of the steadier cold traffic.
func (c *Cache) Set(ctx context.Context, key, value []byte, ttlSeconds uint32, hot bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expiry uint32
	if ttlSeconds != 0 {
		expiry = c.clk.NowSeconds() + ttlSeconds
	}
	if err := c.engine.Set(ctx, key, value, expiry, hot); err != nil {
		return err
	}
	c.reportTierStats()
	return nil
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.engine.Delete(key)
	c.reportTierStats()
	return ok
}

// GetOrLoad returns the cached value for key, or runs fn to produce and
// store one if key is absent or expired. Concurrent misses on the same key
// are collapsed into a single fn invocation (pkg/loader.go). A loaded value
// is always stored through the cold path (hot=false) since GetOrLoad has no
// signal that the key churns; callers that know a key is hot should Set it
// directly with hot=true instead.
func (c *Cache) GetOrLoad(ctx context.Context, key []byte, fn LoaderFunc) ([]byte, error) {
	if val, ok, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return val, nil
	}

	val, ttl, err := c.loader.load(ctx, key, fn)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, val, ttl, false); err != nil {
		return nil, err
	}
	return val, nil
}

// Len returns the number of live items currently indexed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.engine.NUsed())
}

// Stats returns the running hit/miss/drain/evict counters.
func (c *Cache) Stats() (hits, misses, drains, evicts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Stats()
}

// Close releases the cache's memory arena. The backing Device passed to New
// is left open for the caller to close.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Close()
}

func (c *Cache) reportTierStats() {
	c.metrics.setItems(float64(c.engine.NUsed()))
	_, _, drains, evicts := c.engine.Stats()
	for ; c.prevDrains < drains; c.prevDrains++ {
		c.metrics.incDrain()
	}
	for ; c.prevEvicts < evicts; c.prevEvicts++ {
		c.metrics.incEvict()
	}
}

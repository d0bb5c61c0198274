package cache

// config.go defines the functional options New accepts and the defaults
// applied when the caller doesn't override them: a private config struct, a
// set of With* options that mutate it, and a validating finalise step.

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Voskan/slabcache/internal/clock"
	"github.com/Voskan/slabcache/internal/errs"
)

// defaultSlabSize matches fatcache's historical default (1 MiB slabs).
const defaultSlabSize = 1 << 20

// defaultProfile is a geometric item-size ladder (factor 1.25, per
// fatcache's default growth factor) from 64 bytes up to just under one slab.
func defaultProfile(slabSize uint32) []uint32 {
	var profile []uint32
	size := uint32(64)
	for size < slabSize-allocatorHeaderSize {
		profile = append(profile, size)
		next := size + size/4
		if next <= size {
			break
		}
		size = next
	}
	return profile
}

// allocatorHeaderSize mirrors internal/allocator.SlabHeaderSize without
// importing the package just for a constant used in profile generation.
const allocatorHeaderSize = 8

type config struct {
	slabSize  uint32
	profile   []uint32
	nBucket   uint32
	maxItems  uint32
	diskSlabs uint32

	registry *prometheus.Registry
	logger   *zap.Logger
	tracer   trace.Tracer
	clk      clock.Source
}

// defaultConfig returns a config with slab sizing filled in but nBucket and
// maxItems left at zero — New derives those from the memory tier's actual
// slab count once it's known, unless the caller overrode both via
// WithIndexSizing.
func defaultConfig() *config {
	slabSize := uint32(defaultSlabSize)
	return &config{
		slabSize: slabSize,
		profile:  defaultProfile(slabSize),
		logger:   zap.NewNop(),
		clk:      clock.System{},
	}
}

func nextPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

// Option configures a Cache at construction time.
type Option func(*config)

// WithSlabSize overrides the default 1 MiB slab size. It also resets the item
// profile to the default ladder for the new size, so a WithItemProfile
// option must come after it.
func WithSlabSize(bytes uint32) Option {
	return func(c *config) {
		c.slabSize = bytes
		c.profile = defaultProfile(bytes)
	}
}

// WithItemProfile overrides the default geometric item-size ladder with an
// explicit ascending list of class boundaries.
func WithItemProfile(profile []uint32) Option {
	return func(c *config) { c.profile = append([]uint32(nil), profile...) }
}

// WithDiskSlabs sets how many slab-sized regions of the backing device this
// instance may use for the disk tier.
func WithDiskSlabs(n uint32) Option {
	return func(c *config) { c.diskSlabs = n }
}

// WithIndexSizing overrides the item index's bucket count and entry pool
// size, normally derived from the memory tier's slab count.
func WithIndexSizing(nBucket, maxItems uint32) Option {
	return func(c *config) { c.nBucket, c.maxItems = nBucket, maxItems }
}

// WithMetrics registers Prometheus collectors against reg. Passing nil
// disables metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithLogger plugs an external zap.Logger. The engine logs only slow events
// (drain, evict), at debug level; nothing is logged on the hot path.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer attaches an OpenTelemetry tracer; spans are emitted around the
// engine's I/O suspension points (disk reads, drain, evict).
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithClock overrides the time source (tests use clock.Manual).
func WithClock(clk clock.Source) Option {
	return func(c *config) {
		if clk != nil {
			c.clk = clk
		}
	}
}

func (c *config) validate() error {
	if c.slabSize == 0 {
		return fmt.Errorf("%w: slab size must be positive", errs.ErrBadConfig)
	}
	if len(c.profile) == 0 {
		return fmt.Errorf("%w: item profile must not be empty", errs.ErrBadConfig)
	}
	if c.diskSlabs == 0 {
		return fmt.Errorf("%w: disk slab count must be positive", errs.ErrBadConfig)
	}
	return nil
}

// Package bench provides reproducible micro-benchmarks for slabcache.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// Keys are fixed-size byte slices and values a flat 64-byte payload, so
// results are comparable across versions:
//
//   1. Set         – write-only workload
//   2. Get         – read-only workload (after warm-up)
//   3. GetParallel – concurrent reads (b.RunParallel)
//   4. GetOrLoad   – 90% hits, 10% misses with loader cost
//
// NOTE: unit tests live alongside the packages they cover; this file is
// only for performance.
//
// © 2025 slabcache authors. MIT License.

package bench

import (
	"context"
	"encoding/binary"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/Voskan/slabcache/internal/blockdev"
	cache "github.com/Voskan/slabcache/pkg"
)

const (
	slabSize  = 1 << 20
	memSlabs  = 64  // 64 MiB memory tier
	diskSlabs = 512 // 512 MiB disk tier
	keys      = 1 << 16
	valueSize = 64
)

func newTestCache() *cache.Cache {
	dev := blockdev.NewMemDevice(diskSlabs * slabSize)
	c, err := cache.New(dev, blockdev.Range{Start: 0, End: diskSlabs * slabSize}, memSlabs*slabSize,
		cache.WithSlabSize(slabSize),
	)
	if err != nil {
		panic(err)
	}
	return c
}

// ds is the shared key dataset, reused across benches to avoid reallocating
// large slices each run.
var ds = func() [][]byte {
	arr := make([][]byte, keys)
	for i := range arr {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(i))
		arr[i] = b
	}
	return arr
}()

func BenchmarkSet(b *testing.B) {
	c := newTestCache()
	val := make([]byte, valueSize)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := ds[i&(keys-1)]
		c.Set(context.Background(), key, val, 1, false)
	}
	c.Close()
}

func BenchmarkGet(b *testing.B) {
	c := newTestCache()
	val := make([]byte, valueSize)
	// pre-populate (warm-up)
	for _, k := range ds {
		c.Set(context.Background(), k, val, 1, false)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		c.Get(context.Background(), k)
	}
	c.Close()
}

func BenchmarkGetParallel(b *testing.B) {
	c := newTestCache()
	val := make([]byte, valueSize)
	for _, k := range ds {
		c.Set(context.Background(), k, val, 1, false)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			c.Get(context.Background(), ds[idx])
		}
	})
	c.Close()
}

func BenchmarkGetOrLoad(b *testing.B) {
	c := newTestCache()
	val := make([]byte, valueSize)
	// Preload 90% of keys to simulate mixed hit/miss.
	for i, k := range ds {
		if i%10 != 0 { // 90% fill
			c.Set(context.Background(), k, val, 1, false)
		}
	}
	var loaderCnt atomic.Uint64
	loader := func(ctx context.Context, key []byte) ([]byte, uint32, error) {
		loaderCnt.Add(1)
		return val, 0, nil
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		c.GetOrLoad(context.Background(), k, loader)
	}
	c.Close()
	b.ReportMetric(float64(loaderCnt.Load())/float64(b.N)*100, "miss-%")
}

func init() {
	runtime.GOMAXPROCS(runtime.NumCPU())
}

// Command slabcache-inspect drives a slabcache instance against a real (or
// freshly created) file-backed device with a synthetic workload and prints
// slab allocator / item index statistics, formatted with go-humanize.
//
// This tool talks to the library directly rather than polling a running
// process over HTTP — the engine has no network front end of its own (out
// of scope by design), so the only honest way to inspect it is to embed it.
//
// © 2025 slabcache authors. MIT License.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Voskan/slabcache/internal/blockdev"
	cache "github.com/Voskan/slabcache/pkg"
)

var version = "dev"

func main() {
	opts := parseFlags()
	if opts.version {
		fmt.Println(version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	c, dev, err := openCache(opts)
	if err != nil {
		fatal(err)
	}
	defer dev.Close()
	defer c.Close()

	keys := syntheticKeys(opts.keys)
	value := make([]byte, opts.valueSize)

	if !opts.watch {
		driveLoad(ctx, c, keys, value)
		printStats(c)
		return
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for {
		driveLoad(ctx, c, keys, value)
		printStats(c)
		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return
		}
	}
}

func openCache(opts *options) (*cache.Cache, blockdev.Device, error) {
	if err := ensureSized(opts.devicePath, opts.slabSize*8); err != nil {
		return nil, nil, err
	}
	dev, err := blockdev.OpenFile(opts.devicePath)
	if err != nil {
		return nil, nil, err
	}
	size, err := blockdev.Size(opts.devicePath)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	c, err := cache.New(dev, blockdev.Range{Start: 0, End: size}, opts.memBytes,
		cache.WithSlabSize(uint32(opts.slabSize)),
	)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return c, dev, nil
}

func ensureSized(path string, minSize int64) error {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return f.Truncate(minSize)
	}
	if err != nil {
		return err
	}
	if fi.Size() < minSize {
		return os.Truncate(path, minSize)
	}
	return nil
}

func syntheticKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
	}
	return keys
}

func driveLoad(ctx context.Context, c *cache.Cache, keys [][]byte, value []byte) {
	rand.Read(value)
	for _, k := range keys {
		c.Set(ctx, k, value, 0, false)
	}
	for i := 0; i < len(keys)*2; i++ {
		c.Get(ctx, keys[rand.Intn(len(keys))])
	}
}

func printStats(c *cache.Cache) {
	hits, misses, drains, evicts := c.Stats()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	fmt.Printf("items: %s   hits: %s   misses: %s   hit-rate: %.1f%%   drains: %s   evicts: %s\n",
		humanize.Comma(int64(c.Len())),
		humanize.Comma(int64(hits)),
		humanize.Comma(int64(misses)),
		hitRate,
		humanize.Comma(int64(drains)),
		humanize.Comma(int64(evicts)),
	)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "slabcache-inspect:", err)
	os.Exit(1)
}

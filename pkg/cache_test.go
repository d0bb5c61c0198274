package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/Voskan/slabcache/internal/blockdev"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	const slabSize = 4096
	const memSlabs = 4
	const diskSlabs = 8
	dev := blockdev.NewMemDevice(diskSlabs * slabSize)
	c, err := New(dev, blockdev.Range{Start: 0, End: diskSlabs * slabSize}, memSlabs*slabSize,
		WithSlabSize(slabSize),
		WithItemProfile([]uint32{64, 256, 1024}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, []byte("k"), []byte("v"), 0, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, []byte("k"))
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get() = (%q, %v, %v), want (\"v\", true, nil)", got, ok, err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestGetOrLoadRunsLoaderOnceOnMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(ctx context.Context, key []byte) ([]byte, uint32, error) {
		calls++
		return []byte("loaded"), 0, nil
	}
	val, err := c.GetOrLoad(ctx, []byte("k"), loader)
	if err != nil || string(val) != "loaded" {
		t.Fatalf("GetOrLoad() = (%q, %v), want (\"loaded\", nil)", val, err)
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}
	// Second call should hit the cache, not the loader.
	val, err = c.GetOrLoad(ctx, []byte("k"), loader)
	if err != nil || string(val) != "loaded" {
		t.Fatalf("GetOrLoad() (cached) = (%q, %v)", val, err)
	}
	if calls != 1 {
		t.Fatalf("loader called again on a cache hit: calls = %d", calls)
	}
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	c := newTestCache(t)
	wantErr := errors.New("backend unavailable")
	_, err := c.GetOrLoad(context.Background(), []byte("k"), func(ctx context.Context, key []byte) ([]byte, uint32, error) {
		return nil, 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrLoad() error = %v, want %v", err, wantErr)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, []byte("k"), []byte("v"), 0, false)
	if !c.Delete([]byte("k")) {
		t.Fatalf("Delete() = false, want true")
	}
	if _, ok, _ := c.Get(ctx, []byte("k")); ok {
		t.Fatalf("Get() hit after Delete")
	}
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, []byte("k"), []byte("v"), 0, false)
	c.Get(ctx, []byte("k"))   // hit
	c.Get(ctx, []byte("nope")) // miss
	hits, misses, _, _ := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("Stats() = (hits=%d, misses=%d), want (1, 1)", hits, misses)
	}
}

func TestNewRejectsNilDevice(t *testing.T) {
	if _, err := New(nil, blockdev.Range{End: 4096}, 4096); err == nil {
		t.Fatalf("New() with nil device succeeded")
	}
}

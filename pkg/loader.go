package cache

// loader.go implements the singleflight-based de-duplication layer behind
// Cache.GetOrLoad: when many goroutines miss on the same key at once, only
// one of them actually runs the LoaderFunc — the rest wait and share its
// result, keyed by the digest hex string.
//
// Only the loader call is collapsed: each waiter then stores the shared
// value through Cache.Set itself, so a burst of misses on one key produces
// one loader call and one Set per caller, serialized by the mutex in
// cache.go.

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/Voskan/slabcache/internal/digest"
)

type loaderGroup struct {
	g singleflight.Group
}

func newLoaderGroup() *loaderGroup {
	return &loaderGroup{}
}

// load runs fn at most once per concurrent burst of misses on the same key,
// returning the same (value, error) to every waiter.
func (lg *loaderGroup) load(ctx context.Context, key []byte, fn LoaderFunc) ([]byte, uint32, error) {
	k := digest.Sum(key).String()
	type result struct {
		value []byte
		ttl   uint32
	}
	v, err, _ := lg.g.Do(k, func() (any, error) {
		value, ttl, err := fn(ctx, key)
		if err != nil {
			return nil, err
		}
		return result{value: value, ttl: ttl}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	r := v.(result)
	return r.value, r.ttl, nil
}

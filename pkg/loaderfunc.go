package cache

// loaderfunc.go defines LoaderFunc, the user-supplied callback GetOrLoad
// invokes on a miss. Kept in its own file so it can be referenced from both
// cache.go and loader.go without a cycle.
//
// GetOrLoad runs the loader without the Cache's lock held, so the loader may
// call Get or Set on the same Cache. A call to GetOrLoad for the same key
// from inside the loader waits on its own singleflight call and never
// returns.

import "context"

// LoaderFunc is invoked by GetOrLoad when key is absent or expired. The
// returned value is stored under key with the given ttlSeconds (0 disables
// expiry) if err is nil.
type LoaderFunc func(ctx context.Context, key []byte) (value []byte, ttlSeconds uint32, err error)

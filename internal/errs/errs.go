// Package errs defines the engine's four error kinds (out of memory, I/O,
// bad config, invalid argument) as sentinel values so every package reports
// failures the same way and callers can errors.Is against a stable identity
// instead of parsing strings.
package errs

import "errors"

var (
	// ErrOutOfMemory is returned when an arena/allocation fails at init.
	ErrOutOfMemory = errors.New("slabcache: out of memory")
	// ErrIO is returned on a short or failed pread/pwrite.
	ErrIO = errors.New("slabcache: I/O error")
	// ErrBadConfig is returned for a missing device or server_n > ndchunk.
	ErrBadConfig = errors.New("slabcache: bad config")
	// ErrInvalidArg is returned for an oversized item (no class fits it).
	ErrInvalidArg = errors.New("slabcache: invalid argument")
)

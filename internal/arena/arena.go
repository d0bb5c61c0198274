// Package arena provides a thin wrapper around an anonymous memory-mapped
// byte region, used as the engine's slab memory tier.
//
// Unlike a GC-managed allocation, an Arena is one fixed-size, contiguous byte
// buffer handed out once at construction; callers carve fixed-size records
// out of it themselves (see internal/allocator) and address those records
// by byte offset, not by Go pointer. The engine uses one such region for the
// slab memory tier (`nmslab * slab_size` bytes).
//
// Concurrency
// -----------
// Arena is *not* thread-safe; callers serialise access themselves — the
// engine is single-threaded cooperative.
//
// © 2025 slabcache authors. MIT License.
package arena

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Voskan/slabcache/internal/errs"
)

// Arena owns one anonymous mmap'd byte region.
type Arena struct {
	buf []byte
}

// New mmaps a zero-filled, anonymous region of exactly size bytes.
func New(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("arena: size must be positive, got %d", size)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: arena: mmap %d bytes: %v", errs.ErrOutOfMemory, size, err)
	}
	return &Arena{buf: buf}, nil
}

// Bytes returns the full backing slice. The returned slice is valid until
// Close; callers carve fixed-size byte ranges out of it directly (see
// internal/allocator's slab addressing).
func (a *Arena) Bytes() []byte { return a.buf }

// Len returns the arena size in bytes.
func (a *Arena) Len() int { return len(a.buf) }

// Close unmaps the region. Any slice or pointer derived from Bytes becomes
// invalid after Close returns.
func (a *Arena) Close() error {
	if a.buf == nil {
		return nil
	}
	err := unix.Munmap(a.buf)
	a.buf = nil
	return err
}

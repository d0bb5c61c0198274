// Package blockdev implements positional pread/pwrite against a raw block
// device, opened O_DIRECT, and sharded by server_n/server_id the way
// fatcache's slab_init partitions a shared SSD among cooperating instances.
//
// The engine itself never opens, sizes, or partitions the device beyond
// accepting a Device plus a [byteStart, byteEnd) range at construction — all
// of that setup lives here, one layer out, so internal/allocator stays
// agnostic of *how* bytes reach the platter.
//
// © 2025 slabcache authors. MIT License.
package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Voskan/slabcache/internal/errs"
	"github.com/Voskan/slabcache/internal/unsafehelpers"
)

// directAlign is the sector size O_DIRECT reads must be aligned to.
const directAlign = 512

// Device is a positional byte read/write interface. Implementations must be
// safe to call from a single goroutine only — the engine never calls
// concurrently into the same Device.
type Device interface {
	ReadAt(buf []byte, off int64) (int, error)
	WriteAt(buf []byte, off int64) (int, error)
	Close() error
}

// Range describes the byte-addressable slice of the device this instance
// owns: [Start, End). Computed by Shard from the device's total size and the
// server_n/server_id sharding parameters.
type Range struct {
	Start int64
	End   int64
}

// Size returns End - Start.
func (r Range) Size() int64 { return r.End - r.Start }

// Shard partitions a device of the given total byte size into serverN equal,
// slab_size-aligned chunks and returns the range owned by serverID, plus the
// slab count ndslab that range holds. Mirrors fc_slab.c's slab_init:
// ndchunk = size/slab_size; ndslab = ndchunk/server_n; dstart =
// server_id*ndslab*slab_size.
func Shard(deviceSize int64, slabSize int64, serverN, serverID uint32) (Range, uint32, error) {
	if slabSize <= 0 {
		return Range{}, 0, fmt.Errorf("blockdev: slab_size must be positive")
	}
	ndchunk := uint32(deviceSize / slabSize)
	if serverN == 0 || serverN > ndchunk {
		return Range{}, 0, fmt.Errorf("%w: server_n (%d) exceeds device chunk count (%d)", errs.ErrBadConfig, serverN, ndchunk)
	}
	if serverID >= serverN {
		return Range{}, 0, fmt.Errorf("%w: server_id (%d) must be < server_n (%d)", errs.ErrBadConfig, serverID, serverN)
	}
	ndslab := ndchunk / serverN
	start := int64(serverID) * int64(ndslab) * slabSize
	end := int64(serverID+1) * int64(ndslab) * slabSize
	return Range{Start: start, End: end}, ndslab, nil
}

// FileDevice is a Device backed by a raw path opened O_RDWR|O_DIRECT, the
// production implementation of Device.
type FileDevice struct {
	f *os.File
}

// OpenFile opens path for O_DIRECT positional I/O. Writes against the
// returned Device must be slab_size-aligned; reads are rounded to 512-byte
// alignment internally by ReadAt.
func OpenFile(path string) (*FileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_DIRECT, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", errs.ErrBadConfig, path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	return &FileDevice{f: f}, nil
}

// Size returns the device's total byte size (used to compute ndchunk before
// Shard is called).
func Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %q: %v", errs.ErrBadConfig, path, err)
	}
	if fi.Mode()&os.ModeDevice != 0 {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("%w: open %q: %v", errs.ErrBadConfig, path, err)
		}
		defer f.Close()
		off, err := f.Seek(0, os.SEEK_END)
		if err != nil {
			return 0, fmt.Errorf("%w: seek %q: %v", errs.ErrBadConfig, path, err)
		}
		return off, nil
	}
	return fi.Size(), nil
}

// ReadAt implements Device. O_DIRECT requires the kernel-visible offset and
// length to be 512-byte aligned, but item records rarely land on a sector
// boundary, so this rounds the request down/up to alignment and reads into a
// scratch buffer before copying the caller's requested slice back out.
func (d *FileDevice) ReadAt(buf []byte, off int64) (int, error) {
	alignedOff := int64(unsafehelpers.AlignDown(uintptr(off), directAlign))
	end := off + int64(len(buf))
	alignedEnd := int64(unsafehelpers.AlignUp(uintptr(end), directAlign))

	scratch := make([]byte, alignedEnd-alignedOff)
	if _, err := d.f.ReadAt(scratch, alignedOff); err != nil {
		return 0, fmt.Errorf("%w: pread %d bytes at %d: %v", errs.ErrIO, len(scratch), alignedOff, err)
	}
	n := copy(buf, scratch[off-alignedOff:])
	return n, nil
}

// WriteAt implements Device.
func (d *FileDevice) WriteAt(buf []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(buf, off)
	if err != nil {
		return n, fmt.Errorf("%w: pwrite %d bytes at %d: %v", errs.ErrIO, len(buf), off, err)
	}
	return n, nil
}

// Close implements Device.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

// MemDevice is an in-memory Device for tests: a byte slice standing in for
// the raw block device, with the same positional semantics.
type MemDevice struct {
	buf []byte
}

// NewMemDevice allocates a zeroed in-memory device of the given size.
func NewMemDevice(size int64) *MemDevice {
	return &MemDevice{buf: make([]byte, size)}
}

// ReadAt implements Device.
func (d *MemDevice) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > int64(len(d.buf)) {
		return 0, fmt.Errorf("%w: read out of range", errs.ErrIO)
	}
	n := copy(buf, d.buf[off:off+int64(len(buf))])
	return n, nil
}

// WriteAt implements Device.
func (d *MemDevice) WriteAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > int64(len(d.buf)) {
		return 0, fmt.Errorf("%w: write out of range", errs.ErrIO)
	}
	n := copy(d.buf[off:off+int64(len(buf))], buf)
	return n, nil
}

// Close implements Device.
func (d *MemDevice) Close() error { return nil }

// Package allocator implements the engine core: the slab allocator's
// get_item path, the write-through drain of a full memory slab to disk,
// LRU-driven eviction when every tier is full, and the read path that
// resolves an item's current (tier, addr, offset) to bytes.
//
// Grounded directly on fc_slab.c: slab_get_item/_slab_get_item (getItem),
// slab_drain/_slab_drain (drain), slab_evict (evict), slab_read_item (readAt),
// and slab_swap_addr (the address-swap step inside drain). Single-threaded
// cooperative: every exported method assumes one caller at a time and
// performs no internal locking.
package allocator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Voskan/slabcache/internal/arena"
	"github.com/Voskan/slabcache/internal/blockdev"
	"github.com/Voskan/slabcache/internal/clock"
	"github.com/Voskan/slabcache/internal/digest"
	"github.com/Voskan/slabcache/internal/errs"
	"github.com/Voskan/slabcache/internal/itemindex"
	"github.com/Voskan/slabcache/internal/lru"
	"github.com/Voskan/slabcache/internal/slabclass"
	"github.com/Voskan/slabcache/internal/slabtable"
)

// SlabHeaderSize is the fixed per-slab prefix before its item records begin,
// matching fc_slab.h's struct slab layout (sid/cid/unused header) minus the
// union of data[] it precedes.
const SlabHeaderSize = 8

// Config gathers everything the engine needs to size and wire itself
// together.
type Config struct {
	SlabSize   uint32
	MemSlabs   uint32
	Profile    []uint32 // ascending item-size class boundaries
	NBucket    uint32   // item index bucket count
	MaxItems   uint32   // item index entry pool size
	Device     blockdev.Device
	DeviceBase int64 // byte offset of this instance's region within Device
	DiskSlabs  uint32
	Clock      clock.Source
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// Engine is the slab allocator and item index bound together: every
// operation that crosses between them (an allocation filling a slab, a
// drain relocating one, an evict freeing one) happens here so the two
// structures never drift out of sync with each other.
type Engine struct {
	classes *slabclass.Table
	slabs   *slabtable.Table
	index   *itemindex.Table
	arena   *arena.Arena
	device  blockdev.Device
	devBase int64
	slabSz  uint32

	openMem []uint32 // per-cid sid of the cold partial slab currently being filled, or noSID
	openHot []uint32 // per-cid sid of the dedicated hot partial slab, or noSID

	evictBuf []byte // slab_size scratch buffer reused across evict's whole-slab reads
	readBuf  []byte // slab_size scratch buffer reused across disk point reads

	lruMem  *lru.List
	lruDisk *lru.List

	clk    clock.Source
	log    *zap.Logger
	tracer trace.Tracer

	nHit, nMiss, nDrain, nEvict uint64
}

const noSID = ^uint32(0)

// New builds an engine from cfg. The memory arena is sized for MemSlabs
// slabs of SlabSize bytes; the disk device is assumed already sized and
// sharded by the caller (internal/blockdev.Shard).
func New(cfg Config) (*Engine, error) {
	if cfg.SlabSize == 0 {
		return nil, fmt.Errorf("%w: slab size must be positive", errs.ErrBadConfig)
	}
	classes, err := slabclass.Build(cfg.Profile, cfg.SlabSize-SlabHeaderSize)
	if err != nil {
		return nil, err
	}
	a, err := arena.New(int(cfg.MemSlabs) * int(cfg.SlabSize))
	if err != nil {
		return nil, err
	}
	e := &Engine{
		classes:  classes,
		slabs:    slabtable.New(cfg.MemSlabs, cfg.DiskSlabs),
		index:    itemindex.New(cfg.NBucket, cfg.MaxItems),
		arena:    a,
		device:   cfg.Device,
		devBase:  cfg.DeviceBase,
		slabSz:   cfg.SlabSize,
		openMem:  make([]uint32, classes.Len()),
		openHot:  make([]uint32, classes.Len()),
		evictBuf: make([]byte, cfg.SlabSize),
		readBuf:  make([]byte, cfg.SlabSize),
		lruMem:   lru.New(cfg.MemSlabs + cfg.DiskSlabs),
		lruDisk:  lru.New(cfg.MemSlabs + cfg.DiskSlabs),
		clk:      cfg.Clock,
		log:      cfg.Logger,
		tracer:   cfg.Tracer,
	}
	for i := range e.openMem {
		e.openMem[i] = noSID
		e.openHot[i] = noSID
	}
	return e, nil
}

func (e *Engine) now() uint32 {
	if e.clk == nil {
		return 0
	}
	return e.clk.NowSeconds()
}

func (e *Engine) memBytes(addr uint32) []byte {
	start := int(addr) * int(e.slabSz)
	return e.arena.Bytes()[start : start+int(e.slabSz)]
}

// Get resolves key to its current value, performing HotRing promotion and
// lazy-expiry collection along the way.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	d := digest.Sum(key)
	entry, ok := e.index.Peek(d)
	if !ok {
		e.nMiss++
		return nil, false, nil
	}
	if itemindex.Expired(entry, e.now()) {
		sid, offset, _ := e.index.Remove(d)
		e.slabs.Slab(sid).PushHole(offset)
		e.nMiss++
		return nil, false, nil
	}
	entry, _ = e.index.Lookup(d) // re-lookup to apply HotRing promotion
	e.nHit++
	return e.readAt(ctx, entry.SID, entry.Offset)
}

func (e *Engine) readAt(ctx context.Context, sid uint32, offset uint16) ([]byte, bool, error) {
	s := e.slabs.Slab(sid)
	cls := e.classes.Class(s.CID)
	recOff := SlabHeaderSize + int(offset)*int(cls.ItemSize)

	var raw []byte
	if s.Tier == slabtable.TierMem {
		raw = e.memBytes(s.Addr)[recOff : recOff+int(cls.ItemSize)]
	} else {
		ctx, span := e.startSpan(ctx, "allocator.read_disk")
		defer span.End()
		buf := e.readBuf[:cls.ItemSize]
		off := e.devBase + int64(s.Addr)*int64(e.slabSz) + int64(recOff)
		if _, err := e.device.ReadAt(buf, off); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, false, err
		}
		raw = buf
	}

	_, value, _, itemCID, itemSID, err := decodeItem(raw)
	if err != nil {
		return nil, false, err
	}
	if itemCID != s.CID || itemSID != sid {
		return nil, false, fmt.Errorf("%w: item cid/sid mismatch reading sid=%d offset=%d", errs.ErrIO, sid, offset)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set writes key/value with an optional absolute expiry (0 means no TTL),
// replacing any previous entry. hot selects which partial slab the item is
// allocated from: a dedicated per-class hot slab for churned keys, or the
// class's general cold partial slab otherwise. Mirrors fc's set path:
// allocate a slot sized for the value's class, encode the item, index it,
// release the old slot if one existed.
func (e *Engine) Set(ctx context.Context, key, value []byte, expiry uint32, hot bool) error {
	d := digest.Sum(key)
	size := uint32(itemRecordSize(len(value)))
	cid := e.classes.CID(size)
	if !e.classes.Valid(cid) {
		return fmt.Errorf("%w: value of %d bytes exceeds largest slab class", errs.ErrInvalidArg, len(value))
	}

	sid, offset, err := e.getItem(ctx, cid, hot)
	if err != nil {
		return err
	}

	s := e.slabs.Slab(sid)
	cls := e.classes.Class(cid)
	recOff := SlabHeaderSize + int(offset)*int(cls.ItemSize)
	encodeItem(e.memBytes(s.Addr)[recOff:recOff+int(cls.ItemSize)], d, value, expiry, cid, sid)

	if oldSID, oldOffset, ok := e.index.Remove(d); ok {
		e.slabs.Slab(oldSID).PushHole(oldOffset)
	}
	if _, ok := e.index.Insert(d, sid, offset, expiry); !ok {
		// The entry pool is exhausted: evict one disk slab to free index
		// entries, then retry once.
		if err := e.evictOldestDisk(ctx); err == nil {
			_, ok = e.index.Insert(d, sid, offset, expiry)
		}
		if !ok {
			s.PushHole(offset)
			return fmt.Errorf("%w: item index full", errs.ErrOutOfMemory)
		}
	}
	return nil
}

// Delete removes key from the index and reclaims its slot as a hole.
func (e *Engine) Delete(key []byte) bool {
	d := digest.Sum(key)
	sid, offset, ok := e.index.Remove(d)
	if !ok {
		return false
	}
	e.slabs.Slab(sid).PushHole(offset)
	return true
}

// getItem returns a (sid, offset) slot ready to hold one item of class cid,
// allocating a hole, continuing the open slab, or opening a fresh one as
// needed. hot selects the working slab: the class's single dedicated hot
// slab (one partial slab reserved for churned keys of this class) when true,
// or the class's general cold partial slab otherwise. The two are tracked
// separately, so a class can have a hot and a cold slab open at the same time.
func (e *Engine) getItem(ctx context.Context, cid uint8, hot bool) (uint32, uint16, error) {
	open := e.openMem
	if hot {
		open = e.openHot
	}

	sid := open[cid]
	if sid == noSID {
		var err error
		sid, err = e.newMemSlab(ctx, cid)
		if err != nil {
			return 0, 0, err
		}
		open[cid] = sid
	}

	s := e.slabs.Slab(sid)
	var offset uint16
	if idx, ok := s.PopHole(); ok {
		offset = idx
	} else {
		offset = uint16(s.NAlloc)
	}
	s.NAlloc++

	if s.Full(e.classes) {
		e.slabs.FullQueue(slabtable.TierMem).PushTail(e.slabs.Slabs(), sid)
		open[cid] = noSID
		e.lruMem.Touch(sid)
	}
	return sid, offset, nil
}

// newMemSlab returns a fresh, empty memory slab bound to cid, draining or
// evicting to make room if the memory tier is already full.
func (e *Engine) newMemSlab(ctx context.Context, cid uint8) (uint32, error) {
	if sid, ok := e.slabs.FreeQueue(slabtable.TierMem).PopHead(e.slabs.Slabs()); ok {
		s := e.slabs.Slab(sid)
		s.CID = cid
		return sid, nil
	}
	if addr, ok := e.slabs.AllocAddr(slabtable.TierMem); ok {
		sid, ok := e.slabs.Alloc(addr, cid, slabtable.TierMem)
		if !ok {
			return 0, fmt.Errorf("%w: slabinfo pool exhausted", errs.ErrOutOfMemory)
		}
		return sid, nil
	}
	if err := e.drainOldest(ctx); err != nil {
		return 0, err
	}
	return e.newMemSlab(ctx, cid)
}

// drainOldest writes the least-recently-touched full memory slab out to
// disk and frees its memory address for reuse. If the
// disk tier is also full, it evicts the least-recently-touched full disk
// slab first to make room.
func (e *Engine) drainOldest(ctx context.Context) error {
	sid, ok := e.lruMem.PopHead()
	if !ok {
		return fmt.Errorf("%w: memory tier full and nothing eligible to drain", errs.ErrOutOfMemory)
	}
	return e.drain(ctx, sid)
}

// drain performs the write-through of one full memory slab to disk, then
// the address swap that frees its memory slot, mirroring fc_slab.c's
// slab_drain/_slab_drain/slab_swap_addr.
func (e *Engine) drain(ctx context.Context, sid uint32) error {
	ctx, span := e.startSpan(ctx, "allocator.drain")
	span.SetAttributes(attribute.Int64("sid", int64(sid)))
	defer span.End()

	s := e.slabs.Slab(sid)
	e.slabs.FullQueue(slabtable.TierMem).Remove(e.slabs.Slabs(), sid)
	memAddr := s.Addr

	diskAddr, ok := e.slabs.AllocAddr(slabtable.TierDisk)
	if !ok {
		if err := e.evictOldestDisk(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		diskAddr, ok = e.slabs.AllocAddr(slabtable.TierDisk)
		if !ok {
			return fmt.Errorf("%w: disk tier full after eviction attempt", errs.ErrOutOfMemory)
		}
	}

	off := e.devBase + int64(diskAddr)*int64(e.slabSz)
	if _, err := e.device.WriteAt(e.memBytes(memAddr), off); err != nil {
		e.slabs.FreeAddr(slabtable.TierDisk, diskAddr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("slab drain: %w", err)
	}

	e.slabs.Relocate(sid, slabtable.TierDisk, diskAddr)
	e.slabs.FreeAddr(slabtable.TierMem, memAddr)
	e.slabs.FullQueue(slabtable.TierDisk).PushTail(e.slabs.Slabs(), sid)
	e.lruDisk.Touch(sid)
	e.nDrain++

	if e.log != nil {
		e.log.Debug("drained slab to disk", zap.Uint32("sid", sid), zap.Uint32("disk_addr", diskAddr))
	}
	return nil
}

// evictOldestDisk reclaims the least-recently-touched full disk slab,
// removing every still-live item it holds from the index. A slot whose
// magic doesn't match a live item is skipped rather than treated as a
// lookup miss.
func (e *Engine) evictOldestDisk(ctx context.Context) error {
	sid, ok := e.lruDisk.PopHead()
	if !ok {
		return fmt.Errorf("%w: disk tier full and nothing eligible to evict", errs.ErrOutOfMemory)
	}
	return e.evict(ctx, sid)
}

// evict reads the whole victim slab into the shared evict scratch buffer
// once, then walks every slot in it, dropping whichever ones still resolve
// to a live index entry, and returns the slab's sid and address to the free
// pools.
func (e *Engine) evict(ctx context.Context, sid uint32) error {
	ctx, span := e.startSpan(ctx, "allocator.evict")
	span.SetAttributes(attribute.Int64("sid", int64(sid)))
	defer span.End()

	s := e.slabs.Slab(sid)
	cls := e.classes.Class(s.CID)

	slabBuf := e.evictBuf[:e.slabSz]
	off := e.devBase + int64(s.Addr)*int64(e.slabSz)
	if _, err := e.device.ReadAt(slabBuf, off); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for offset := uint16(0); uint32(offset) < cls.NItem; offset++ {
		recOff := SlabHeaderSize + int(offset)*int(cls.ItemSize)
		rec := slabBuf[recOff : recOff+int(cls.ItemSize)]
		d, _, _, itemCID, itemSID, err := decodeItem(rec)
		if err != nil || itemCID != s.CID || itemSID != sid {
			continue // not a live item: hole, stale bytes, or never written
		}
		if entry, ok := e.index.Peek(d); ok && entry.SID == sid && entry.Offset == offset {
			e.index.Remove(d)
		}
	}

	e.slabs.FullQueue(slabtable.TierDisk).Remove(e.slabs.Slabs(), sid)
	e.slabs.Retire(sid)
	e.nEvict++
	if e.log != nil {
		e.log.Debug("evicted disk slab", zap.Uint32("sid", sid))
	}
	return nil
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name)
}

// NUsed returns the number of live items currently indexed.
func (e *Engine) NUsed() uint32 { return e.index.NUsed() }

// Stats returns the engine's running counters: index hits/misses and the
// number of drain/evict cycles performed so far.
func (e *Engine) Stats() (hits, misses, drains, evicts uint64) {
	return e.nHit, e.nMiss, e.nDrain, e.nEvict
}

// Close releases the memory arena. It does not close the backing Device —
// the caller retains ownership of whatever it passed into New.
func (e *Engine) Close() error {
	return e.arena.Close()
}

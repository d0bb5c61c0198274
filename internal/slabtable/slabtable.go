// Package slabtable implements the per-slab metadata table: one fixed-size
// array of SlabInfo records indexed by sid, four tier queues (free-mem,
// full-mem, free-disk, full-disk), and each slab's intra-slab hole stack.
//
// Every queue and the hole stack are addressed by sid (an index into the
// fixed Slabs array, which is allocated once and never grows) rather than by
// Go pointer — the array never reallocates, so an index-linked intrusive
// list is equivalent to a pointer-based one here but avoids literal unsafe
// pointer arithmetic for a concern that doesn't need it.
package slabtable

import "github.com/Voskan/slabcache/internal/slabclass"

// Tier identifies whether a slab's bytes currently live in the memory arena
// or on the disk device.
type Tier uint8

const (
	TierMem Tier = iota
	TierDisk
)

// noSID is the sentinel "no slab" value used to terminate queue/LRU chains
// and the hole stack.
const noSID = ^uint32(0)

// SlabInfo is the per-slab metadata record.
type SlabInfo struct {
	SID    uint32
	Addr   uint32
	CID    uint8
	Tier   Tier
	NAlloc uint32

	holes []uint16 // intra-slab hole stack, LIFO

	qPrev, qNext uint32 // tier-queue membership (free/full), sid-linked
	onQueue      bool
}

// Full reports whether every item slot in this slab is allocated.
func (s *SlabInfo) Full(classes *slabclass.Table) bool {
	return classes.Class(s.CID).NItem == s.NAlloc
}

// PushHole records that the item at intra-slab index idx was freed and can
// be reused by the next allocation in this slab. NAlloc counts live slots,
// so it is decremented here and re-incremented when the hole is popped back
// out — a slab that has shrunk below its class's nitem is no longer Full.
func (s *SlabInfo) PushHole(idx uint16) {
	s.holes = append(s.holes, idx)
	s.NAlloc--
}

// PopHole returns and removes the most recently freed intra-slab index, or
// (0, false) if there are no holes.
func (s *SlabInfo) PopHole() (uint16, bool) {
	n := len(s.holes)
	if n == 0 {
		return 0, false
	}
	idx := s.holes[n-1]
	s.holes = s.holes[:n-1]
	return idx, true
}

// HasHoles reports whether this slab has any reusable hole.
func (s *SlabInfo) HasHoles() bool {
	return len(s.holes) > 0
}

// Queue is an sid-addressed intrusive doubly-linked list of slabs, used for
// the four tier queues: free-mem, full-mem, free-disk, full-disk.
type Queue struct {
	head, tail uint32
	n          int
}

func newQueue() Queue { return Queue{head: noSID, tail: noSID} }

// Len returns the number of slabs currently queued.
func (q *Queue) Len() int { return q.n }

// Empty reports whether the queue holds no slabs.
func (q *Queue) Empty() bool { return q.n == 0 }

// PushTail appends sid to the tail of the queue: new free slabs and
// newly-full slabs are appended, not prepended.
func (q *Queue) PushTail(slabs []SlabInfo, sid uint32) {
	s := &slabs[sid]
	if s.onQueue {
		panic("slabtable: slab already queued")
	}
	s.onQueue = true
	s.qPrev, s.qNext = q.tail, noSID
	if q.tail != noSID {
		slabs[q.tail].qNext = sid
	} else {
		q.head = sid
	}
	q.tail = sid
	q.n++
}

// PopHead removes and returns the slab at the head of the queue: both the
// free queue and the full queue are consumed head-first, FIFO.
func (q *Queue) PopHead(slabs []SlabInfo) (uint32, bool) {
	if q.head == noSID {
		return 0, false
	}
	sid := q.head
	q.Remove(slabs, sid)
	return sid, true
}

// Remove unlinks sid from the queue it currently belongs to.
func (q *Queue) Remove(slabs []SlabInfo, sid uint32) {
	s := &slabs[sid]
	if !s.onQueue {
		return
	}
	if s.qPrev != noSID {
		slabs[s.qPrev].qNext = s.qNext
	} else {
		q.head = s.qNext
	}
	if s.qNext != noSID {
		slabs[s.qNext].qPrev = s.qPrev
	} else {
		q.tail = s.qPrev
	}
	s.qPrev, s.qNext = noSID, noSID
	s.onQueue = false
	q.n--
}

// Table owns the fixed SlabInfo array, the four tier queues, and the
// per-tier free-address pools a slab's tier/addr are drawn from when its
// bytes migrate between tiers. SID identity and tier/addr assignment are
// deliberately independent: a slabinfo keeps its sid for its whole life, but
// the address it points at — and which tier that address lives in — can
// change under drain.
type Table struct {
	slabs []SlabInfo

	freeSID      []uint32 // sids never yet assigned to a slab, LIFO
	freeMemAddr  []uint32 // mem-tier addresses not currently bound to a sid, LIFO
	freeDiskAddr []uint32 // disk-tier addresses not currently bound to a sid, LIFO

	FreeMem  Queue
	FullMem  Queue
	FreeDisk Queue
	FullDisk Queue
}

// New preallocates a slab table for nMemSlab memory slabs and nDiskSlab disk
// slabs. Mirrors fc_slab.c's slab_init allocating one slabinfo per eventual
// slab up front, plus slab_init_sinfo's initial free-queue seeding — except
// here the free-address pools start fully populated and slabinfo records
// themselves are handed out lazily by Alloc, since a sid is only "real"
// once some tier's address has actually been bound to it.
func New(nMemSlab, nDiskSlab uint32) *Table {
	total := nMemSlab + nDiskSlab
	t := &Table{
		slabs:        make([]SlabInfo, total),
		freeSID:      make([]uint32, total),
		freeMemAddr:  make([]uint32, nMemSlab),
		freeDiskAddr: make([]uint32, nDiskSlab),
		FreeMem:      newQueue(),
		FullMem:      newQueue(),
		FreeDisk:     newQueue(),
		FullDisk:     newQueue(),
	}
	for i := uint32(0); i < total; i++ {
		t.slabs[i] = SlabInfo{SID: i, qPrev: noSID, qNext: noSID}
		t.freeSID[i] = total - 1 - i
	}
	for i := uint32(0); i < nMemSlab; i++ {
		t.freeMemAddr[i] = nMemSlab - 1 - i
	}
	for i := uint32(0); i < nDiskSlab; i++ {
		t.freeDiskAddr[i] = nDiskSlab - 1 - i
	}
	return t
}

// Slab returns a pointer to the SlabInfo record for sid.
func (t *Table) Slab(sid uint32) *SlabInfo {
	return &t.slabs[sid]
}

// Slabs exposes the backing array that the Queue methods (PushTail, PopHead,
// Remove) take to follow their sid links.
func (t *Table) Slabs() []SlabInfo {
	return t.slabs
}

func (t *Table) addrPool(tier Tier) *[]uint32 {
	if tier == TierDisk {
		return &t.freeDiskAddr
	}
	return &t.freeMemAddr
}

// AllocAddr pops a free address in the given tier, or false if that tier is
// completely full.
func (t *Table) AllocAddr(tier Tier) (uint32, bool) {
	pool := t.addrPool(tier)
	n := len(*pool)
	if n == 0 {
		return 0, false
	}
	addr := (*pool)[n-1]
	*pool = (*pool)[:n-1]
	return addr, true
}

// FreeAddr returns addr to tier's free-address pool, e.g. once its slab has
// been evicted, or for the memory address a slab leaves behind when drain
// relocates it to disk.
func (t *Table) FreeAddr(tier Tier, addr uint32) {
	pool := t.addrPool(tier)
	*pool = append(*pool, addr)
}

// Alloc pops an unassigned sid and binds it to (addr, cid, tier), used the
// first time a fresh slab is brought into service in either tier.
func (t *Table) Alloc(addr uint32, cid uint8, tier Tier) (uint32, bool) {
	n := len(t.freeSID)
	if n == 0 {
		return 0, false
	}
	sid := t.freeSID[n-1]
	t.freeSID = t.freeSID[:n-1]
	s := &t.slabs[sid]
	s.Addr, s.CID, s.Tier, s.NAlloc = addr, cid, tier, 0
	s.holes = s.holes[:0]
	return sid, true
}

// Retire returns sid's sid and current tier-address to their respective
// free pools, making both available for reuse — the final step once a
// slab's last live item has been reclaimed.
func (t *Table) Retire(sid uint32) {
	s := &t.slabs[sid]
	t.FreeAddr(s.Tier, s.Addr)
	t.freeSID = append(t.freeSID, sid)
}

// Relocate rebinds sid to a new (tier, addr) pair without touching its sid,
// cid, or hole state — the address-swap step of drain: sid is stable, only
// (tier, addr) migrates. The caller is responsible for returning the slab's
// previous address to the appropriate free pool.
func (t *Table) Relocate(sid uint32, tier Tier, addr uint32) {
	s := &t.slabs[sid]
	s.Tier, s.Addr = tier, addr
}

// FreeQueue returns the free-tier queue slabs of this tier are pushed to.
func (t *Table) FreeQueue(tier Tier) *Queue {
	if tier == TierDisk {
		return &t.FreeDisk
	}
	return &t.FreeMem
}

// FullQueue returns the full-tier queue slabs of this tier are pushed to.
func (t *Table) FullQueue(tier Tier) *Queue {
	if tier == TierDisk {
		return &t.FullDisk
	}
	return &t.FullMem
}

// Package lru implements the write-sensitive slab LRU: a plain
// sid-addressed doubly-linked list, touched only on a write-path event,
// never on read. The allocator keeps one List per tier (memory and disk), so
// Touch/PopHead never compare tiers themselves.
//
// The append/remove list bookkeeping is adapted from a ring-buffer
// replacement policy over a fixed backing array; the ring's CLOCK-Pro
// hot/cold/test state machine itself is dropped in favor of a strict
// "never touch on read" rule a generational clock cannot express without
// becoming a different algorithm.
package lru

// noSID is the sentinel "not linked" value.
const noSID = ^uint32(0)

// List is one write-sensitive LRU chain over a fixed universe of nslab sids.
// The zero value is not usable; construct with New.
type List struct {
	prev, next []uint32
	linked     []bool
	head, tail uint32
	n          int
}

// New allocates a List addressable over sids [0, nslab).
func New(nslab uint32) *List {
	l := &List{
		prev:   make([]uint32, nslab),
		next:   make([]uint32, nslab),
		linked: make([]bool, nslab),
		head:   noSID,
		tail:   noSID,
	}
	for i := range l.prev {
		l.prev[i], l.next[i] = noSID, noSID
	}
	return l
}

// Len returns the number of slabs currently linked.
func (l *List) Len() int { return l.n }

// Touch moves sid to the most-recently-used end of the chain, linking it in
// if it wasn't already. The allocator calls it once per slab on the memory
// list, when the slab fills, and once on the disk list when the slab is
// drained. Idempotent for a sid already at the MRU end.
func (l *List) Touch(sid uint32) {
	if l.linked[sid] {
		if l.tail == sid {
			return
		}
		l.unlink(sid)
	}
	l.linked[sid] = true
	l.n++
	l.prev[sid] = l.tail
	l.next[sid] = noSID
	if l.tail != noSID {
		l.next[l.tail] = sid
	} else {
		l.head = sid
	}
	l.tail = sid
}

// Remove unlinks sid if it is linked and does nothing otherwise. The
// allocator itself takes slabs off a list only through PopHead.
func (l *List) Remove(sid uint32) {
	if !l.linked[sid] {
		return
	}
	l.unlink(sid)
}

func (l *List) unlink(sid uint32) {
	p, n := l.prev[sid], l.next[sid]
	if p != noSID {
		l.next[p] = n
	} else {
		l.head = n
	}
	if n != noSID {
		l.prev[n] = p
	} else {
		l.tail = p
	}
	l.prev[sid], l.next[sid] = noSID, noSID
	l.linked[sid] = false
	l.n--
}

// PeekHead returns the least-recently-used sid without removing it, or
// (0, false) if the list is empty.
func (l *List) PeekHead() (uint32, bool) {
	if l.head == noSID {
		return 0, false
	}
	return l.head, true
}

// PopHead removes and returns the least-recently-used sid: once a victim is
// chosen for eviction it leaves the LRU unconditionally.
func (l *List) PopHead() (uint32, bool) {
	sid, ok := l.PeekHead()
	if !ok {
		return 0, false
	}
	l.unlink(sid)
	return sid, true
}

// Linked reports whether sid currently belongs to this list.
func (l *List) Linked(sid uint32) bool {
	return l.linked[sid]
}

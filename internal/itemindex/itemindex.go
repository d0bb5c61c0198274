// Package itemindex implements the in-memory item index: a
// fixed-bucket hash table over item digests, each bucket a HotRing chain —
// a singly-linked list of itemx records that reorders itself on lookup so
// the most recently found entry moves toward the bucket head, without
// disturbing the relative order of every other entry in the chain.
//
// Grounded directly on fc_itemx.c/fc_itemx.h: itemx_get's hash-then-walk,
// _hotring_get's splice-out/reinsert-at-head promotion, itemx_removex's
// hole bookkeeping, and itemx_expire's lazy-expiry reuse of the remove path.
package itemindex

import (
	"github.com/cespare/xxhash/v2"

	"github.com/Voskan/slabcache/internal/digest"
)

// noEntry is the sentinel "no itemx" chain terminator.
const noEntry = ^uint32(0)

// hotRingThreshold is the number of successful non-head lookups a bucket
// accumulates before its matched entry is promoted to the chain head.
// Mirrors fc_itemx.c's HR_QUERY_THRESHOLD.
const hotRingThreshold = 5

// Entry is one itemx record: a digest bound to its current (sid, offset)
// location plus an optional absolute expiry.
type Entry struct {
	Digest digest.Digest
	SID    uint32
	Offset uint16
	Expiry uint32 // 0 means no TTL

	next uint32 // next entry in this bucket's HotRing chain
	used bool
}

// Table is the full item index: nbucket HotRing chains over a fixed pool of
// Entry records, one itemx per live item, preallocated up front.
type Table struct {
	buckets    []uint32 // bucket head -> entry index, or noEntry
	queryCount []uint8  // per-bucket HotRing promotion counter
	mask       uint64

	entries []Entry
	free    []uint32 // free entry indices, LIFO

	nused uint32 // live item count, tracked centrally here rather than per bucket
}

// New builds an index with nbucket buckets (rounded up to a power of two)
// and room for maxItems live entries.
func New(nbucket uint32, maxItems uint32) *Table {
	nb := nextPow2(nbucket)
	t := &Table{
		buckets:    make([]uint32, nb),
		queryCount: make([]uint8, nb),
		mask:       uint64(nb - 1),
		entries:    make([]Entry, maxItems),
		free:       make([]uint32, maxItems),
	}
	for i := range t.buckets {
		t.buckets[i] = noEntry
	}
	for i := uint32(0); i < maxItems; i++ {
		t.free[i] = maxItems - 1 - i
	}
	return t
}

func nextPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (t *Table) bucketOf(d digest.Digest) uint64 {
	return xxhash.Sum64(d[:]) & t.mask
}

// NUsed returns the number of live entries.
func (t *Table) NUsed() uint32 { return t.nused }

// Lookup finds the entry for d, applying HotRing's threshold-gated
// promotion: a match at the head returns immediately with no bookkeeping.
// A match elsewhere in the chain only moves to the head once the bucket has
// accumulated hotRingThreshold-1 prior non-head hits; until then the hit
// just increments the bucket's counter and the chain order is untouched.
// On promotion the predecessor is reconnected to the matched entry's
// original successor, so every other entry keeps its relative order.
// Mirrors fc_itemx.c's hotring_get/_hotring_get.
func (t *Table) Lookup(d digest.Digest) (*Entry, bool) {
	b := t.bucketOf(d)
	head := t.buckets[b]
	if head == noEntry {
		return nil, false
	}
	if t.entries[head].Digest == d {
		return &t.entries[head], true
	}

	promote := t.queryCount[b] == hotRingThreshold-1
	prev := head
	cur := t.entries[head].next
	for cur != noEntry {
		e := &t.entries[cur]
		if e.Digest == d {
			if promote {
				// splice cur out, reconnecting prev -> cur.next
				t.entries[prev].next = e.next
				// reinsert cur at the chain head
				e.next = head
				t.buckets[b] = cur
				t.queryCount[b] = 0
			} else {
				t.queryCount[b]++
			}
			return e, true
		}
		prev = cur
		cur = e.next
	}
	return nil, false
}

// Peek finds the entry for d without any HotRing promotion (used by callers
// that only need to check liveness/expiry, e.g. before a destructive op).
func (t *Table) Peek(d digest.Digest) (*Entry, bool) {
	cur := t.buckets[t.bucketOf(d)]
	for cur != noEntry {
		e := &t.entries[cur]
		if e.Digest == d {
			return e, true
		}
		cur = e.next
	}
	return nil, false
}

// Insert adds a new entry for d at position 1 of its bucket chain — directly
// after the existing head, or as the head itself if the bucket is empty —
// returning false if the entry pool is exhausted (the caller's signal to
// evict before retrying). A freshly inserted entry is therefore not
// immediately hot: it only reaches the head after HotRing promotion.
func (t *Table) Insert(d digest.Digest, sid uint32, offset uint16, expiry uint32) (*Entry, bool) {
	n := len(t.free)
	if n == 0 {
		return nil, false
	}
	idx := t.free[n-1]
	t.free = t.free[:n-1]

	b := t.bucketOf(d)
	e := &t.entries[idx]
	*e = Entry{Digest: d, SID: sid, Offset: offset, Expiry: expiry, used: true}

	head := t.buckets[b]
	if head == noEntry {
		e.next = noEntry
		t.buckets[b] = idx
	} else {
		e.next = t.entries[head].next
		t.entries[head].next = idx
	}
	t.nused++
	return e, true
}

// Remove deletes the entry for d from the index, returning the entry's last
// known (sid, offset) so the caller can push a hole at that location.
// Returns false if d is not indexed.
func (t *Table) Remove(d digest.Digest) (sid uint32, offset uint16, ok bool) {
	b := t.bucketOf(d)
	var prev uint32 = noEntry
	cur := t.buckets[b]
	for cur != noEntry {
		e := &t.entries[cur]
		if e.Digest == d {
			if prev != noEntry {
				t.entries[prev].next = e.next
			} else {
				t.buckets[b] = e.next
			}
			sid, offset = e.SID, e.Offset
			*e = Entry{}
			t.free = append(t.free, cur)
			t.nused--
			return sid, offset, true
		}
		prev = cur
		cur = e.next
	}
	return 0, 0, false
}

// Expired reports whether e has a TTL and now is at or past it. Items past
// their expiry are lazily collected the next time they're touched, reusing
// the same remove path as an explicit delete.
func Expired(e *Entry, now uint32) bool {
	return e.Expiry != 0 && now >= e.Expiry
}

// RemoveExpired removes d if its entry is expired as of now, returning the
// freed (sid, offset) so the caller can reclaim the hole exactly as it
// would for an explicit delete.
func (t *Table) RemoveExpired(d digest.Digest, now uint32) (sid uint32, offset uint16, removed bool) {
	e, ok := t.Peek(d)
	if !ok || !Expired(e, now) {
		return 0, 0, false
	}
	return t.Remove(d)
}

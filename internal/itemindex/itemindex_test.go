package itemindex

import (
	"testing"

	"github.com/Voskan/slabcache/internal/digest"
)

func dig(s string) digest.Digest { return digest.Sum([]byte(s)) }

func TestInsertLookupRoundTrip(t *testing.T) {
	tbl := New(16, 64)
	d := dig("hello")
	if _, ok := tbl.Insert(d, 7, 3, 0); !ok {
		t.Fatalf("Insert failed")
	}
	e, ok := tbl.Lookup(d)
	if !ok {
		t.Fatalf("Lookup miss after Insert")
	}
	if e.SID != 7 || e.Offset != 3 {
		t.Fatalf("Lookup() = {sid:%d offset:%d}, want {7 3}", e.SID, e.Offset)
	}
	if tbl.NUsed() != 1 {
		t.Fatalf("NUsed() = %d, want 1", tbl.NUsed())
	}
}

func TestRemoveReturnsLastLocation(t *testing.T) {
	tbl := New(16, 64)
	d := dig("evict-me")
	tbl.Insert(d, 11, 5, 0)
	sid, offset, ok := tbl.Remove(d)
	if !ok || sid != 11 || offset != 5 {
		t.Fatalf("Remove() = (%d, %d, %v), want (11, 5, true)", sid, offset, ok)
	}
	if _, ok := tbl.Lookup(d); ok {
		t.Fatalf("Lookup found entry after Remove")
	}
	if tbl.NUsed() != 0 {
		t.Fatalf("NUsed() = %d, want 0", tbl.NUsed())
	}
}

func TestExpiredEntryIsLazilyCollected(t *testing.T) {
	tbl := New(16, 64)
	d := dig("ttl-key")
	tbl.Insert(d, 1, 0, 100)
	if Expired(mustPeek(t, tbl, d), 50) {
		t.Fatalf("entry reported expired before its TTL")
	}
	if !Expired(mustPeek(t, tbl, d), 100) {
		t.Fatalf("entry not reported expired at its TTL boundary")
	}
	sid, offset, removed := tbl.RemoveExpired(d, 200)
	if !removed || sid != 1 || offset != 0 {
		t.Fatalf("RemoveExpired() = (%d, %d, %v), want (1, 0, true)", sid, offset, removed)
	}
	if _, ok := tbl.Peek(d); ok {
		t.Fatalf("entry still indexed after RemoveExpired")
	}
}

func mustPeek(t *testing.T, tbl *Table, d digest.Digest) *Entry {
	t.Helper()
	e, ok := tbl.Peek(d)
	if !ok {
		t.Fatalf("Peek miss")
	}
	return e
}

// TestInsertLinksAtPositionOne verifies new entries land directly after the
// head rather than becoming the head themselves.
func TestInsertLinksAtPositionOne(t *testing.T) {
	tbl := New(1, 64)
	a, b, c := dig("a"), dig("b"), dig("c")
	tbl.Insert(a, 1, 0, 0) // [a]
	tbl.Insert(b, 2, 0, 0) // [a, b]
	tbl.Insert(c, 3, 0, 0) // [a, c, b]

	got := chainDigests(tbl)
	want := []digest.Digest{a, c, b}
	if !sameOrder(got, want) {
		t.Fatalf("chain after inserts = %v, want %v", got, want)
	}
}

// TestHotRingPromotionGatedByThreshold verifies P5: a non-head match does not
// move until it has been found hotRingThreshold times; the hotRingThreshold'th
// hit promotes it to the head and resets the bucket counter, while the chain
// order of every other entry is preserved (Open Question Q1's chosen answer).
func TestHotRingPromotionGatedByThreshold(t *testing.T) {
	tbl := New(1, 64) // a single bucket forces every key into one chain
	a, b, c := dig("a"), dig("b"), dig("c")
	tbl.Insert(a, 1, 0, 0) // [a]
	tbl.Insert(b, 2, 0, 0) // [a, b]
	tbl.Insert(c, 3, 0, 0) // [a, c, b]

	for i := 0; i < hotRingThreshold-1; i++ {
		if _, ok := tbl.Lookup(b); !ok {
			t.Fatalf("Lookup(b) miss on iteration %d", i)
		}
		got := chainDigests(tbl)
		want := []digest.Digest{a, c, b}
		if !sameOrder(got, want) {
			t.Fatalf("chain moved before threshold reached (iteration %d): got %v, want %v", i, got, want)
		}
	}

	// The hotRingThreshold'th non-head lookup promotes b to the head; a and c
	// keep their relative order.
	if _, ok := tbl.Lookup(b); !ok {
		t.Fatalf("Lookup(b) miss on promoting call")
	}
	got := chainDigests(tbl)
	want := []digest.Digest{b, a, c}
	if !sameOrder(got, want) {
		t.Fatalf("chain after promotion = %v, want %v", got, want)
	}
}

func chainDigests(tbl *Table) []digest.Digest {
	var out []digest.Digest
	cur := tbl.buckets[0]
	for cur != noEntry {
		e := &tbl.entries[cur]
		out = append(out, e.Digest)
		cur = e.next
	}
	return out
}

func sameOrder(a, b []digest.Digest) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsertFailsWhenPoolExhausted(t *testing.T) {
	tbl := New(4, 2)
	tbl.Insert(dig("a"), 0, 0, 0)
	tbl.Insert(dig("b"), 0, 1, 0)
	if _, ok := tbl.Insert(dig("c"), 0, 2, 0); ok {
		t.Fatalf("Insert succeeded past pool capacity")
	}
}

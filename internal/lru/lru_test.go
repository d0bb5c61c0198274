package lru

import "testing"

func TestTouchOrdersByRecency(t *testing.T) {
	l := New(4)
	l.Touch(0)
	l.Touch(1)
	l.Touch(2)
	// head (LRU) should be 0, since it was touched first.
	head, ok := l.PeekHead()
	if !ok || head != 0 {
		t.Fatalf("PeekHead() = (%d, %v), want (0, true)", head, ok)
	}
	l.Touch(0) // re-touch moves 0 to MRU end
	head, ok = l.PeekHead()
	if !ok || head != 1 {
		t.Fatalf("after re-touch, PeekHead() = (%d, %v), want (1, true)", head, ok)
	}
}

func TestPopHeadDrainsInLRUOrder(t *testing.T) {
	l := New(3)
	l.Touch(2)
	l.Touch(0)
	l.Touch(1)
	want := []uint32{2, 0, 1}
	for _, w := range want {
		got, ok := l.PopHead()
		if !ok || got != w {
			t.Fatalf("PopHead() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}
	if _, ok := l.PopHead(); ok {
		t.Fatalf("PopHead() on empty list returned ok=true")
	}
}

func TestRemoveUnlinksMidChain(t *testing.T) {
	l := New(3)
	l.Touch(0)
	l.Touch(1)
	l.Touch(2)
	l.Remove(1)
	if l.Linked(1) {
		t.Fatalf("Linked(1) = true after Remove")
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	got, _ := l.PopHead()
	if got != 0 {
		t.Fatalf("PopHead() = %d, want 0", got)
	}
	got, _ = l.PopHead()
	if got != 2 {
		t.Fatalf("PopHead() = %d, want 2", got)
	}
}

func TestNeverTouchedIsNotLinked(t *testing.T) {
	l := New(2)
	l.Touch(0)
	if l.Linked(1) {
		t.Fatalf("Linked(1) = true, want false (never touched)")
	}
}

// Package slabclass implements the static partition of the item-size space
// into classes: a sorted array keyed by class id, each class
// knowing its item size, items-per-slab, and unusable slack.
package slabclass

import (
	"fmt"
	"sort"

	"github.com/Voskan/slabcache/internal/errs"
)

// MinID is the lowest valid class id.
const MinID uint8 = 0

// InvalidID is returned by CID when no class is large enough for a size.
const InvalidID uint8 = 0xff

// Class describes one slab class: a fixed item size and the derived
// items-per-slab / slack for the configured slab data size.
type Class struct {
	ID       uint8
	ItemSize uint32
	NItem    uint32
	Slack    uint32
}

// Table is the sorted class array, indexed by id, built once at startup from
// an ascending size profile.
type Table struct {
	classes []Class
}

// Build constructs the class table from an ascending profile of item sizes.
// dataSize is the usable per-slab byte budget (slab_size - header size).
// Mirrors fc_slab.c's slab_init_ctable.
func Build(profile []uint32, dataSize uint32) (*Table, error) {
	if len(profile) == 0 {
		return nil, fmt.Errorf("%w: slab class profile must not be empty", errs.ErrBadConfig)
	}
	if len(profile) > int(InvalidID) {
		return nil, fmt.Errorf("%w: profile has %d entries, max %d", errs.ErrBadConfig, len(profile), InvalidID)
	}
	classes := make([]Class, len(profile))
	prev := uint32(0)
	for i, size := range profile {
		if size == 0 {
			return nil, fmt.Errorf("%w: class %d has zero item size", errs.ErrBadConfig, i)
		}
		if size <= prev {
			return nil, fmt.Errorf("%w: profile must be strictly ascending (class %d: %d <= %d)", errs.ErrBadConfig, i, size, prev)
		}
		if size > dataSize {
			return nil, fmt.Errorf("%w: class %d item size %d exceeds slab data size %d", errs.ErrBadConfig, i, size, dataSize)
		}
		nitem := dataSize / size
		classes[i] = Class{
			ID:       uint8(i),
			ItemSize: size,
			NItem:    nitem,
			Slack:    dataSize - nitem*size,
		}
		prev = size
	}
	return &Table{classes: classes}, nil
}

// Len returns the number of classes.
func (t *Table) Len() int { return len(t.classes) }

// Class returns the class with the given id.
func (t *Table) Class(cid uint8) *Class {
	return &t.classes[cid]
}

// CID returns the smallest class id whose ItemSize >= size, or InvalidID if
// size exceeds every class. Mirrors fc_slab.c's slab_cid: a binary search
// for the lowest cid with item_size >= size.
func (t *Table) CID(size uint32) uint8 {
	n := len(t.classes)
	idx := sort.Search(n, func(i int) bool {
		return t.classes[i].ItemSize >= size
	})
	if idx == n {
		return InvalidID
	}
	return uint8(idx)
}

// Valid reports whether cid names a real class within this table, mirroring
// fc_slab.c's slab_valid_id.
func (t *Table) Valid(cid uint8) bool {
	return cid != InvalidID && int(cid) < len(t.classes)
}

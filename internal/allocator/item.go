package allocator

import (
	"encoding/binary"
	"fmt"

	"github.com/Voskan/slabcache/internal/digest"
	"github.com/Voskan/slabcache/internal/errs"
)

// itemMagic marks the start of a live item record on the wire, letting evict
// distinguish a real item from an unwritten or torn slot before trusting its
// digest.
const itemMagic = uint32(0xf00dcafe)

// itemHeaderSize is the fixed prefix before an item's value bytes: magic,
// cid, sid, digest, value length, absolute expiry. cid/sid let the read path
// catch a misrouted read (a slot whose bytes belong to some other slab or
// class) instead of trusting (sid, offset) blindly.
const itemHeaderSize = 4 + 1 + 4 + digest.Size + 4 + 4

// encodeItem writes an item record (header + value) into dst, which must be
// at least itemHeaderSize+len(value) bytes. cid/sid identify the slab this
// item is being written into, for read-time validation. Returns the number
// of bytes written.
func encodeItem(dst []byte, d digest.Digest, value []byte, expiry uint32, cid uint8, sid uint32) int {
	binary.LittleEndian.PutUint32(dst[0:4], itemMagic)
	dst[4] = cid
	binary.LittleEndian.PutUint32(dst[5:9], sid)
	off := 9
	copy(dst[off:off+digest.Size], d[:])
	off += digest.Size
	binary.LittleEndian.PutUint32(dst[off:off+4], uint32(len(value)))
	binary.LittleEndian.PutUint32(dst[off+4:off+8], expiry)
	copy(dst[itemHeaderSize:], value)
	return itemHeaderSize + len(value)
}

// decodeItem parses an item record out of src. Returns errs.ErrIO if src is
// short or the magic doesn't match: a torn or reused slot is an I/O-level
// inconsistency, not a cache miss. cid/sid are returned unvalidated — the
// caller knows which slab it read from and must compare them against that
// slab's own cid/sid.
func decodeItem(src []byte) (d digest.Digest, value []byte, expiry uint32, cid uint8, sid uint32, err error) {
	if len(src) < itemHeaderSize {
		return d, nil, 0, 0, 0, fmt.Errorf("%w: item record shorter than header", errs.ErrIO)
	}
	magic := binary.LittleEndian.Uint32(src[0:4])
	if magic != itemMagic {
		return d, nil, 0, 0, 0, fmt.Errorf("%w: item magic mismatch (got %#x)", errs.ErrIO, magic)
	}
	cid = src[4]
	sid = binary.LittleEndian.Uint32(src[5:9])
	off := 9
	copy(d[:], src[off:off+digest.Size])
	off += digest.Size
	dataLen := binary.LittleEndian.Uint32(src[off : off+4])
	expiry = binary.LittleEndian.Uint32(src[off+4 : off+8])
	end := itemHeaderSize + int(dataLen)
	if end > len(src) {
		return d, nil, 0, 0, 0, fmt.Errorf("%w: item value length %d exceeds record", errs.ErrIO, dataLen)
	}
	value = src[itemHeaderSize:end]
	return d, value, expiry, cid, sid, nil
}

// itemRecordSize returns the on-wire size of an item holding a value of the
// given length.
func itemRecordSize(valueLen int) int {
	return itemHeaderSize + valueLen
}

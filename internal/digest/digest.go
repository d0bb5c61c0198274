// Package digest computes the 20-byte SHA-1 key digest the rest of the
// engine treats as opaque. It is intentionally the thinnest possible wrapper
// around crypto/sha1 — the core never hashes anything itself, it only
// consumes digests produced here.
package digest

import "crypto/sha1"

// Size is the digest length in bytes.
const Size = sha1.Size

// Digest is an opaque 20-byte SHA-1 message digest of a user key.
type Digest [Size]byte

// Sum computes the digest of key. Pure function: same key always yields the
// same Digest, no allocation beyond the returned array.
func Sum(key []byte) Digest {
	return Digest(sha1.Sum(key))
}

// String renders the digest as lowercase hex, for logs and debug dumps.
func (d Digest) String() string {
	const hextab = "0123456789abcdef"
	var buf [Size * 2]byte
	for i, b := range d {
		buf[i*2] = hextab[b>>4]
		buf[i*2+1] = hextab[b&0x0f]
	}
	return string(buf[:])
}

package model

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Counter is a saturating two-outcome context counter: how many times the
// context this counter is keyed by was followed by a 0 bit versus a 1 bit.
type Counter struct {
	N0, N1 uint8
}

// Update records an observed bit. When saturate is true, a counter already
// at 255 stays at 255 (new evidence keeps influencing the mix); when false,
// it wraps to 0.
func (c *Counter) Update(bit int, saturate bool) {
	n := &c.N0
	if bit != 0 {
		n = &c.N1
	}
	if *n == 255 {
		if !saturate {
			*n = 0
		}
		return
	}
	*n++
}

// contextBytes returns the up-to-MaxContextLength bytes preceding
// position pos in buf, most-recent first, falling back to seed for bytes
// before the start of buf. seed[7] is the byte immediately preceding
// buf[0], seed[6] the one before that, and so on.
func contextBytes(buf []byte, seed [MaxContextLength]byte, pos int) [MaxContextLength]byte {
	var ctx [MaxContextLength]byte
	for i := 0; i < MaxContextLength; i++ {
		srcPos := pos - i - 1
		if srcPos >= 0 {
			ctx[i] = buf[srcPos]
		} else if si := MaxContextLength + srcPos; si >= 0 {
			ctx[i] = seed[si]
		}
	}
	return ctx
}

// maskContext packs the bytes of ctx selected by mask into a single key,
// zeroing any byte slot the mask does not select.
func maskContext(ctx [MaxContextLength]byte, mask byte) uint64 {
	var v uint64
	for i := 0; i < MaxContextLength; i++ {
		if mask&(1<<uint(i)) != 0 {
			v |= uint64(ctx[i]) << (8 * uint(i))
		}
	}
	return v
}

// contextKey hashes a masked context together with the bit index within
// the current byte and the bits of the current byte already fixed
// (partial), so that different bit positions within the same byte, or
// different partial prefixes, never alias.
func contextKey(maskedCtx uint64, bit int, partial byte) uint64 {
	var buf [10]byte
	binary.LittleEndian.PutUint64(buf[:8], maskedCtx)
	buf[8] = byte(bit)
	buf[9] = partial
	return xxhash.Sum64(buf[:])
}

// HashBits is a cache of context keys for a fixed set of masks over a
// fixed data segment: computed once per (data, seed, masks) triple, then
// reused across every model-subset trial a search makes over that data,
// so adding or removing a model from consideration never re-hashes.
type HashBits struct {
	Masks []byte
	// Keys[m][pos][bit] is the context key for mask Masks[m], byte
	// position pos, bit index bit (0 = most significant).
	Keys [][][8]uint64
}

// ComputeHashBits precomputes context keys for every position in data and
// every mask in masks, using seed as the context for positions near the
// start of data.
func ComputeHashBits(data []byte, seed [MaxContextLength]byte, masks []byte) *HashBits {
	hb := &HashBits{
		Masks: append([]byte(nil), masks...),
		Keys:  make([][][8]uint64, len(masks)),
	}
	for mi, mask := range masks {
		keys := make([][8]uint64, len(data))
		for pos := range data {
			maskedCtx := maskContext(contextBytes(data, seed, pos), mask)
			var partial byte
			for bit := 0; bit < 8; bit++ {
				keys[pos][bit] = contextKey(maskedCtx, bit, partial)
				partial = partial<<1 | (data[pos]>>(7-bit))&1
			}
		}
		hb.Keys[mi] = keys
	}
	return hb
}

// IndexOf returns the index within Masks of the given mask, or -1 if it is
// not present. Search uses this to pull out a subset of an already
// computed HashBits without recomputing it.
func (hb *HashBits) IndexOf(mask byte) int {
	for i, m := range hb.Masks {
		if m == mask {
			return i
		}
	}
	return -1
}

// TinyHashEntry is the fixed-size open-addressed table entry shape the
// depacker uses at run time: a single context counter, addressed directly
// by key modulo the table size with no chaining, so that colliding
// contexts simply share (and corrupt) each other's statistics.
type TinyHashEntry = Counter

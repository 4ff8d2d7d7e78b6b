package model

import "moria.us/mlink/arith"

// A Segment is one independently-modeled region of the flat image: its raw
// bytes and the context bytes immediately preceding it (the seed, drawn
// from whatever segment precedes it in the image, or zero for the first).
type Segment struct {
	Data []byte
	Seed [MaxContextLength]byte
}

// mix computes the raw zero- and one-side weights the list's counters and
// weights produce for one bit: each model contributes 2^weight *
// (N0 + baseProb) to the zero side and 2^weight * (N1 + baseProb) to the
// one side.
func mix(models []Model, counters []*Counter, baseProb uint32) (zero, one uint64) {
	for i, c := range counters {
		w := models[i].Weight
		if w > 62 {
			w = 62
		}
		shift := uint64(1) << w
		zero += shift * (uint64(c.N0) + uint64(baseProb))
		one += shift * (uint64(c.N1) + uint64(baseProb))
	}
	if zero == 0 {
		zero = 1
	}
	if one == 0 {
		one = 1
	}
	return
}

// normalize scales a pair of mix weights down so both fit comfortably in
// the coder's 32-bit probability inputs, preserving their ratio.
func normalize(zero, one uint64) (uint32, uint32) {
	const maxBits = 28
	hi := zero
	if one > hi {
		hi = one
	}
	shift := 0
	for hi >= 1<<maxBits {
		hi >>= 1
		shift++
	}
	z := zero >> uint(shift)
	o := one >> uint(shift)
	if z == 0 {
		z = 1
	}
	if o == 0 {
		o = 1
	}
	return uint32(z), uint32(o)
}

// EvaluateSize4k returns the exact coded size, in PrecisionBits-fraction
// bits, that compressing each segment with its corresponding model list
// would take under an unbounded (collision-free) context table. This is
// the "ideal" size used to drive model search: actual compression, which
// must use a fixed-size table the runtime depacker can replicate, is
// computed separately by Compress4k and may cost a little more.
func EvaluateSize4k(segments []Segment, lists []*ModelList4k, baseProb uint32, saturate bool) (total int64, perSegment []int64) {
	for i, seg := range segments {
		size := evaluateSegment4k(seg, lists[i], baseProb, saturate, nil)
		perSegment = append(perSegment, size)
		total += size
	}
	return
}

// evaluateSegment4k evaluates one segment. If hb is non-nil it is used in
// place of recomputing context keys (search reuses a cache this way);
// otherwise keys are computed fresh for ml's exact mask set.
func evaluateSegment4k(seg Segment, ml *ModelList4k, baseProb uint32, saturate bool, hb *HashBits) int64 {
	masks := ml.MaskList()
	if hb == nil {
		hb = ComputeHashBits(seg.Data, seg.Seed, masks)
	}
	colIdx := make([]int, len(masks))
	for i, m := range masks {
		colIdx[i] = hb.IndexOf(m)
	}

	counters := make(map[uint64]*Counter)
	cs := make([]*Counter, len(ml.Models))
	var size int64
	for pos, byteVal := range seg.Data {
		for bit := 0; bit < 8; bit++ {
			b := int((byteVal >> (7 - uint(bit))) & 1)
			for mi, ci := range colIdx {
				if ci < 0 {
					cs[mi] = &Counter{}
					continue
				}
				key := hb.Keys[ci][pos][bit]
				c := counters[key]
				if c == nil {
					c = &Counter{}
					counters[key] = c
				}
				cs[mi] = c
			}
			zero, one := mix(ml.Models, cs, baseProb)
			zp, op := normalize(zero, one)
			var right, wrong uint32
			if b == 0 {
				right, wrong = zp, op
			} else {
				right, wrong = op, zp
			}
			size += int64(arith.SizeOf(right, wrong))
			for _, c := range cs {
				c.Update(b, saturate)
			}
		}
	}
	return size
}

// Compress4k codes every segment in order with its model list, against a
// shared fixed-size context table of the given size (which may be smaller
// than the number of distinct contexts actually seen, in which case
// colliding contexts share statistics and cost extra bits — see the
// hash-table optimizer). sizeFill, if non-nil, receives the cumulative bit
// position after each input byte, for compression reporting.
func Compress4k(segments []Segment, lists []*ModelList4k, baseProb uint32, saturate bool, hashSize int, sizeFill []int32) []byte {
	table := make([]Counter, hashSize)
	s := arith.NewState()
	fillPos := 0
	for i, seg := range segments {
		ml := lists[i]
		masks := ml.MaskList()
		hb := ComputeHashBits(seg.Data, seg.Seed, masks)
		cs := make([]*Counter, len(ml.Models))
		for pos, byteVal := range seg.Data {
			for bit := 0; bit < 8; bit++ {
				b := int((byteVal >> (7 - uint(bit))) & 1)
				for mi := range ml.Models {
					key := hb.Keys[mi][pos][bit]
					idx := int(key % uint64(hashSize))
					cs[mi] = &table[idx]
				}
				zero, one := mix(ml.Models, cs, baseProb)
				zp, op := normalize(zero, one)
				s.Code(zp, op, b)
				for _, c := range cs {
					c.Update(b, saturate)
				}
			}
			if sizeFill != nil && fillPos < len(sizeFill) {
				sizeFill[fillPos] = int32(s.Pos())
				fillPos++
			}
		}
	}
	s.Finish()
	return s.Bytes()
}

// Decompress4k is the exact inverse of Compress4k: given the coded bytes,
// the model lists, and the length of each segment, it reconstructs the
// original bytes.
func Decompress4k(coded []byte, lengths []int, seeds [][MaxContextLength]byte, lists []*ModelList4k, baseProb uint32, saturate bool, hashSize int) []byte {
	table := make([]Counter, hashSize)
	d := arith.NewDecoder(coded)
	var out []byte
	for i, n := range lengths {
		ml := lists[i]
		masks := ml.MaskList()
		start := len(out)
		cs := make([]*Counter, len(ml.Models))
		for pos := 0; pos < n; pos++ {
			maskedCtxs := make([]uint64, len(masks))
			for mi, mask := range masks {
				ctx := contextBytes(out[start:], seeds[i], pos)
				maskedCtxs[mi] = maskContext(ctx, mask)
			}
			var byteVal byte
			for bit := 0; bit < 8; bit++ {
				partial := byteVal
				for mi := range ml.Models {
					key := contextKey(maskedCtxs[mi], bit, partial)
					idx := int(key % uint64(hashSize))
					cs[mi] = &table[idx]
				}
				zero, one := mix(ml.Models, cs, baseProb)
				zp, op := normalize(zero, one)
				bit01 := d.Decode(zp, op)
				for _, c := range cs {
					c.Update(bit01, saturate)
				}
				byteVal = byteVal<<1 | byte(bit01)
			}
			out = append(out, byteVal)
		}
	}
	return out
}

// mix1k computes the zero/one mix weights for the 1k coder's fixed
// scheme: every enabled palette context contributes equally, shifted by a
// single shared boost, with the base probability selected by the value of
// the bit immediately preceding the one being coded (or BaseProb0 for the
// first bit of a byte, which has no preceding sibling).
func mix1k(ml ModelList1k, counters []*Counter, ancestorBit int) (zero, one uint64) {
	baseProb := ml.BaseProb0
	if ancestorBit == 1 {
		baseProb = ml.BaseProb1
	}
	shift := ml.Boost
	if shift > 62 {
		shift = 62
	}
	w := uint64(1) << shift
	for _, c := range counters {
		zero += w * (uint64(c.N0) + uint64(baseProb))
		one += w * (uint64(c.N1) + uint64(baseProb))
	}
	if zero == 0 {
		zero = 1
	}
	if one == 0 {
		one = 1
	}
	return
}

// ancestorBitOf returns the value of the bit immediately preceding the one
// about to be coded within the same byte. byteVal holds the bits already
// coded for this byte, most recently coded in its low bit (built up via
// byteVal = byteVal<<1 | bit), so the ancestor is simply that low bit.
func ancestorBitOf(byteVal byte, bit int) int {
	if bit == 0 {
		return 0
	}
	return int(byteVal & 1)
}

// EvaluateSize1k returns the exact coded size, in PrecisionBits-fraction
// bits, of compressing data under ml's fixed scheme with an unbounded
// context table.
func EvaluateSize1k(data []byte, ml ModelList1k) int64 {
	masks := ml.EnabledMasks()
	var seed [MaxContextLength]byte
	hb := ComputeHashBits(data, seed, masks)
	counters := make(map[uint64]*Counter)
	cs := make([]*Counter, len(masks))
	var size int64
	for pos, byteVal := range data {
		for bit := 0; bit < 8; bit++ {
			b := int((byteVal >> (7 - uint(bit))) & 1)
			for mi := range masks {
				key := hb.Keys[mi][pos][bit]
				c := counters[key]
				if c == nil {
					c = &Counter{}
					counters[key] = c
				}
				cs[mi] = c
			}
			zero, one := mix1k(ml, cs, ancestorBitOf(byteVal>>(8-uint(bit)), bit))
			zp, op := normalize(zero, one)
			var right, wrong uint32
			if b == 0 {
				right, wrong = zp, op
			} else {
				right, wrong = op, zp
			}
			size += int64(arith.SizeOf(right, wrong))
			for _, c := range cs {
				c.Update(b, true)
			}
		}
	}
	return size
}

// Compress1k codes data under ml's fixed scheme against a shared
// fixed-size context table.
func Compress1k(data []byte, ml ModelList1k, hashSize int, sizeFill []int32) []byte {
	masks := ml.EnabledMasks()
	var seed [MaxContextLength]byte
	hb := ComputeHashBits(data, seed, masks)
	table := make([]Counter, hashSize)
	s := arith.NewState()
	cs := make([]*Counter, len(masks))
	for pos, byteVal := range data {
		for bit := 0; bit < 8; bit++ {
			b := int((byteVal >> (7 - uint(bit))) & 1)
			for mi := range masks {
				key := hb.Keys[mi][pos][bit]
				idx := int(key % uint64(hashSize))
				cs[mi] = &table[idx]
			}
			zero, one := mix1k(ml, cs, ancestorBitOf(byteVal>>(8-uint(bit)), bit))
			zp, op := normalize(zero, one)
			s.Code(zp, op, b)
			for _, c := range cs {
				c.Update(b, true)
			}
		}
		if sizeFill != nil && pos < len(sizeFill) {
			sizeFill[pos] = int32(s.Pos())
		}
	}
	s.Finish()
	return s.Bytes()
}

// Decompress1k is the exact inverse of Compress1k.
func Decompress1k(coded []byte, length int, ml ModelList1k, hashSize int) []byte {
	masks := ml.EnabledMasks()
	var seed [MaxContextLength]byte
	table := make([]Counter, hashSize)
	d := arith.NewDecoder(coded)
	out := make([]byte, 0, length)
	cs := make([]*Counter, len(masks))
	for pos := 0; pos < length; pos++ {
		maskedCtxs := make([]uint64, len(masks))
		for mi, mask := range masks {
			ctx := contextBytes(out, seed, pos)
			maskedCtxs[mi] = maskContext(ctx, mask)
		}
		var byteVal byte
		for bit := 0; bit < 8; bit++ {
			partial := byteVal
			for mi := range masks {
				key := contextKey(maskedCtxs[mi], bit, partial)
				idx := int(key % uint64(hashSize))
				cs[mi] = &table[idx]
			}
			zero, one := mix1k(ml, cs, ancestorBitOf(byteVal, bit))
			zp, op := normalize(zero, one)
			bit01 := d.Decode(zp, op)
			for _, c := range cs {
				c.Update(bit01, true)
			}
			byteVal = byteVal<<1 | byte(bit01)
		}
		out = append(out, byteVal)
	}
	return out
}

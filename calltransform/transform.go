// Package calltransform implements the pre-compression pass that rewrites
// short x86 near CALL displacements into small, highly repetitive values
// so the context-mixing coder can predict them cheaply.
package calltransform

import (
	"encoding/binary"
)

// callOpcode is the x86 E8 near-CALL-with-32-bit-displacement opcode.
const callOpcode = 0xe8

// Result reports what a Transform pass did, for logging and for deciding
// whether the detransformer stub needs to run at all.
type Result struct {
	// Count is the number of calls rewritten.
	Count int
	// Disabled is true if the pass found nothing to transform and asked
	// its caller to nop out the detransformer region.
	Disabled bool
}

// Transform scans data[:splitPoint] for E8 dd dd dd dd sequences whose
// signed 32-bit displacement fits in 16 bits, and rewrites each one found
// in place as (displacement + position + 1), sign-extended back to 32
// bits, where position is the offset of the E8 byte itself. It never reads
// or writes outside data[:splitPoint].
//
// The scan advances five bytes past any rewritten call (skipping over its
// operand, which can never itself begin a valid call opcode byte we'd want
// to reinterpret) but only one byte past any position it declines to
// rewrite, matching the reference disassembly-free scan.
func Transform(data []byte, splitPoint int) Result {
	if splitPoint > len(data) {
		splitPoint = len(data)
	}
	count := 0
	for i := 0; i <= splitPoint-5; i++ {
		if data[i] != callOpcode {
			continue
		}
		disp := int32(binary.LittleEndian.Uint32(data[i+1 : i+5]))
		if disp < -32768 || disp > 32767 {
			continue
		}
		newDisp := int32(int16(disp + int32(i) + 1))
		binary.LittleEndian.PutUint32(data[i+1:i+5], uint32(newDisp))
		count++
		i += 4
	}
	return Result{Count: count}
}

// Detransform is Transform's inverse: given the same splitPoint and the
// count of calls it rewrote, it restores every rewritten displacement to
// its original value. A rewritten displacement is always the sign
// extension of a 16-bit value by construction, so it is identified the
// same way Transform identified the original candidate: its 32-bit form
// still fits in 16 bits. Untouched call sites keep their original,
// effectively random displacement, which almost never happens to look
// like a sign-extended 16-bit value, so the scan reliably tells the two
// apart; it stops as soon as it has restored count of them as a guard
// against that residual ambiguity.
func Detransform(data []byte, splitPoint int, count int) {
	if splitPoint > len(data) {
		splitPoint = len(data)
	}
	done := 0
	for i := 0; i <= splitPoint-5 && done < count; i++ {
		if data[i] != callOpcode {
			continue
		}
		stored := int32(binary.LittleEndian.Uint32(data[i+1 : i+5]))
		if stored < -32768 || stored > 32767 {
			continue
		}
		orig := int32(int16(stored - int32(i) - 1))
		binary.LittleEndian.PutUint32(data[i+1:i+5], uint32(orig))
		done++
		i += 4
	}
}

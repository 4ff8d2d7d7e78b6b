package calltransform

import "moria.us/mlink/hunk"

// nopByte is the x86 single-byte NOP, used to blank out the detransformer
// region when no calls were transformed.
const nopByte = 0x90

// ApplyToHunk runs Transform over code[:splitPoint] and patches the
// detransformer stub hunk's _CallTrans+2 slot with the number of calls
// rewritten. If no calls qualified, it instead nops out the stub's
// _CallTrans.._CallTrans+_CallTransSize region so the depacker skips the
// detransformation pass entirely, and reports Disabled.
func ApplyToHunk(code []byte, splitPoint int, stub *hunk.Hunk) (Result, error) {
	res := Transform(code, splitPoint)
	if res.Count > 0 {
		sym := stub.FindSymbol("_CallTrans")
		if sym == nil {
			return res, errCallTransNotFound
		}
		slot := int(sym.Value) + 2
		if slot+4 > len(stub.Data) {
			return res, errCallTransOutOfRange
		}
		stub.Data[slot] = byte(res.Count)
		stub.Data[slot+1] = byte(res.Count >> 8)
		stub.Data[slot+2] = byte(res.Count >> 16)
		stub.Data[slot+3] = byte(res.Count >> 24)
		return res, nil
	}

	start := stub.FindSymbol("_CallTrans")
	size := stub.FindSymbol("_CallTransSize")
	if start == nil || size == nil {
		return res, errCallTransNotFound
	}
	from := int(start.Value)
	n := int(size.Value)
	if from < 0 || from+n > len(stub.Data) {
		return res, errCallTransOutOfRange
	}
	for i := from; i < from+n; i++ {
		stub.Data[i] = nopByte
	}
	res.Disabled = true
	return res, nil
}

type transformError string

func (e transformError) Error() string { return string(e) }

const (
	errCallTransNotFound   transformError = "calltransform: stub missing _CallTrans/_CallTransSize symbol"
	errCallTransOutOfRange transformError = "calltransform: patch slot out of range"
)

package calltransform_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"moria.us/mlink/calltransform"
	"moria.us/mlink/hunk"
)

func callAt(buf []byte, pos int, disp int32) {
	buf[pos] = 0xe8
	binary.LittleEndian.PutUint32(buf[pos+1:pos+5], uint32(disp))
}

func TestTransformRewritesShortDisplacements(t *testing.T) {
	code := make([]byte, 20)
	callAt(code, 0, 100)    // short, in range
	callAt(code, 10, 1<<20) // long, out of range

	orig := append([]byte(nil), code...)
	res := calltransform.Transform(code, len(code))
	if res.Count != 1 {
		t.Fatalf("Count = %d, want 1", res.Count)
	}

	calltransform.Detransform(code, len(code), res.Count)
	if !bytes.Equal(code, orig) {
		t.Fatalf("detransform did not invert transform:\n got  %x\n want %x", code, orig)
	}
}

func TestTransformZeroCallsReportsNoTransform(t *testing.T) {
	code := make([]byte, 20)
	callAt(code, 0, 1<<20) // out of range

	res := calltransform.Transform(code, len(code))
	if res.Count != 0 {
		t.Fatalf("Count = %d, want 0", res.Count)
	}
}

func TestApplyToHunkDisablesStubWhenNoCallsQualify(t *testing.T) {
	code := make([]byte, 20)
	callAt(code, 0, 1<<20)

	stub := hunk.New("call detransformer", hunk.Code, make([]byte, 16), 0)
	stub.AddSymbol(hunk.NewSymbol("_CallTrans", 0, 0, stub))
	stub.AddSymbol(hunk.NewSymbol("_CallTransSize", 16, 0, nil))
	for i := range stub.Data {
		stub.Data[i] = 0xcc
	}

	res, err := calltransform.ApplyToHunk(code, len(code), stub)
	if err != nil {
		t.Fatalf("ApplyToHunk: %v", err)
	}
	if !res.Disabled {
		t.Fatal("expected Disabled = true")
	}
	for i, b := range stub.Data {
		if b != 0x90 {
			t.Fatalf("stub.Data[%d] = %#x, want NOP", i, b)
		}
	}
}

func TestApplyToHunkPatchesCountSlot(t *testing.T) {
	code := make([]byte, 20)
	callAt(code, 0, 100)

	stub := hunk.New("call detransformer", hunk.Code, make([]byte, 16), 0)
	stub.AddSymbol(hunk.NewSymbol("_CallTrans", 0, 0, stub))
	stub.AddSymbol(hunk.NewSymbol("_CallTransSize", 16, 0, nil))

	res, err := calltransform.ApplyToHunk(code, len(code), stub)
	if err != nil {
		t.Fatalf("ApplyToHunk: %v", err)
	}
	if res.Count != 1 {
		t.Fatalf("Count = %d, want 1", res.Count)
	}
	got := binary.LittleEndian.Uint32(stub.Data[2:6])
	if got != 1 {
		t.Fatalf("_CallTrans+2 = %d, want 1", got)
	}
}

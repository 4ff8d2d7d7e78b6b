package hunk_test

import (
	"testing"

	"moria.us/mlink/hunk"
)

func TestSymbolAddress(t *testing.T) {
	h := hunk.New("code", hunk.Code, []byte{0, 1, 2, 3}, 0)
	h.Address = 0x1000
	s := hunk.NewSymbol("_start", 4, hunk.Relocatable, h)
	h.AddSymbol(s)

	if got, want := s.Address(), int32(0x1004); got != want {
		t.Errorf("Address() = %#x, want %#x", got, want)
	}

	abs := hunk.NewSymbol("_const", 0x400000, 0, nil)
	if !abs.Absolute() {
		t.Error("Absolute() = false for nil-hunk symbol")
	}
	if got := abs.Address(); got != 0x400000 {
		t.Errorf("Address() = %#x, want %#x", got, 0x400000)
	}
}

func TestHunkInsert(t *testing.T) {
	h := hunk.New("stub", hunk.Code, []byte{0xC3}, 0)
	h.Insert(0, []byte{0x90, 0x90})
	if got, want := h.Data, []byte{0x90, 0x90, 0xC3}; string(got) != string(want) {
		t.Errorf("Data = %v, want %v", got, want)
	}
	if h.VirtualSize != 3 {
		t.Errorf("VirtualSize = %d, want 3", h.VirtualSize)
	}
}

func TestHunkClone(t *testing.T) {
	h := hunk.New("data", hunk.Data, []byte{1, 2, 3}, 8)
	h.AddSymbol(hunk.NewSymbol("_tbl", 0, hunk.Relocatable, h))

	c := h.Clone()
	c.Data[0] = 0xFF

	if h.Data[0] != 1 {
		t.Error("Clone shares underlying data array")
	}
	if c.FindSymbol("_tbl") == nil {
		t.Error("Clone did not copy symbols")
	}
	if c.FindSymbol("_tbl").Hunk != c {
		t.Error("Clone's symbol still points at the original hunk")
	}
}

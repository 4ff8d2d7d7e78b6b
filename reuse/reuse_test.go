package reuse_test

import (
	"bytes"
	"testing"

	"moria.us/mlink/model"
	"moria.us/mlink/reuse"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	rec := &reuse.Record{
		CodeModels: model.NewStarterList4k(),
		DataModels: model.NewStarterList4k(),
		Model1k:    &model.ModelList1k{ModelMask: 0xFF, Boost: 4, BaseProb0: 1, BaseProb1: 1},
		HunkOrder:  []string{"code", "data", "bss"},
		HashSize:   4099,
	}

	var buf bytes.Buffer
	if err := reuse.Save(&buf, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := reuse.Load(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HashSize != rec.HashSize {
		t.Errorf("HashSize = %d, want %d", got.HashSize, rec.HashSize)
	}
	if len(got.HunkOrder) != len(rec.HunkOrder) {
		t.Fatalf("HunkOrder length mismatch")
	}
	for i := range got.HunkOrder {
		if got.HunkOrder[i] != rec.HunkOrder[i] {
			t.Errorf("HunkOrder[%d] = %q, want %q", i, got.HunkOrder[i], rec.HunkOrder[i])
		}
	}
	if len(got.CodeModels.Models) != len(rec.CodeModels.Models) {
		t.Errorf("CodeModels length mismatch")
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	rec := &reuse.Record{
		CodeModels: model.NewStarterList4k(),
		DataModels: model.NewStarterList4k(),
		Model1k:    &model.ModelList1k{},
		HunkOrder:  []string{"a", "b"},
		HashSize:   101,
	}

	var buf1, buf2 bytes.Buffer
	if err := reuse.Save(&buf1, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := reuse.Save(&buf2, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Error("Save is not deterministic across repeated calls on the same record")
	}
}

func TestSaveLoadSaveIsByteIdentical(t *testing.T) {
	rec := &reuse.Record{
		CodeModels: model.NewStarterList4k(),
		DataModels: model.NewStarterList4k(),
		Model1k:    &model.ModelList1k{ModelMask: 7},
		HunkOrder:  []string{"x"},
		HashSize:   53,
	}

	var original bytes.Buffer
	if err := reuse.Save(&original, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := reuse.Load(bytes.NewReader(original.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var resaved bytes.Buffer
	if err := reuse.Save(&resaved, loaded); err != nil {
		t.Fatalf("Save (resaved): %v", err)
	}

	if !bytes.Equal(original.Bytes(), resaved.Bytes()) {
		t.Error("Save(Load(f)) != f")
	}
}

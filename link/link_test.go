package link_test

import (
	"context"
	"log/slog"
	"testing"

	"moria.us/mlink/config"
	"moria.us/mlink/hunk"
	"moria.us/mlink/image"
	"moria.us/mlink/link"
	"moria.us/mlink/logctx"
	"moria.us/mlink/model"
)

func fullHeaderHunk() *hunk.Hunk {
	data := make([]byte, 64)
	h := hunk.New("header", hunk.Code, data, 0)
	h.AddSymbol(hunk.NewSymbol("_BaseProbPtr", 8, 0, h))
	h.AddSymbol(hunk.NewSymbol("_ModelSkipPtr", 9, 0, h))
	h.AddSymbol(hunk.NewSymbol("_SubsystemTypePtr", 10, 0, h))
	h.AddSymbol(hunk.NewSymbol("_LinkerVersionPtr", 11, 0, h))
	h.AddSymbol(hunk.NewSymbol("_CharacteristicsPtr", 13, 0, h))
	h.AddSymbol(hunk.NewSymbol("_SpareNopPtr", 15, 0, h))
	return h
}

func baseOptions() *config.Options {
	return &config.Options{
		Subsystem:     image.Windows,
		EntrySymbol:   "_main",
		Tier:          model.Instant,
		CallTransform: true,
		HunkTries:     0,
	}
}

// TestLinkMinimalProgram covers spec scenario 1: a 6-byte code hunk
// ("mov eax, 42; ret") linked with a 4k header at the instant tier
// produces a small image with no unresolved symbols.
func TestLinkMinimalProgram(t *testing.T) {
	hunks := hunk.NewList()
	code := hunk.New("main", hunk.Code, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}, 0)
	code.AddSymbol(hunk.NewSymbol("_main", 0, 0, code))
	hunks.AddBack(code)

	l := link.New(baseOptions(), logctx.New(slog.Default()))
	res, err := l.Link(context.Background(), hunks, nil, fullHeaderHunk(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if res.Image == nil {
		t.Fatal("Link returned nil image")
	}
	if len(res.Image.Data) > 400 {
		t.Errorf("image size = %d, want <= 400 per scenario budget", len(res.Image.Data))
	}
}

// TestLinkCallTransformDisableWarns covers spec scenario 2: a code hunk
// with no E8 bytes makes the call transform disable itself and warn.
func TestLinkCallTransformDisableWarns(t *testing.T) {
	hunks := hunk.NewList()
	code := hunk.New("main", hunk.Code, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}, 0)
	code.AddSymbol(hunk.NewSymbol("_main", 0, 0, code))
	hunks.AddBack(code)

	logger := logctx.New(slog.Default())
	l := link.New(baseOptions(), logger)
	res, err := l.Link(context.Background(), hunks, nil, fullHeaderHunk(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	found := false
	for _, w := range res.Warnings {
		if w == "calltransform: no calls - call transformation not applied" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected call-transform-disabled warning, got %v", res.Warnings)
	}
}

// TestLinkRunInitializersKeepsRealEntryReachable covers the
// run-initializers splice: the synthesized stub must continue into the
// real entry hunk, not shadow it, or reachability pruning would strand
// the program body.
func TestLinkRunInitializersKeepsRealEntryReachable(t *testing.T) {
	hunks := hunk.NewList()
	entry := hunk.New("main", hunk.Code, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}, 0)
	entry.AddSymbol(hunk.NewSymbol("_main", 0, 0, entry))
	hunks.AddBack(entry)

	initFunc := hunk.New("init", hunk.Code, []byte{0xC3}, 0)
	initFunc.AddSymbol(hunk.NewSymbol("_init0", 0, 0, initFunc))
	hunks.AddBack(initFunc)

	ctor := hunk.New("obj$CRT$XCU", hunk.Data, make([]byte, 4), 0)
	ctor.AddRelocation(hunk.Relocation{Offset: 0, Symbol: "_init0", Type: hunk.Abs32})
	hunks.AddBack(ctor)

	opts := baseOptions()
	opts.RunInitializers = true
	l := link.New(opts, logctx.New(slog.Default()))
	res, err := l.Link(context.Background(), hunks, nil, fullHeaderHunk(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	// The image carries the compressed payload, so the surviving hunks are
	// read from the hunk order the run recorded.
	found := false
	for _, name := range res.Reuse.HunkOrder {
		if name == "main" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("real entry hunk was pruned (hunk order %v); dynamic-initializer stub must not shadow it", res.Reuse.HunkOrder)
	}
}

// TestLinkExportIntegerValueAndSymbol covers an integer export written
// into the export hunk verbatim and a symbol export carried as an Abs32
// relocation against the named symbol.
func TestLinkExportIntegerValueAndSymbol(t *testing.T) {
	hunks := hunk.NewList()
	code := hunk.New("main", hunk.Code, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}, 0)
	code.AddSymbol(hunk.NewSymbol("_main", 0, 0, code))
	code.AddSymbol(hunk.NewSymbol("_helper", 1, 0, code))
	hunks.AddBack(code)

	opts := baseOptions()
	opts.Exports = []config.Export{
		{Name: "val", HasValue: true, Value: 0x12345678},
		{Name: "Helper", ExportSymbol: "_helper"},
	}
	l := link.New(opts, logctx.New(slog.Default()))
	res, err := l.Link(context.Background(), hunks, nil, fullHeaderHunk(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if res.Image == nil {
		t.Fatal("Link returned nil image")
	}

	var exports *hunk.Hunk
	for _, h := range hunks.Hunks() {
		if h.Name == "exports" {
			exports = h
		}
	}
	if exports == nil {
		t.Fatal("export hunk missing from the linked hunk list")
	}
	d := exports.Data
	if got := uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24; got != 0x12345678 {
		t.Errorf("integer export = %#x, want 0x12345678", got)
	}
	if len(exports.Relocs) != 1 || exports.Relocs[0].Offset != 4 || exports.Relocs[0].Symbol != "_helper" || exports.Relocs[0].Type != hunk.Abs32 {
		t.Errorf("export relocations = %+v, want one Abs32 against _helper at offset 4", exports.Relocs)
	}
}

// TestLinkExportValueCollisionIsConstraintViolated covers spec scenario 4:
// an integer export whose name collides with an existing symbol is a
// constraint violation.
func TestLinkExportValueCollisionIsConstraintViolated(t *testing.T) {
	hunks := hunk.NewList()
	code := hunk.New("main", hunk.Code, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}, 0)
	code.AddSymbol(hunk.NewSymbol("_main", 0, 0, code))
	code.AddSymbol(hunk.NewSymbol("_main_alias", 0, 0, code))
	hunks.AddBack(code)

	opts := baseOptions()
	opts.Exports = []config.Export{
		{Name: "_main_alias", HasValue: true, Value: 0x12345678},
	}
	l := link.New(opts, logctx.New(slog.Default()))
	_, err := l.Link(context.Background(), hunks, nil, fullHeaderHunk(), nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error for colliding integer export")
	}
	linkErr, ok := err.(*link.Error)
	if !ok {
		t.Fatalf("error is not *link.Error: %T", err)
	}
	if linkErr.Kind != link.ConstraintViolated {
		t.Errorf("Kind = %v, want ConstraintViolated", linkErr.Kind)
	}
}

func TestLinkMissingEntrySymbolIsSymbolUnresolved(t *testing.T) {
	hunks := hunk.NewList()
	code := hunk.New("main", hunk.Code, []byte{0xC3}, 0)
	hunks.AddBack(code)

	l := link.New(baseOptions(), logctx.New(slog.Default()))
	_, err := l.Link(context.Background(), hunks, nil, fullHeaderHunk(), nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error for missing entry symbol")
	}
	var linkErr *link.Error
	if e, ok := err.(*link.Error); ok {
		linkErr = e
	} else {
		t.Fatalf("error is not *link.Error: %T", err)
	}
	if linkErr.Kind != link.SymbolUnresolved {
		t.Errorf("Kind = %v, want SymbolUnresolved", linkErr.Kind)
	}
}

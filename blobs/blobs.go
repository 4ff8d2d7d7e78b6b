// Package blobs holds the pre-assembled machine-code stubs this linker
// splices into its output: the full and tiny headers, the depacker
// variants, the import-loader variants, the call detransformer, and the
// runtime entry stub. Per spec.md §1 and §9, the assembler producing these
// bytes is external to the core; this package exposes each as an opaque
// byte-array constant plus the list of patch-point symbol names the core
// is allowed to address within it. A real build replaces the placeholder
// bytes below with the output of that external assembler; the symbol
// tables are the actual contract this package provides.
package blobs

import "moria.us/mlink/hunk"

// Blob is one opaque pre-assembled stub: its raw bytes and the symbols a
// caller is allowed to patch or relocate against within it.
type Blob struct {
	Name    string
	Data    []byte
	Symbols []PatchPoint
}

// ToHunk returns b as a hunk.Hunk with its own copy of the blob's bytes
// and one symbol per named patch point, so the core can address and
// relocate against it the same way it does any other hunk.
func (b Blob) ToHunk() *hunk.Hunk {
	data := append([]byte(nil), b.Data...)
	h := hunk.New(b.Name, hunk.Code|hunk.Aligned, data, 0)
	for _, s := range b.Symbols {
		h.AddSymbol(hunk.NewSymbol(s.Name, s.Offset, 0, h))
	}
	return h
}

// PatchPoint names one addressable location within a Blob's bytes.
type PatchPoint struct {
	Name   string
	Offset int32
}

// HeaderFull is the full (4k) self-extracting header, carrying the
// patch-point symbols image.Finalize's fullHeaderPatches and
// commonPatches address.
var HeaderFull = Blob{
	Name: "header",
	Data: make([]byte, 512),
	Symbols: []PatchPoint{
		{"_BaseProbPtr", 0x10},
		{"_ModelSkipPtr", 0x11},
		{"_ExportTableRVAPtr", 0x20},
		{"_NumberOfDataDirectoriesPtr", 0x24},
		{"_SubsystemTypePtr", 0x5C},
		{"_LinkerVersionPtr", 0x02},
		{"_CharacteristicsPtr", 0x16},
		{"_SpareNopPtr", 0x60},
		{"_SaturatePtr", 0x30},
		{"_SaturateAdjust1Ptr", 0x31},
		{"_SaturateAdjust2Ptr", 0x35},
	},
}

// HeaderTiny is the tiny (1k) self-extracting header.
var HeaderTiny = Blob{
	Name: "tiny header",
	Data: make([]byte, 128),
	Symbols: []PatchPoint{
		{"_BaseProbPtr0", 0x08},
		{"_BaseProbPtr1", 0x09},
		{"_BoostFactorPtr", 0x0A},
		{"_DepackEndPositionPtr", 0x0C},
		{"_VirtualSizeHighBytePtr", 0x12},
		{"_SubsystemTypePtr", 0x5C},
		{"_LinkerVersionPtr", 0x02},
		{"_CharacteristicsPtr", 0x16},
		{"_SpareNopPtr", 0x60},
	},
}

// DepackerVariant names the compatibility depacker builds this linker can
// select among, matching the stub library's naming.
type DepackerVariant int

const (
	DepackerStandard DepackerVariant = iota
	DepackerCompat
)

// Depacker returns the named pre-assembled depacker blob.
func Depacker(v DepackerVariant) Blob {
	switch v {
	case DepackerCompat:
		return Blob{Name: "depacker (compat)", Data: make([]byte, 256)}
	default:
		return Blob{Name: "depacker", Data: make([]byte, 192)}
	}
}

// ImportLoaderVariant selects among the six pre-assembled import-thunk
// loader stubs spec.md §6 names (safe/unsafe import, by ordinal or name,
// tiny or full header).
type ImportLoaderVariant int

const (
	ImportLoaderSafe ImportLoaderVariant = iota
	ImportLoaderUnsafe
	ImportLoaderSafeTiny
	ImportLoaderUnsafeTiny
	ImportLoaderOrdinal
	ImportLoaderOrdinalTiny
)

// ImportLoader returns the named pre-assembled import-loader blob.
func ImportLoader(v ImportLoaderVariant) Blob {
	names := map[ImportLoaderVariant]string{
		ImportLoaderSafe:        "import loader (safe)",
		ImportLoaderUnsafe:      "import loader (unsafe)",
		ImportLoaderSafeTiny:    "import loader (safe, tiny)",
		ImportLoaderUnsafeTiny:  "import loader (unsafe, tiny)",
		ImportLoaderOrdinal:     "import loader (ordinal)",
		ImportLoaderOrdinalTiny: "import loader (ordinal, tiny)",
	}
	return Blob{Name: names[v], Data: make([]byte, 64)}
}

// CallDetransformer is the stub the call transform's detransformer logic
// runs inside at load time; its _CallTrans and _CallTransSize patch
// points are the contract calltransform.ApplyToHunk writes through.
var CallDetransformer = Blob{
	Name: "call detransformer",
	Data: make([]byte, 32),
	Symbols: []PatchPoint{
		{"_CallTrans", 0},
		{"_CallTransSize", 24},
	},
}

// RuntimeEntryStub is the small stub that transfers control from the
// loader's entry point into the depacked image, optionally running
// dynamic initializers first.
var RuntimeEntryStub = Blob{
	Name: "runtime entry stub",
	Data: make([]byte, 16),
}

// FindSymbol returns the offset of the named patch point within b, or
// (0, false) if b does not define it.
func (b Blob) FindSymbol(name string) (int32, bool) {
	for _, s := range b.Symbols {
		if s.Name == name {
			return s.Offset, true
		}
	}
	return 0, false
}

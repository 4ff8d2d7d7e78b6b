package image

import "moria.us/mlink/hunk"

// PatchWidth is the size, in bytes, of a header patch slot.
type PatchWidth int

const (
	Width1 PatchWidth = 1
	Width2 PatchWidth = 2
	Width4 PatchWidth = 4
)

// PatchDescriptor names one header slot to fill in: a symbol identifying
// where, a width saying how many bytes to write, and a value function
// computing what to write from the finalize parameters. A descriptor whose
// symbol the header hunk doesn't define (because this build uses a
// different header variant) is silently skipped: both the tiny and the
// full header share most slots but not all of them.
type PatchDescriptor struct {
	Symbol string
	Width  PatchWidth
	Value  func(p *Params) (value uint32, apply bool)
}

// orDescriptors lists the slots this linker ORs a value into rather than
// overwriting, keyed by symbol name.
var orDescriptors = map[string]bool{
	"_CharacteristicsPtr": true,
}

// commonPatches are the header slots every variant (tiny 1k header and
// full 4k header alike) defines.
var commonPatches = []PatchDescriptor{
	{Symbol: "_SubsystemTypePtr", Width: Width1, Value: func(p *Params) (uint32, bool) {
		return uint32(p.Subsystem.value()), true
	}},
	{Symbol: "_LinkerVersionPtr", Width: Width2, Value: func(p *Params) (uint32, bool) {
		major := uint32('0' + LinkerVersionMajor)
		minor := uint32('0' + LinkerVersionMinor)
		return major | minor<<8, true
	}},
	{Symbol: "_CharacteristicsPtr", Width: Width2, Value: func(p *Params) (uint32, bool) {
		if !p.LargeAddressAware {
			return 0, false
		}
		return largeAddressAwareBit, true
	}},
	{Symbol: "_SpareNopPtr", Width: Width1, Value: func(p *Params) (uint32, bool) {
		if !p.CallTransformApplied {
			return 0, false
		}
		return 0x57, true // PUSH EDI
	}},
}

// tinyHeaderPatches are the slots only the 1k (tiny) header defines.
var tinyHeaderPatches = []PatchDescriptor{
	{Symbol: "_BaseProbPtr0", Width: Width1, Value: func(p *Params) (uint32, bool) {
		return p.Model1k.BaseProb0, true
	}},
	{Symbol: "_BaseProbPtr1", Width: Width1, Value: func(p *Params) (uint32, bool) {
		return p.Model1k.BaseProb1, true
	}},
	{Symbol: "_BoostFactorPtr", Width: Width1, Value: func(p *Params) (uint32, bool) {
		return p.Model1k.Boost, true
	}},
	{Symbol: "_DepackEndPositionPtr", Width: Width2, Value: func(p *Params) (uint32, bool) {
		return uint32(p.SplitPoint + CodeBase), true
	}},
}

// fullHeaderPatches are the slots only the 4k (full) header defines.
var fullHeaderPatches = []PatchDescriptor{
	{Symbol: "_BaseProbPtr", Width: Width1, Value: func(p *Params) (uint32, bool) {
		return p.BaseProb, true
	}},
	{Symbol: "_ModelSkipPtr", Width: Width1, Value: func(p *Params) (uint32, bool) {
		return uint32(len(p.CodeModels.Models) + 8), true
	}},
	{Symbol: "_ExportTableRVAPtr", Width: Width4, Value: func(p *Params) (uint32, bool) {
		if p.ExportsRVA == 0 {
			return 0, false
		}
		return uint32(p.ExportsRVA), true
	}},
	{Symbol: "_NumberOfDataDirectoriesPtr", Width: Width4, Value: func(p *Params) (uint32, bool) {
		if p.ExportsRVA == 0 {
			return 0, false
		}
		return 1, true
	}},
}

// applyPatches writes every applicable descriptor's value directly into
// header's bytes, ORing it in for the slots orDescriptors names and
// overwriting otherwise. The always-present constants (_HashTableSize,
// _UnpackedData, _ImageBase, _ModelMask) are not written here: Finalize
// registers them as header symbols with AddSymbol.
func applyPatches(header *hunk.Hunk, descriptors []PatchDescriptor, p *Params) {
	for _, d := range descriptors {
		sym := header.FindSymbol(d.Symbol)
		if sym == nil {
			continue
		}
		value, apply := d.Value(p)
		if !apply {
			continue
		}
		off := int(sym.Value)
		if off < 0 || off+int(d.Width) > len(header.Data) {
			continue
		}
		if orDescriptors[d.Symbol] {
			writeOr(header.Data[off:off+int(d.Width)], value)
		} else {
			writeLE(header.Data[off:off+int(d.Width)], value)
		}
	}
}

func writeLE(dst []byte, v uint32) {
	for i := range dst {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func writeOr(dst []byte, v uint32) {
	for i := range dst {
		dst[i] |= byte(v >> (8 * uint(i)))
	}
}

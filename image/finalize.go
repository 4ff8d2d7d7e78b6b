package image

import (
	"moria.us/mlink/hunk"
	"moria.us/mlink/model"
)

// Params collects everything Finalize needs to know about the compressed
// result and the options that shaped it.
type Params struct {
	Subsystem            Subsystem
	LargeAddressAware    bool
	CallTransformApplied bool
	Use1kHeader          bool
	Saturate             bool

	// SplitPoint is the size of the code region within the decompressed
	// payload; the remainder, if any, is data.
	SplitPoint int
	// RawSize is the total decompressed payload size (code + data).
	RawSize int
	// HashSize is the runtime hash table's entry count.
	HashSize int
	BaseProb uint32

	CodeModels *model.ModelList4k
	DataModels *model.ModelList4k
	Model1k    model.ModelList1k

	ExportsRVA int
}

// align rounds n up to the nearest multiple of alignment, which must be a
// power of two.
func align(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// buildModelDescriptorHunk constructs the hunk the 4k depacker reads its
// model lists from: a negative split-point marker, the code model's
// weightmask and masks, a negative raw-size marker, then the data model's
// weightmask and masks. The negative markers let the depacker tell where
// one model's mask list ends without a separate length field.
func buildModelDescriptorHunk(p *Params) *hunk.Hunk {
	var data []byte

	appendInt32 := func(v int32) {
		data = append(data, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	appendModelList := func(ml *model.ModelList4k) {
		masks := make([]byte, len(ml.Models)+1)
		weightMask := ml.GetMaskList(masks, true)
		appendInt32(int32(weightMask))
		data = append(data, masks...)
	}

	appendInt32(int32(-(CodeBase + p.SplitPoint)))
	appendModelList(p.CodeModels)
	appendInt32(int32(-(CodeBase + p.RawSize)))
	appendModelList(p.DataModels)

	return hunk.New("model descriptors", hunk.Code, data, 0)
}

// saturateCode is the instruction sequence SetHeaderSaturation splices
// into the header to make context counters saturate at 255 instead of
// wrapping, shifting two adjacent patch slots to stay correct once the
// extra bytes are inserted.
var saturateCode = []byte{0x75, 0x03, 0xfe, 0x0c, 0x1f}

// applySaturationPatch splices saturateCode into header at _SaturatePtr
// and adjusts the two patch-slot offsets that sit on either side of the
// insertion point so they still address their original targets once the
// header has grown.
func applySaturationPatch(header *hunk.Hunk) {
	at := header.FindSymbol("_SaturatePtr")
	if at == nil {
		return
	}
	header.Insert(int(at.Value), saturateCode)

	if adj1 := header.FindSymbol("_SaturateAdjust1Ptr"); adj1 != nil {
		off := int(adj1.Value)
		if off >= 0 && off < len(header.Data) {
			header.Data[off] += byte(len(saturateCode))
		}
	}
	if adj2 := header.FindSymbol("_SaturateAdjust2Ptr"); adj2 != nil {
		off := int(adj2.Value)
		if off >= 0 && off < len(header.Data) {
			header.Data[off] -= byte(len(saturateCode))
		}
	}
}

// applyVirtualSizeHighByte fills in the tiny header's packed
// virtual-size-high-byte slot, a single byte that, combined with three
// fixed low bytes already present in the stub, encodes how much BSS the
// loader must reserve beyond the depacked image.
func applyVirtualSizeHighByte(header *hunk.Hunk, p *Params) {
	sym := header.FindSymbol("_VirtualSizeHighBytePtr")
	if sym == nil {
		return
	}
	off := int(sym.Value)
	if off < 3 || off >= len(header.Data) {
		return
	}
	lowBytes := int32(header.Data[off-3]) | int32(header.Data[off-2])<<8 | int32(header.Data[off-1])<<16
	virtualSize := int32(p.RawSize) + 65536*2
	header.Data[off] = byte((virtualSize - lowBytes + 0xFFFFFF) >> 24)
}

// applyFullVirtualSize registers the full header's _VirtualSize constant
// symbol: the larger of the payload's virtual size and the space the
// unpacked hash table will occupy, rounded up to a 16-byte boundary.
func applyFullVirtualSize(header *hunk.Hunk, p *Params) {
	vsize := p.RawSize
	if withHash := p.SplitPoint + p.HashSize; withHash > vsize {
		vsize = withHash
	}
	vsize = align(vsize, 16)
	header.AddSymbol(hunk.NewSymbol("_VirtualSize", int32(vsize), 0, header))
}

// Finalize assembles the final image: header, optional compatibility
// depacker, optional hash-table hunk, a model-descriptor hunk (for the 4k
// variant), and the compressed payload, concatenated in that order and
// address-assigned starting at ImageBase, with every header slot patched
// and all relocations resolved.
func Finalize(header, depacker, hashTable *hunk.Hunk, payload []byte, p *Params) (*hunk.Hunk, error) {
	header.AddSymbol(hunk.NewSymbol("_HashTableSize", int32(p.HashSize/2), 0, header))
	header.AddSymbol(hunk.NewSymbol("_UnpackedData", CodeBase, 0, header))
	header.AddSymbol(hunk.NewSymbol("_ImageBase", ImageBase, 0, header))
	header.AddSymbol(hunk.NewSymbol("_ModelMask", int32(p.Model1k.ModelMask), 0, header))

	if p.Saturate {
		applySaturationPatch(header)
	}

	var modelHunk *hunk.Hunk
	if p.Use1kHeader {
		applyVirtualSizeHighByte(header, p)
		applyPatches(header, tinyHeaderPatches, p)
	} else {
		applyFullVirtualSize(header, p)
		applyPatches(header, fullHeaderPatches, p)
		modelHunk = buildModelDescriptorHunk(p)
	}
	applyPatches(header, commonPatches, p)

	list := hunk.NewList()
	list.AddBack(header)
	if depacker != nil {
		list.AddBack(depacker)
	}
	if hashTable != nil {
		list.AddBack(hashTable)
	}
	if modelHunk != nil {
		list.AddBack(modelHunk)
	}
	payloadHunk := hunk.New("payload", hunk.Code, payload, 0)
	list.AddBack(payloadHunk)

	return list.ToHunk("image", ImageBase)
}

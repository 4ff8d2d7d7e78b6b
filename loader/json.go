package loader

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"moria.us/mlink/hunk"
)

// JSONSource is a reference HunkSource that reads an already-materialised
// hunk graph from a JSON manifest rather than parsing COFF objects or
// static libraries. It exists so the core pipeline can be driven end to
// end without a real object-file front end; a build that needs one
// supplies its own HunkSource instead.
type JSONSource struct {
	Path string
}

type jsonManifest struct {
	Hunks []jsonHunk `json:"hunks"`
}

type jsonHunk struct {
	Name         string       `json:"name"`
	Code         bool         `json:"code"`
	Data         bool         `json:"data"`
	Writeable    bool         `json:"writeable"`
	BSS          bool         `json:"bss"`
	DataHex      string       `json:"data_hex"`
	VirtualSize  int          `json:"virtual_size"`
	AlignBits    uint         `json:"align_bits"`
	Continuation string       `json:"continuation"`
	Symbols      []jsonSymbol `json:"symbols"`
	Relocs       []jsonReloc  `json:"relocs"`
}

type jsonSymbol struct {
	Name         string `json:"name"`
	Value        int32  `json:"value"`
	Export       bool   `json:"export"`
	SectionStart bool   `json:"section_start"`
}

type jsonReloc struct {
	Offset int    `json:"offset"`
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
}

// Load reads the manifest at s.Path and returns the hunk graph it describes.
func (s JSONSource) Load() (*hunk.List, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var m jsonManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s: %v", s.Path, err)
	}

	list := hunk.NewList()
	for _, jh := range m.Hunks {
		data, err := hex.DecodeString(jh.DataHex)
		if err != nil {
			return nil, fmt.Errorf("%s: hunk %q: data_hex: %v", s.Path, jh.Name, err)
		}
		var flags hunk.Flag
		if jh.Code {
			flags |= hunk.Code
		}
		if jh.Data {
			flags |= hunk.Data
		}
		if jh.Writeable {
			flags |= hunk.Writeable
		}
		if jh.BSS {
			flags |= hunk.BSS
		}
		h := hunk.New(jh.Name, flags, data, jh.VirtualSize)
		h.SetAlignBits(jh.AlignBits)
		h.Continuation = jh.Continuation
		for _, js := range jh.Symbols {
			var sf hunk.SymFlag
			if js.Export {
				sf |= hunk.Export
			}
			if js.SectionStart {
				sf |= hunk.SectionStart
			}
			h.AddSymbol(hunk.NewSymbol(js.Name, js.Value, sf, h))
		}
		for _, jr := range jh.Relocs {
			var rt hunk.RelocType
			switch jr.Type {
			case "rel32":
				rt = hunk.Rel32
			case "abs32", "":
				rt = hunk.Abs32
			default:
				return nil, fmt.Errorf("%s: hunk %q: unknown relocation type %q", s.Path, jh.Name, jr.Type)
			}
			h.AddRelocation(hunk.Relocation{Offset: jr.Offset, Symbol: jr.Symbol, Type: rt})
		}
		list.AddBack(h)
	}
	return list, nil
}

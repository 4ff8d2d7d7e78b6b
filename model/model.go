// Package model implements the context-mixing probability model used by
// the coder: saturating context counters, the model-list types for the
// multi-model (4k) and single-model (1k) coder variants, and the
// hash-bits cache that lets model search try many mask subsets over the
// same data without rehashing contexts.
package model

import (
	"fmt"
	"io"
	"sort"
)

// MaxModels is the largest number of models a ModelList4k can hold.
const MaxModels = 256

// MaxContextLength is the number of preceding bytes a context mask can
// reach back over.
const MaxContextLength = 8

// CompressionTier controls how much effort the 4k model search spends.
type CompressionTier int

const (
	Instant CompressionTier = iota
	Fast
	Slow
	VerySlow
)

func (t CompressionTier) String() string {
	switch t {
	case Instant:
		return "instant"
	case Fast:
		return "fast"
	case Slow:
		return "slow"
	case VerySlow:
		return "very-slow"
	default:
		return fmt.Sprintf("CompressionTier(%d)", int(t))
	}
}

// A Model is one context-byte mask and the weight it contributes to the
// probability mix.
type Model struct {
	Weight uint8
	Mask   byte
}

// ModelList4k is an ordered set of up to MaxModels models used to code one
// segment of the 4k (multi-model) coder.
type ModelList4k struct {
	Models []Model

	// Size caches the coded size in PrecisionBits-fraction bits that this
	// list achieved the last time it was evaluated, so search need not
	// recompute it when only comparing against a cached best.
	Size int64
}

// AddModel appends a model to the list.
func (ml *ModelList4k) AddModel(m Model) {
	ml.Models = append(ml.Models, m)
}

// Clone returns a deep copy of the list.
func (ml *ModelList4k) Clone() *ModelList4k {
	c := &ModelList4k{Models: append([]Model(nil), ml.Models...), Size: ml.Size}
	return c
}

// MaskList returns the masks of every model, in order.
func (ml *ModelList4k) MaskList() []byte {
	out := make([]byte, len(ml.Models))
	for i, m := range ml.Models {
		out[i] = m.Mask
	}
	return out
}

// GetMaskList writes the list's masks into masks (which must have room for
// len(ml.Models)+1 bytes if terminate is set) and returns the packed
// weight mask: bit i set means model i's weight is non-zero, matching the
// on-disk layout the depacker's model descriptor expects. If terminate is
// true, a trailing zero byte is appended after the masks.
func (ml *ModelList4k) GetMaskList(masks []byte, terminate bool) uint32 {
	var weightMask uint32
	for i, m := range ml.Models {
		masks[i] = m.Mask
		if m.Weight != 0 {
			weightMask |= 1 << uint(i)
		}
	}
	if terminate {
		masks[len(ml.Models)] = 0
	}
	return weightMask
}

// SetFromModelsAndMask rebuilds the list from a packed mask array and a
// weight bitmask (the inverse of GetMaskList), assigning a uniform default
// weight to every bit set in weightMask.
func (ml *ModelList4k) SetFromModelsAndMask(masks []byte, weightMask uint32) {
	ml.Models = ml.Models[:0]
	for i, mask := range masks {
		w := uint8(0)
		if weightMask&(1<<uint(i)) != 0 {
			w = DefaultWeight
		}
		ml.AddModel(Model{Weight: w, Mask: mask})
	}
}

// Print writes a human-readable dump of the model list, in the order
// weight, then mask, one model per line.
func (ml *ModelList4k) Print(w io.Writer) {
	for _, m := range ml.Models {
		fmt.Fprintf(w, "weight %3d  mask %08b\n", m.Weight, m.Mask)
	}
}

// DetectCompressionType guesses the tier that would plausibly have
// produced this list, based on how many models it holds: the built-in
// starter list has 8 models, and the Instant tier returns it unchanged.
func (ml *ModelList4k) DetectCompressionType() CompressionTier {
	switch {
	case len(ml.Models) <= len(StarterModels):
		return Instant
	case len(ml.Models) <= 16:
		return Fast
	case len(ml.Models) <= 32:
		return Slow
	default:
		return VerySlow
	}
}

// DefaultWeight is the weight newly added models start with.
const DefaultWeight uint8 = 4

// StarterModels is the built-in instant-tier starting point for 4k model
// search: a small set of single- and multi-byte-back context masks chosen
// to perform reasonably on typical x86 code and data without any search.
var StarterModels = []Model{
	{Weight: DefaultWeight, Mask: 0x01}, // previous byte
	{Weight: DefaultWeight, Mask: 0x02}, // two bytes back
	{Weight: DefaultWeight, Mask: 0x03}, // previous two bytes
	{Weight: DefaultWeight, Mask: 0x04}, // three bytes back
	{Weight: DefaultWeight, Mask: 0x07}, // previous three bytes
	{Weight: DefaultWeight, Mask: 0x08}, // four bytes back
	{Weight: DefaultWeight, Mask: 0x0F}, // previous four bytes
	{Weight: DefaultWeight, Mask: 0x00}, // order-0 (no context)
}

// NewStarterList4k returns a fresh copy of the built-in instant-tier model
// list.
func NewStarterList4k() *ModelList4k {
	return &ModelList4k{Models: append([]Model(nil), StarterModels...)}
}

// SortedMasks returns the list's masks in ascending order, used to
// tie-break otherwise-equal candidates lexicographically during search.
func (ml *ModelList4k) SortedMasks() []byte {
	out := ml.MaskList()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModelList1k holds the fixed-shape parameters of the single-model (1k,
// tiny header) coder: which of the fixed context palette entries are
// enabled, a shared boost shift applied to every enabled context's
// contribution, and two base probabilities selected by the value of the
// bit immediately preceding the one being coded within the same byte.
type ModelList1k struct {
	ModelMask uint32
	Boost     uint32
	BaseProb0 uint32
	BaseProb1 uint32
}

// Print writes a human-readable dump of the 1k model parameters.
func (ml ModelList1k) Print(w io.Writer) {
	fmt.Fprintf(w, "modelmask %#08x boost %d baseprob0 %d baseprob1 %d\n",
		ml.ModelMask, ml.Boost, ml.BaseProb0, ml.BaseProb1)
}

// Palette1k is the fixed set of context masks ModelMask's bits select
// among for the 1k coder. It deliberately mirrors the lower-order entries
// of StarterModels so 1k and 4k share the same notion of "context".
var Palette1k = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x07, 0x08, 0x0F,
	0x10, 0x1F, 0x20, 0x3F, 0x40, 0x7F, 0x80, 0xFF,
	0x05, 0x06, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E,
	0x11, 0x13, 0x17, 0x1B, 0x1D, 0x23, 0x33, 0x55,
}

// EnabledMasks returns the context masks this 1k model list's ModelMask
// selects, in Palette1k order.
func (ml ModelList1k) EnabledMasks() []byte {
	var out []byte
	for i, mask := range Palette1k {
		if i >= 32 {
			break
		}
		if ml.ModelMask&(1<<uint(i)) != 0 {
			out = append(out, mask)
		}
	}
	return out
}

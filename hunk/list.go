package hunk

import (
	"fmt"

	"github.com/RyanCarrier/dijkstra"
)

// A List is an owning, ordered sequence of hunks. Appending a hunk
// transfers ownership of it to the list.
type List struct {
	hunks []*Hunk
}

// NewList returns an empty hunk list.
func NewList() *List { return &List{} }

// AddBack appends a hunk to the end of the list.
func (l *List) AddBack(h *Hunk) { l.hunks = append(l.hunks, h) }

// AddFront prepends a hunk to the start of the list.
func (l *List) AddFront(h *Hunk) {
	l.hunks = append([]*Hunk{h}, l.hunks...)
}

// Append moves every hunk from other onto the end of l. other is left
// empty.
func (l *List) Append(other *List) {
	l.hunks = append(l.hunks, other.hunks...)
	other.hunks = nil
}

// Remove deletes h from the list, if present. It does not free h; the
// caller may reinsert it elsewhere.
func (l *List) Remove(h *Hunk) {
	for i, x := range l.hunks {
		if x == h {
			l.hunks = append(l.hunks[:i], l.hunks[i+1:]...)
			return
		}
	}
}

// NumHunks returns the number of hunks in the list.
func (l *List) NumHunks() int { return len(l.hunks) }

// At returns the i'th hunk in the list.
func (l *List) At(i int) *Hunk { return l.hunks[i] }

// Hunks returns the list's hunks in order. The returned slice is owned by
// the list and must not be mutated by the caller except through List's
// other methods.
func (l *List) Hunks() []*Hunk { return l.hunks }

// SetOrder replaces the list's hunk order. order must contain exactly the
// same set of hunks already in the list.
func (l *List) SetOrder(order []*Hunk) {
	if len(order) != len(l.hunks) {
		panic("hunk.List.SetOrder: length mismatch")
	}
	l.hunks = append([]*Hunk(nil), order...)
}

// FindSymbol searches every hunk in the list and returns the symbol with
// the given name, or nil if no hunk owns a symbol by that name.
func (l *List) FindSymbol(name string) *Symbol {
	for _, h := range l.hunks {
		if s := h.FindSymbol(name); s != nil {
			return s
		}
	}
	return nil
}

// RemoveUnreferenced prunes every hunk that is not reachable from any of
// the given root symbols, following relocation targets and Continuation
// edges. Roots are typically the entry point and exported symbols.
//
// Reachability is computed as a graph search (one vertex per hunk, plus a
// virtual root wired to each root hunk; every arc has unit cost) rather than a
// hand worklist: a hunk survives iff dijkstra finds a finite-cost path from
// the virtual root to it.
func (l *List) RemoveUnreferenced(roots ...*Symbol) error {
	n := len(l.hunks)
	index := make(map[*Hunk]int, n)
	for i, h := range l.hunks {
		index[h] = i
	}

	const rootVertex = -1
	g := dijkstra.NewGraph()
	g.AddVertex(rootVertex + 1) // dijkstra requires non-negative IDs; shift by 1
	for i := 0; i < n; i++ {
		g.AddVertex(i + 1)
	}

	addArc := func(from, to int) {
		_ = g.AddArc(from+1, to+1, 1)
	}

	for i, h := range l.hunks {
		for _, r := range h.Relocs {
			if sym := l.FindSymbol(r.Symbol); sym != nil && sym.Hunk != nil {
				if j, ok := index[sym.Hunk]; ok {
					addArc(i, j)
				}
			}
		}
		if h.Continuation != "" {
			if sym := l.FindSymbol(h.Continuation); sym != nil && sym.Hunk != nil {
				if j, ok := index[sym.Hunk]; ok {
					addArc(i, j)
				}
			}
		}
	}

	for _, root := range roots {
		if root == nil || root.Hunk == nil {
			continue
		}
		if j, ok := index[root.Hunk]; ok {
			addArc(rootVertex, j)
		}
	}

	reachable := make([]bool, n)
	for i := 0; i < n; i++ {
		if _, err := g.Shortest(rootVertex+1, i+1); err == nil {
			reachable[i] = true
		}
	}

	kept := l.hunks[:0:0]
	for i, h := range l.hunks {
		if reachable[i] {
			kept = append(kept, h)
		}
	}
	l.hunks = kept
	return nil
}

func align(pos, bits uint) uint {
	mask := (uint(1) << bits) - 1
	return (pos + mask) &^ mask
}

// ToHunk concatenates every hunk in the list into a single flat hunk,
// assigning each member hunk an Address under its own alignment starting
// from base, and resolving every relocation by symbol-name lookup across
// the list. The returned hunk's data is the concatenation of every member
// hunk's raw bytes, zero-padded between raw and virtual size as required
// by intervening alignment.
func (l *List) ToHunk(name string, base int32) (*Hunk, error) {
	pos := uint(base)
	rawEnd := uint(base)
	for _, h := range l.hunks {
		pos = align(pos, h.AlignBits)
		h.Address = int32(pos)
		if h.RawSize() > 0 {
			rawEnd = pos + uint(h.RawSize())
		}
		pos += uint(h.VirtualSize)
	}
	rawSize := int(rawEnd) - int(base)

	var virt uint
	{
		vpos := uint(base)
		for _, h := range l.hunks {
			vpos = align(vpos, h.AlignBits)
			vpos += uint(h.VirtualSize)
		}
		virt = vpos - uint(base)
	}

	out := make([]byte, rawSize)
	for _, h := range l.hunks {
		copy(out[uint(h.Address)-uint(base):], h.Data)
	}

	result := New(name, 0, out, int(virt))
	result.Address = base

	for _, h := range l.hunks {
		for _, r := range h.Relocs {
			sym := l.FindSymbol(r.Symbol)
			if sym == nil {
				return nil, fmt.Errorf("hunk %q: unresolved symbol %q", h.Name, r.Symbol)
			}
			siteAddr := h.Address + int32(r.Offset)
			idx := int(siteAddr) - int(base)
			if idx < 0 || idx+4 > len(out) {
				return nil, fmt.Errorf("hunk %q: relocation at %d out of bounds", h.Name, r.Offset)
			}
			target := sym.Address()
			var value int32
			switch r.Type {
			case Abs32:
				value = target
			case Rel32:
				value = target - (siteAddr + 4)
			default:
				return nil, fmt.Errorf("hunk %q: unsupported relocation type %v", h.Name, r.Type)
			}
			out[idx] = byte(value)
			out[idx+1] = byte(value >> 8)
			out[idx+2] = byte(value >> 16)
			out[idx+3] = byte(value >> 24)
		}
	}

	return result, nil
}

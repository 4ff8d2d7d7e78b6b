// Package linksort orders the hunks that make up a flat image before
// compression. The order a hunk graph is concatenated in changes nothing
// about correctness, but it changes how well the context-mixing coder can
// predict byte n from byte n-1, so it is worth searching over.
package linksort

import (
	"sort"

	"moria.us/mlink/hunk"
)

// Heuristic orders hunks by a fixed, deterministic rule that needs no
// compression feedback: code before data before bss, and within each,
// coarser alignment first, then larger size first, then name, so that
// runs are byte-compatible and names break remaining ties reproducibly.
func Heuristic(hunks []*hunk.Hunk) []*hunk.Hunk {
	out := append([]*hunk.Hunk(nil), hunks...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ca, cb := classOf(a), classOf(b)
		if ca != cb {
			return ca < cb
		}
		if a.AlignBits != b.AlignBits {
			return a.AlignBits > b.AlignBits
		}
		if a.RawSize() != b.RawSize() {
			return a.RawSize() > b.RawSize()
		}
		return a.Name < b.Name
	})
	return out
}

// classOf buckets a hunk for the heuristic sort: code first, then data,
// then bss, matching a flat image's conventional section order.
func classOf(h *hunk.Hunk) int {
	switch {
	case h.Flags&hunk.Code != 0:
		return 0
	case h.Flags&hunk.BSS != 0:
		return 2
	default:
		return 1
	}
}

// Explicit orders hunks according to a previously recorded name sequence.
// Hunks the recorded order doesn't mention (new hunks introduced since the
// order was recorded) follow in heuristic order; names in the recorded
// order that match no current hunk are skipped.
func Explicit(hunks []*hunk.Hunk, order []string) []*hunk.Hunk {
	byName := make(map[string]*hunk.Hunk, len(hunks))
	for _, h := range hunks {
		byName[h.Name] = h
	}

	placed := make(map[string]bool, len(order))
	out := make([]*hunk.Hunk, 0, len(hunks))
	for _, name := range order {
		if h, ok := byName[name]; ok && !placed[name] {
			out = append(out, h)
			placed[name] = true
		}
	}

	var remaining []*hunk.Hunk
	for _, h := range hunks {
		if !placed[h.Name] {
			remaining = append(remaining, h)
		}
	}
	out = append(out, Heuristic(remaining)...)
	return out
}

// Package search implements the heuristic hill-climbing procedures that
// pick context masks, weights, and hash-table sizes for the coder: trying
// many candidate model lists against the exact (collision-free) size
// estimator in package model and keeping whichever change reduces the
// estimated coded size.
package search

import (
	"hash/maphash"

	"github.com/dgryski/go-tinylfu"

	"moria.us/mlink/model"
)

// Progress is called periodically during search with the current step and
// the total number of steps the active tier plans to take, so a caller can
// report progress without search itself knowing about any UI.
type Progress func(step, total int)

// candidateCache memoizes EvaluateSize4k results across trials that hash to
// an identical mask set, since model search repeatedly revisits the same
// subset via different paths (add then remove, or two different orders of
// the same two additions).
type candidateCache struct {
	c *tinylfu.T[string, int64]
}

var candidateHashSeed = maphash.MakeSeed()

func hashMaskKey(k string) uint64 {
	return maphash.String(candidateHashSeed, k)
}

func newCandidateCache(capacity int) *candidateCache {
	return &candidateCache{c: tinylfu.New[string, int64](capacity, capacity*8, hashMaskKey)}
}

func maskKey(masks []byte) string {
	return string(masks)
}

func (cc *candidateCache) get(masks []byte) (int64, bool) {
	return cc.c.Get(maskKey(masks))
}

func (cc *candidateCache) put(masks []byte, size int64) {
	cc.c.Add(maskKey(masks), size)
}

// stepsForTier returns the number of hill-climb rounds a tier runs and
// whether it accepts lateral (non-improving, equal-size) moves to escape
// plateaus.
func stepsForTier(tier model.CompressionTier) (rounds int, lateral bool) {
	switch tier {
	case model.Instant:
		return 0, false
	case model.Fast:
		return 20, false
	case model.Slow:
		return 80, true
	case model.VerySlow:
		return 400, true
	default:
		return 20, false
	}
}

// allMasks is the full universe of context masks 4k search may try adding:
// every non-empty subset of the 8 context byte positions is too large
// (255 masks) to search exhaustively, so search works from this curated
// superset instead, mirroring the fixed palette the 1k coder uses.
var allMasks = append([]byte(nil), model.Palette1k...)

// ApproximateModels4k hill-climbs from NewStarterList4k (or, if seed is
// non-nil, from seed) toward a model list that minimizes the estimated
// coded size of segments, under the given effort tier. It returns the best
// list found and its estimated size.
func ApproximateModels4k(segments []model.Segment, baseProb uint32, saturate bool, tier model.CompressionTier, seed *model.ModelList4k, progress Progress) (*model.ModelList4k, int64) {
	current := seed
	if current == nil {
		current = model.NewStarterList4k()
	} else {
		current = current.Clone()
	}

	_, perSeg := model.EvaluateSize4k(segments, listFor(segments, current), baseProb, saturate)
	bestSize := sum(perSeg)

	rounds, lateral := stepsForTier(tier)
	if rounds == 0 {
		return current, bestSize
	}

	cache := newCandidateCache(4096)
	seen := make(map[string]bool)

	for step := 0; step < rounds; step++ {
		if progress != nil {
			progress(step, rounds)
		}
		candidates := neighbors(current)
		improved := false
		for _, cand := range candidates {
			key := maskKey(cand.SortedMasks())
			if seen[key] {
				continue
			}
			seen[key] = true

			var size int64
			if cached, ok := cache.get(cand.MaskList()); ok {
				size = cached
			} else {
				_, perSeg := model.EvaluateSize4k(segments, listFor(segments, cand), baseProb, saturate)
				size = sum(perSeg)
				cache.put(cand.MaskList(), size)
			}

			better := size < bestSize
			equal := size == bestSize && lateral && len(cand.Models) <= len(current.Models)
			if better || equal {
				current = cand
				bestSize = size
				improved = true
				break
			}
		}
		if !improved && !lateral {
			break
		}
	}

	current.Size = bestSize
	return current, bestSize
}

// listFor expands a single model list into one per segment: all segments
// of a 4k image share the same model list during search (the depacker only
// ever has one set of weights per coder instance).
func listFor(segments []model.Segment, ml *model.ModelList4k) []*model.ModelList4k {
	out := make([]*model.ModelList4k, len(segments))
	for i := range out {
		out[i] = ml
	}
	return out
}

// neighbors generates the candidate model lists reachable from current in
// one hill-climb step: adding one unused mask, removing one present mask,
// or nudging one model's weight up or down.
func neighbors(current *model.ModelList4k) []*model.ModelList4k {
	var out []*model.ModelList4k

	present := make(map[byte]bool)
	for _, m := range current.Models {
		present[m.Mask] = true
	}

	if len(current.Models) < model.MaxModels {
		for _, mask := range allMasks {
			if present[mask] {
				continue
			}
			cand := current.Clone()
			cand.AddModel(model.Model{Weight: model.DefaultWeight, Mask: mask})
			out = append(out, cand)
		}
	}

	for i := range current.Models {
		if len(current.Models) <= 1 {
			break
		}
		cand := current.Clone()
		cand.Models = append(append([]model.Model(nil), cand.Models[:i]...), cand.Models[i+1:]...)
		out = append(out, cand)
	}

	for i, m := range current.Models {
		for _, delta := range []int{-1, 1, -2, 2} {
			nw := int(m.Weight) + delta
			if nw < 0 || nw > 255 {
				continue
			}
			cand := current.Clone()
			cand.Models[i].Weight = uint8(nw)
			out = append(out, cand)
		}
	}

	return out
}

func sum(vals []int64) int64 {
	var t int64
	for _, v := range vals {
		t += v
	}
	return t
}

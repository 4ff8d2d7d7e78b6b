package search

import "moria.us/mlink/model"

// boostRange and probRange bound the 1k coder's coordinate-descent search:
// the parameters are small enough, and their effect on size smooth enough,
// that a bounded grid beats trying to reason about gradients.
var boostRange = []uint32{0, 1, 2, 3, 4, 5, 6, 8, 10, 12}
var probRange = []uint32{0, 1, 2, 4, 8, 16, 32}

// ApproximateModels1k coordinate-descends over ModelMask (bit by bit),
// Boost, BaseProb0, and BaseProb1 to minimize the estimated coded size of
// data, starting from a full palette, a Boost of 4 and both base
// probabilities at 1. It returns the best parameters found and their estimated size.
func ApproximateModels1k(data []byte, tier model.CompressionTier, progress Progress) (model.ModelList1k, int64) {
	best := model.ModelList1k{
		ModelMask: 1<<uint(len(model.Palette1k)) - 1,
		Boost:     4,
		BaseProb0: 1,
		BaseProb1: 1,
	}
	bestSize := model.EvaluateSize1k(data, best)

	rounds, _ := stepsForTier(tier)
	if rounds == 0 {
		return best, bestSize
	}
	// 1k search is cheap enough to always run a full coordinate descent
	// regardless of tier, once a tier asks for any search at all.
	for pass := 0; pass < 3; pass++ {
		improvedThisPass := false

		for bit := 0; bit < len(model.Palette1k); bit++ {
			cand := best
			cand.ModelMask ^= 1 << uint(bit)
			if size := model.EvaluateSize1k(data, cand); size < bestSize {
				best, bestSize = cand, size
				improvedThisPass = true
			}
		}

		for _, boost := range boostRange {
			cand := best
			cand.Boost = boost
			if size := model.EvaluateSize1k(data, cand); size < bestSize {
				best, bestSize = cand, size
				improvedThisPass = true
			}
		}

		for _, p := range probRange {
			cand := best
			cand.BaseProb0 = p
			if size := model.EvaluateSize1k(data, cand); size < bestSize {
				best, bestSize = cand, size
				improvedThisPass = true
			}
			cand = best
			cand.BaseProb1 = p
			if size := model.EvaluateSize1k(data, cand); size < bestSize {
				best, bestSize = cand, size
				improvedThisPass = true
			}
		}

		if progress != nil {
			progress(pass, 3)
		}
		if !improvedThisPass {
			break
		}
	}

	return best, bestSize
}

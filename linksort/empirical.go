package linksort

import (
	"math/rand"

	"moria.us/mlink/hunk"
)

// empiricalSeed is the fixed constant the empirical sorter's permutation
// descent is seeded from, so that a given input, model list, hash size and
// tries count always produces the same order.
const empiricalSeed = 0x4c4b4b31

// Progress reports the empirical sorter's advancement: attempts made so
// far against the total budget.
type Progress func(attempts, budget int)

// maxGlobalAttempts bounds the empirical sorter's total work regardless of
// how large tries is asked to be, so a pathological tries value can't spin
// forever on a large hunk list.
const maxGlobalAttempts = 200000

// Empirical repeatedly swaps two hunks in the current order and measures
// the coded size evaluate reports for the result, keeping the swap only
// when it does not increase that size. It stops after tries consecutive
// non-improving attempts, or after the global attempt cap, whichever comes
// first, and returns the best order found.
func Empirical(hunks []*hunk.Hunk, evaluate func([]*hunk.Hunk) int64, tries int, progress Progress) []*hunk.Hunk {
	current := append([]*hunk.Hunk(nil), hunks...)
	if len(current) < 2 {
		return current
	}

	bestSize := evaluate(current)
	rng := rand.New(rand.NewSource(empiricalSeed))

	sinceImprovement := 0
	attempts := 0
	for sinceImprovement < tries && attempts < maxGlobalAttempts {
		attempts++
		i := rng.Intn(len(current))
		j := rng.Intn(len(current))
		if i == j {
			sinceImprovement++
			continue
		}

		current[i], current[j] = current[j], current[i]
		size := evaluate(current)
		if size <= bestSize {
			if size < bestSize {
				sinceImprovement = 0
			} else {
				sinceImprovement++
			}
			bestSize = size
		} else {
			current[i], current[j] = current[j], current[i]
			sinceImprovement++
		}

		if progress != nil {
			progress(attempts, tries)
		}
	}

	return current
}

package search

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// candidateSizes returns up to tries hash-table sizes worth trying for a
// table starting at n entries: repeatedly halving and rounding down to the
// largest prime below, doubled (S_i = previous_prime(S_{i-1}/2)*2), until the table
// would plainly be too small to be worth coding or the try budget runs
// out. Smaller tables cost more bits to collisions but take fewer bytes to
// describe in the depacker, so the smallest size that doesn't hurt
// compression wins; working down from n/2 rather than up from 2 keeps the
// common case (n itself is already a good size) cheap.
func candidateSizes(n, tries int) []int {
	if tries < 1 {
		tries = 1
	}
	if n < 4 {
		return []int{4}
	}
	var sizes []int
	cur := n
	for cur >= 4 && len(sizes) < tries {
		p := previousPrime(cur / 2)
		size := p * 2
		sizes = append(sizes, size)
		cur = size
	}
	if len(sizes) == 0 {
		sizes = append(sizes, 4)
	}
	return sizes
}

// previousPrime returns the largest prime strictly less than n, or 2 if
// n <= 2.
func previousPrime(n int) int {
	if n <= 2 {
		return 2
	}
	for c := n - 1; c >= 2; c-- {
		if isPrime(c) {
			return c
		}
	}
	return 2
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// Result is one hash-table-size trial's outcome.
type Result struct {
	HashSize int
	Coded    []byte
}

// OptimizeHashSize evaluates compress at up to tries candidate hash-table
// sizes descending from startEntries, in parallel, and returns the
// candidate producing the smallest coded output, tie-breaking toward the
// smaller table when two sizes code to the exact same length. compress
// must be safe to call concurrently with different hashSize arguments.
func OptimizeHashSize(ctx context.Context, startEntries, tries int, compress func(hashSize int) []byte) (Result, error) {
	sizes := candidateSizes(startEntries, tries)
	results := make([]Result, len(sizes))

	g, gctx := errgroup.WithContext(ctx)
	for i, size := range sizes {
		i, size := i, size
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = Result{HashSize: size, Coded: compress(size)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	best := results[0]
	for _, r := range results[1:] {
		switch {
		case len(r.Coded) < len(best.Coded):
			best = r
		case len(r.Coded) == len(best.Coded) && r.HashSize < best.HashSize:
			best = r
		}
	}
	return best, nil
}

package linksort_test

import (
	"testing"

	"moria.us/mlink/hunk"
	"moria.us/mlink/linksort"
)

func mkHunk(name string, flags hunk.Flag, size int, align uint) *hunk.Hunk {
	h := hunk.New(name, flags, make([]byte, size), 0)
	h.SetAlignBits(align)
	return h
}

func TestHeuristicOrdersCodeDataBSS(t *testing.T) {
	bss := mkHunk("bss1", hunk.BSS, 0, 0)
	data := mkHunk("data1", hunk.Data, 4, 0)
	code := mkHunk("code1", hunk.Code, 4, 0)

	out := linksort.Heuristic([]*hunk.Hunk{bss, data, code})
	if out[0] != code || out[1] != data || out[2] != bss {
		names := []string{out[0].Name, out[1].Name, out[2].Name}
		t.Fatalf("order = %v, want [code1 data1 bss1]", names)
	}
}

func TestHeuristicTieBreaksByAlignThenSizeThenName(t *testing.T) {
	a := mkHunk("b", hunk.Code, 4, 2)
	b := mkHunk("a", hunk.Code, 4, 2)
	c := mkHunk("z", hunk.Code, 8, 2)
	d := mkHunk("y", hunk.Code, 4, 4)

	out := linksort.Heuristic([]*hunk.Hunk{a, b, c, d})
	// d has coarsest alignment, wins first; then c (larger size); then a/b by name.
	if out[0] != d || out[1] != c || out[2] != b || out[3] != a {
		var names []string
		for _, h := range out {
			names = append(names, h.Name)
		}
		t.Fatalf("order = %v, want [y z a b]", names)
	}
}

func TestExplicitFallsBackToHeuristicForUnknownHunks(t *testing.T) {
	code := mkHunk("known", hunk.Code, 4, 0)
	extra := mkHunk("new", hunk.Code, 8, 0)

	out := linksort.Explicit([]*hunk.Hunk{code, extra}, []string{"known"})
	if len(out) != 2 || out[0].Name != "known" || out[1].Name != "new" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestEmpiricalNeverWorsensSize(t *testing.T) {
	h1 := mkHunk("h1", hunk.Code, 4, 0)
	h2 := mkHunk("h2", hunk.Code, 4, 0)
	h3 := mkHunk("h3", hunk.Code, 4, 0)

	evaluate := func(order []*hunk.Hunk) int64 {
		// Prefer alphabetical order deterministically.
		var penalty int64
		for i := 0; i < len(order)-1; i++ {
			if order[i].Name > order[i+1].Name {
				penalty++
			}
		}
		return penalty
	}

	start := []*hunk.Hunk{h3, h1, h2}
	startSize := evaluate(start)
	out := linksort.Empirical(start, evaluate, 50, nil)
	if evaluate(out) > startSize {
		t.Fatalf("empirical sort worsened size: got %d, started at %d", evaluate(out), startSize)
	}
}

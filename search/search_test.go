package search_test

import (
	"context"
	"testing"

	"moria.us/mlink/model"
	"moria.us/mlink/search"
)

func TestApproximateModels4kImprovesOnStarter(t *testing.T) {
	data := []byte("abababababababababababababababababababababababababababababab")
	seg := model.Segment{Data: data}

	starter := model.NewStarterList4k()
	_, starterSize := model.EvaluateSize4k([]model.Segment{seg}, []*model.ModelList4k{starter}, 1, true)

	best, bestSize := search.ApproximateModels4k([]model.Segment{seg}, 1, true, model.Fast, nil, nil)
	if best == nil {
		t.Fatal("ApproximateModels4k returned nil list")
	}
	if bestSize > starterSize[0] {
		t.Errorf("search made things worse: best=%d starter=%d", bestSize, starterSize[0])
	}
}

func TestApproximateModels4kInstantIsNoOp(t *testing.T) {
	data := []byte("xyz")
	seg := model.Segment{Data: data}
	best, _ := search.ApproximateModels4k([]model.Segment{seg}, 1, true, model.Instant, nil, nil)
	if len(best.Models) != len(model.StarterModels) {
		t.Errorf("Instant tier changed the model count: got %d, want %d", len(best.Models), len(model.StarterModels))
	}
}

func TestApproximateModels1k(t *testing.T) {
	data := []byte("mov eax, 0; mov eax, 0; mov eax, 0; mov eax, 0;")
	best, size := search.ApproximateModels1k(data, model.Fast, nil)
	if size <= 0 {
		t.Errorf("size = %d, want > 0", size)
	}
	if len(best.EnabledMasks()) == 0 {
		t.Error("search disabled every context, which should never win over baseline")
	}
}

func TestOptimizeHashSizePicksSmallestCoded(t *testing.T) {
	// Starting at 64 with 3 tries, the candidates are 31*2, 29*2 and 23*2.
	sizes := map[int]int{62: 40, 58: 30, 46: 35}
	compress := func(hashSize int) []byte {
		return make([]byte, sizes[hashSize])
	}

	res, err := search.OptimizeHashSize(context.Background(), 64, 3, compress)
	if err != nil {
		t.Fatalf("OptimizeHashSize: %v", err)
	}
	if res.HashSize != 58 {
		t.Errorf("HashSize = %d, want 58", res.HashSize)
	}
}

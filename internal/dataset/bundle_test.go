package dataset

import (
	"context"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestClassIndices(t *testing.T) {
	y := mat.NewDense(3, 8, []float64{
		0, 0, 1, 0, 0, 0, 0, 0,
		1, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 1,
	})
	got := ClassIndices(y)
	want := []int{2, 0, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestOneHotRoundTrip(t *testing.T) {
	labels := []int{3, 1, 4, 1, 5}
	got := ClassIndices(OneHot(labels, 8))
	for i := range labels {
		if got[i] != labels[i] {
			t.Fatalf("index %d: got %d want %d", i, got[i], labels[i])
		}
	}
}

func TestSyntheticExtractorShapes(t *testing.T) {
	b, err := SyntheticExtractor{
		TrainSize: 70, DevSize: 7, TestSize: 9,
		SeqLen: 4, FeatureDim: 33, NumClasses: 8, Seed: 1,
	}.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if b.Train.XShape() != "(70, 4, 33)" || b.Train.YShape() != "(70, 8)" {
		t.Fatalf("unexpected train shapes %s %s", b.Train.XShape(), b.Train.YShape())
	}
	if b.Test.Len() != 9 || b.Dev.Len() != 7 {
		t.Fatalf("unexpected split sizes %d %d", b.Dev.Len(), b.Test.Len())
	}
	counts := make([]int, 8)
	for _, c := range ClassIndices(b.Train.Y) {
		counts[c]++
	}
	for c, n := range counts {
		if n < 8 || n > 9 {
			t.Fatalf("class %d has %d examples", c, n)
		}
	}
}

func TestSyntheticExtractorDeterministic(t *testing.T) {
	ex := SyntheticExtractor{TrainSize: 10, DevSize: 2, TestSize: 2, SeqLen: 2, FeatureDim: 3, NumClasses: 4, Seed: 99}
	a, err := ex.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	b, err := ex.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !mat.Equal(a.Train.X, b.Train.X) || !mat.Equal(a.Train.Y, b.Train.Y) {
		t.Fatal("same seed produced different data")
	}
}

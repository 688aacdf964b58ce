package model

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestInitHiddenZeroShape(t *testing.T) {
	m, err := New(Options{InputDim: 33, HiddenDim: 128, NumLayers: 2, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := m.InitHidden(35)
	if len(s.H) != 2 || len(s.C) != 2 {
		t.Fatalf("expected 2 layers of state, got %d/%d", len(s.H), len(s.C))
	}
	for i := range s.H {
		for _, x := range []*mat.Dense{s.H[i], s.C[i]} {
			r, c := x.Dims()
			if r != 35 || c != 128 {
				t.Fatalf("layer %d state is %dx%d", i, r, c)
			}
			if mat.Sum(x) != 0 || mat.Norm(x, 1) != 0 {
				t.Fatalf("layer %d state not zero", i)
			}
		}
	}
}

func TestForwardRowsAreLogProbabilities(t *testing.T) {
	m, err := New(Options{InputDim: 5, HiddenDim: 7, Seed: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seq := randomSequence(rand.New(rand.NewSource(9)), 4, 6, 5)
	out, err := m.Forward(seq, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	rows, cols := out.Dims()
	if rows != 6 || cols != 8 {
		t.Fatalf("expected 6x8 output, got %dx%d", rows, cols)
	}
	for r := 0; r < rows; r++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += math.Exp(out.At(r, c))
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d sums to %f", r, sum)
		}
	}
}

func TestForwardAcceptsAnyBatchSize(t *testing.T) {
	m, err := New(Options{InputDim: 3, HiddenDim: 4, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for _, batch := range []int{1, 5, 35} {
		init := m.InitHidden(batch)
		out, err := m.Forward(randomSequence(rng, 2, batch, 3), &init)
		if err != nil {
			t.Fatalf("batch %d: %v", batch, err)
		}
		if r, _ := out.Dims(); r != batch {
			t.Fatalf("batch %d: got %d rows", batch, r)
		}
	}
}

func TestForwardRejectsShapeMismatch(t *testing.T) {
	m, err := New(Options{InputDim: 3, HiddenDim: 4, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := m.Forward(randomSequence(rng, 2, 4, 5), nil); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for feature width, got %v", err)
	}
	wrong := m.InitHidden(3)
	if _, err := m.Forward(randomSequence(rng, 2, 4, 3), &wrong); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for state batch, got %v", err)
	}
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	m, err := New(Options{InputDim: 3, HiddenDim: 4, OutputDim: 3, NumLayers: 2, Seed: 11})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(5))
	seq := randomSequence(rng, 3, 2, 3)
	targets := []int{0, 2}

	lossAt := func() float64 {
		out, err := m.Forward(seq, nil)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		loss, _, err := NLLLoss(out, targets)
		if err != nil {
			t.Fatalf("NLLLoss: %v", err)
		}
		return loss
	}

	m.ZeroGrad()
	out, err := m.Forward(seq, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	_, grad, err := NLLLoss(out, targets)
	if err != nil {
		t.Fatalf("NLLLoss: %v", err)
	}
	if err := m.Backward(grad); err != nil {
		t.Fatalf("Backward: %v", err)
	}

	const eps = 1e-6
	for _, p := range m.Params() {
		values := p.Value.RawMatrix().Data
		analytic := append([]float64(nil), p.Grad.RawMatrix().Data...)
		for i := range values {
			orig := values[i]
			values[i] = orig + eps
			plus := lossAt()
			values[i] = orig - eps
			minus := lossAt()
			values[i] = orig

			numeric := (plus - minus) / (2 * eps)
			diff := math.Abs(numeric - analytic[i])
			scale := math.Max(1e-4, math.Abs(numeric)+math.Abs(analytic[i]))
			if diff/scale > 1e-4 {
				t.Fatalf("%s[%d]: analytic %.8f numeric %.8f", p.Name, i, analytic[i], numeric)
			}
		}
	}
}

func TestZeroGradClears(t *testing.T) {
	m, err := New(Options{InputDim: 2, HiddenDim: 3, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := m.Forward(randomSequence(rand.New(rand.NewSource(2)), 2, 2, 2), nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	_, grad, _ := NLLLoss(out, []int{1, 4})
	if err := m.Backward(grad); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	m.ZeroGrad()
	for _, p := range m.Params() {
		if mat.Norm(p.Grad, 1) != 0 {
			t.Fatalf("%s gradient not cleared", p.Name)
		}
	}
}

func TestBackwardBeforeForward(t *testing.T) {
	m, err := New(Options{InputDim: 2, HiddenDim: 3, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Backward(mat.NewDense(1, 8, nil)); err == nil {
		t.Fatal("expected error")
	}
}

func TestNumParams(t *testing.T) {
	m, err := New(Options{InputDim: 33, HiddenDim: 128, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// layer 0: 4H*(in+H+1), layer 1: 4H*(H+H+1), head: 8*(H+1)
	want := 512*(33+128+1) + 512*(128+128+1) + 8*129
	if got := m.NumParams(); got != want {
		t.Fatalf("NumParams=%d want %d", got, want)
	}
}

func randomSequence(rng *rand.Rand, steps, batch, features int) Sequence {
	seq := make(Sequence, steps)
	for t := range seq {
		data := make([]float64, batch*features)
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		seq[t] = mat.NewDense(batch, features, data)
	}
	return seq
}

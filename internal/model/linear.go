package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// linear is a fully connected projection y = x·Wᵀ + b.
type linear struct {
	w  *Param // [out, in]
	b  *Param // [1, out]
	in *mat.Dense
}

func newLinear(name string, inputDim, outputDim int, rng *rand.Rand) *linear {
	l := &linear{
		w: newParam(name+".weight", outputDim, inputDim),
		b: newParam(name+".bias", 1, outputDim),
	}
	bound := 1 / math.Sqrt(float64(inputDim))
	uniformFill(l.w.Value, bound, rng)
	uniformFill(l.b.Value, bound, rng)
	return l
}

func (l *linear) params() []*Param {
	return []*Param{l.w, l.b}
}

func (l *linear) forward(x *mat.Dense) *mat.Dense {
	l.in = x
	rows, _ := x.Dims()
	_, outDim := l.b.Value.Dims()
	out := mat.NewDense(rows, outDim, nil)
	out.Mul(x, l.w.Value.T())
	bias := l.b.Value.RawRowView(0)
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return out
}

func (l *linear) backward(dOut *mat.Dense) *mat.Dense {
	var gw mat.Dense
	gw.Mul(dOut.T(), l.in)
	l.w.Grad.Add(l.w.Grad, &gw)

	rows, _ := dOut.Dims()
	gb := l.b.Grad.RawRowView(0)
	for r := 0; r < rows; r++ {
		for j, v := range dOut.RawRowView(r) {
			gb[j] += v
		}
	}

	_, inDim := l.in.Dims()
	dx := mat.NewDense(rows, inDim, nil)
	dx.Mul(dOut, l.w.Value)
	return dx
}

package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// lstmLayer is one layer of the recurrent stack. Gates are packed along the
// column axis in the order input, forget, candidate, output.
type lstmLayer struct {
	inputDim  int
	hiddenDim int

	wIH  *Param // [4H, in]
	wHH  *Param // [4H, H]
	bias *Param // [1, 4H]

	// forward cache for backprop through time
	inputs Sequence
	hs     []*mat.Dense // T+1 entries, hs[0] is the initial state
	cs     []*mat.Dense
	gates  []*mat.Dense // activated gates [B, 4H]
	tanhC  []*mat.Dense
}

func newLSTMLayer(name string, inputDim, hiddenDim int, rng *rand.Rand) *lstmLayer {
	l := &lstmLayer{
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		wIH:       newParam(name+".weight_ih", 4*hiddenDim, inputDim),
		wHH:       newParam(name+".weight_hh", 4*hiddenDim, hiddenDim),
		bias:      newParam(name+".bias", 1, 4*hiddenDim),
	}
	bound := 1 / math.Sqrt(float64(hiddenDim))
	for _, p := range []*Param{l.wIH, l.wHH, l.bias} {
		uniformFill(p.Value, bound, rng)
	}
	return l
}

func (l *lstmLayer) params() []*Param {
	return []*Param{l.wIH, l.wHH, l.bias}
}

// forward runs the layer over every time step starting from (h0, c0) and
// returns the hidden output of each step.
func (l *lstmLayer) forward(xs Sequence, h0, c0 *mat.Dense) Sequence {
	steps, batch, _ := xs.Dims()
	H := l.hiddenDim

	l.inputs = xs
	l.hs = make([]*mat.Dense, steps+1)
	l.cs = make([]*mat.Dense, steps+1)
	l.gates = make([]*mat.Dense, steps)
	l.tanhC = make([]*mat.Dense, steps)
	l.hs[0] = mat.DenseCopyOf(h0)
	l.cs[0] = mat.DenseCopyOf(c0)

	bias := l.bias.Value.RawMatrix().Data
	rec := mat.NewDense(batch, 4*H, nil)
	out := make(Sequence, steps)
	for t, x := range xs {
		pre := mat.NewDense(batch, 4*H, nil)
		pre.Mul(x, l.wIH.Value.T())
		rec.Mul(l.hs[t], l.wHH.Value.T())
		pre.Add(pre, rec)

		h := mat.NewDense(batch, H, nil)
		c := mat.NewDense(batch, H, nil)
		tc := mat.NewDense(batch, H, nil)
		gd := pre.RawMatrix().Data
		cPrev := l.cs[t].RawMatrix().Data
		hd, cd, tcd := h.RawMatrix().Data, c.RawMatrix().Data, tc.RawMatrix().Data
		for b := 0; b < batch; b++ {
			row := gd[b*4*H : (b+1)*4*H]
			for j := range row {
				row[j] += bias[j]
			}
			for j := 0; j < H; j++ {
				ig := sigmoid(row[j])
				fg := sigmoid(row[H+j])
				gg := math.Tanh(row[2*H+j])
				og := sigmoid(row[3*H+j])
				row[j], row[H+j], row[2*H+j], row[3*H+j] = ig, fg, gg, og

				k := b*H + j
				cd[k] = fg*cPrev[k] + ig*gg
				tcd[k] = math.Tanh(cd[k])
				hd[k] = og * tcd[k]
			}
		}

		l.gates[t] = pre
		l.hs[t+1] = h
		l.cs[t+1] = c
		l.tanhC[t] = tc
		out[t] = h
	}
	return out
}

// backward propagates dOut (gradient w.r.t. each step's hidden output, nil
// entries meaning zero) through time, accumulates parameter gradients and
// returns the gradient w.r.t. each step's input.
func (l *lstmLayer) backward(dOut Sequence) Sequence {
	steps, batch, _ := l.inputs.Dims()
	H := l.hiddenDim

	dhNext := mat.NewDense(batch, H, nil)
	dcNext := mat.NewDense(batch, H, nil)
	dPre := mat.NewDense(batch, 4*H, nil)
	gIH := mat.NewDense(4*H, l.inputDim, nil)
	gHH := mat.NewDense(4*H, H, nil)
	dBias := l.bias.Grad.RawMatrix().Data
	dxs := make(Sequence, steps)

	for t := steps - 1; t >= 0; t-- {
		dhN := dhNext.RawMatrix().Data
		dcN := dcNext.RawMatrix().Data
		var dOutT []float64
		if dOut[t] != nil {
			dOutT = dOut[t].RawMatrix().Data
		}
		gd := l.gates[t].RawMatrix().Data
		tcd := l.tanhC[t].RawMatrix().Data
		cPrev := l.cs[t].RawMatrix().Data
		dp := dPre.RawMatrix().Data

		for b := 0; b < batch; b++ {
			row := gd[b*4*H : (b+1)*4*H]
			drow := dp[b*4*H : (b+1)*4*H]
			for j := 0; j < H; j++ {
				k := b*H + j
				dh := dhN[k]
				if dOutT != nil {
					dh += dOutT[k]
				}
				ig, fg, gg, og := row[j], row[H+j], row[2*H+j], row[3*H+j]
				tc := tcd[k]

				dc := dcN[k] + dh*og*(1-tc*tc)
				drow[j] = dc * gg * ig * (1 - ig)
				drow[H+j] = dc * cPrev[k] * fg * (1 - fg)
				drow[2*H+j] = dc * ig * (1 - gg*gg)
				drow[3*H+j] = dh * tc * og * (1 - og)
				dcN[k] = dc * fg
			}
			for j, v := range drow {
				dBias[j] += v
			}
		}

		gIH.Mul(dPre.T(), l.inputs[t])
		l.wIH.Grad.Add(l.wIH.Grad, gIH)
		gHH.Mul(dPre.T(), l.hs[t])
		l.wHH.Grad.Add(l.wHH.Grad, gHH)

		dx := mat.NewDense(batch, l.inputDim, nil)
		dx.Mul(dPre, l.wIH.Value)
		dxs[t] = dx
		dhNext.Mul(dPre, l.wHH.Value)
	}
	return dxs
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func uniformFill(m *mat.Dense, bound float64, rng *rand.Rand) {
	data := m.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * bound
	}
}

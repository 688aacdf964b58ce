package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when an input does not match the model layout.
var ErrShapeMismatch = errors.New("model: shape mismatch")

// Sequence is a minibatch in time-major layout: one [batch, features]
// matrix per time step.
type Sequence []*mat.Dense

// Dims reports the sequence length, batch size and feature width.
func (s Sequence) Dims() (steps, batch, features int) {
	if len(s) == 0 {
		return 0, 0, 0
	}
	batch, features = s[0].Dims()
	return len(s), batch, features
}

// Param is a trainable tensor together with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// State holds the per-layer hidden and cell matrices of a recurrent stack.
type State struct {
	H []*mat.Dense
	C []*mat.Dense
}

// Model defines the training functionality required by the loop.
type Model interface {
	InitHidden(batch int) State
	Forward(seq Sequence, init *State) (*mat.Dense, error)
	Backward(dLogProbs *mat.Dense) error
	ZeroGrad()
	Params() []*Param
}

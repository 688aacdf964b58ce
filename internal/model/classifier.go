package model

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Options configures an LSTMClassifier.
type Options struct {
	InputDim  int
	HiddenDim int
	OutputDim int
	NumLayers int
	Seed      int64
}

// LSTMClassifier is a stacked LSTM whose final time step is projected to
// class log-probabilities.
type LSTMClassifier struct {
	opts   Options
	layers []*lstmLayer
	head   *linear

	steps    int
	logProbs *mat.Dense
}

var _ Model = (*LSTMClassifier)(nil)

// New builds a classifier with seeded uniform initialization. OutputDim
// defaults to 8 and NumLayers to 2.
func New(opts Options) (*LSTMClassifier, error) {
	if opts.OutputDim <= 0 {
		opts.OutputDim = 8
	}
	if opts.NumLayers <= 0 {
		opts.NumLayers = 2
	}
	if opts.InputDim <= 0 || opts.HiddenDim <= 0 {
		return nil, fmt.Errorf("model: input and hidden dims must be > 0 (got %d, %d)", opts.InputDim, opts.HiddenDim)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	m := &LSTMClassifier{opts: opts}
	in := opts.InputDim
	for i := 0; i < opts.NumLayers; i++ {
		m.layers = append(m.layers, newLSTMLayer(fmt.Sprintf("lstm.%d", i), in, opts.HiddenDim, rng))
		in = opts.HiddenDim
	}
	m.head = newLinear("linear", opts.HiddenDim, opts.OutputDim, rng)
	return m, nil
}

// Options returns the configuration the model was built with.
func (m *LSTMClassifier) Options() Options {
	return m.opts
}

// InitHidden returns a zero (hidden, cell) state for a batch of the given size.
func (m *LSTMClassifier) InitHidden(batch int) State {
	s := State{
		H: make([]*mat.Dense, m.opts.NumLayers),
		C: make([]*mat.Dense, m.opts.NumLayers),
	}
	for i := range s.H {
		s.H[i] = mat.NewDense(batch, m.opts.HiddenDim, nil)
		s.C[i] = mat.NewDense(batch, m.opts.HiddenDim, nil)
	}
	return s
}

// Forward runs seq ([seq, batch, feature]) through the network and returns
// log-probabilities of shape [batch, classes]. A nil init starts every
// layer from zero state.
func (m *LSTMClassifier) Forward(seq Sequence, init *State) (*mat.Dense, error) {
	steps, batch, features := seq.Dims()
	if steps == 0 || batch == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrShapeMismatch)
	}
	if features != m.opts.InputDim {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, features, m.opts.InputDim)
	}
	for t, x := range seq {
		if r, c := x.Dims(); r != batch || c != features {
			return nil, fmt.Errorf("%w: step %d is %dx%d, want %dx%d", ErrShapeMismatch, t, r, c, batch, features)
		}
	}
	if init == nil {
		zero := m.InitHidden(batch)
		init = &zero
	}
	if err := m.checkState(init, batch); err != nil {
		return nil, err
	}

	xs := seq
	for i, layer := range m.layers {
		xs = layer.forward(xs, init.H[i], init.C[i])
	}
	logits := m.head.forward(xs[len(xs)-1])

	m.steps = steps
	m.logProbs = LogSoftmax(logits)
	return mat.DenseCopyOf(m.logProbs), nil
}

func (m *LSTMClassifier) checkState(s *State, batch int) error {
	if len(s.H) != m.opts.NumLayers || len(s.C) != m.opts.NumLayers {
		return fmt.Errorf("%w: state has %d/%d layers, want %d", ErrShapeMismatch, len(s.H), len(s.C), m.opts.NumLayers)
	}
	for i := range s.H {
		for _, x := range []*mat.Dense{s.H[i], s.C[i]} {
			if r, c := x.Dims(); r != batch || c != m.opts.HiddenDim {
				return fmt.Errorf("%w: layer %d state is %dx%d, want %dx%d", ErrShapeMismatch, i, r, c, batch, m.opts.HiddenDim)
			}
		}
	}
	return nil
}

// Backward propagates the gradient of the loss w.r.t. the last Forward
// output through the whole network, accumulating into parameter gradients.
func (m *LSTMClassifier) Backward(dLogProbs *mat.Dense) error {
	if m.logProbs == nil {
		return errors.New("model: Backward called before Forward")
	}
	r, c := m.logProbs.Dims()
	if gr, gc := dLogProbs.Dims(); gr != r || gc != c {
		return fmt.Errorf("%w: gradient is %dx%d, want %dx%d", ErrShapeMismatch, gr, gc, r, c)
	}

	dz := logSoftmaxBackward(m.logProbs, dLogProbs)
	dOut := make(Sequence, m.steps)
	dOut[m.steps-1] = m.head.backward(dz)
	for i := len(m.layers) - 1; i >= 0; i-- {
		dOut = m.layers[i].backward(dOut)
	}
	return nil
}

// ZeroGrad clears accumulated gradients.
func (m *LSTMClassifier) ZeroGrad() {
	for _, p := range m.Params() {
		p.Grad.Zero()
	}
}

// Params lists every trainable parameter, recurrent layers first.
func (m *LSTMClassifier) Params() []*Param {
	var out []*Param
	for _, l := range m.layers {
		out = append(out, l.params()...)
	}
	return append(out, m.head.params()...)
}

// NumParams counts scalar parameters.
func (m *LSTMClassifier) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		n += r * c
	}
	return n
}

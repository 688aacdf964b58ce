package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"genre-lstm/internal/dataset"
	"genre-lstm/internal/metrics"
	"genre-lstm/internal/model"
)

// ErrNonFiniteLoss aborts a run whose loss diverged.
var ErrNonFiniteLoss = errors.New("trainer: non-finite loss")

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Epochs        int
	BatchSize     int
	HiddenDim     int
	NumLayers     int
	LearningRate  float64
	Seed          int64
	KeepRemainder bool
	Out           io.Writer
	Logger        logrus.FieldLogger
}

// EpochStats is the per-epoch report.
type EpochStats struct {
	Epoch    int
	Batches  int
	Loss     float64
	Accuracy float64
}

// NumBatches is floor(n/batchSize), plus one for a trailing partial batch
// when keepRemainder is set.
func NumBatches(n, batchSize int, keepRemainder bool) int {
	if batchSize <= 0 {
		return 0
	}
	batches := n / batchSize
	if keepRemainder && n%batchSize != 0 {
		batches++
	}
	return batches
}

// Run trains a fresh classifier on train and returns one entry per epoch.
func Run(ctx context.Context, cfg RunConfig, train dataset.Split) ([]EpochStats, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("trainer: batch size must be > 0")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	n := train.Len()
	numBatches := NumBatches(n, cfg.BatchSize, cfg.KeepRemainder)
	if numBatches == 0 {
		return nil, fmt.Errorf("trainer: %d examples do not fill one batch of %d", n, cfg.BatchSize)
	}

	cfg.Logger.Info("Build LSTM RNN model ...")
	mdl, err := model.New(model.Options{
		InputDim:  train.FeatureDim(),
		HiddenDim: cfg.HiddenDim,
		OutputDim: train.NumClasses(),
		NumLayers: cfg.NumLayers,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	opt := model.NewAdam(cfg.LearningRate)
	cfg.Logger.WithFields(logrus.Fields{
		"params":      mdl.NumParams(),
		"num_batches": numBatches,
		"dropped":     n - min(n, numBatches*cfg.BatchSize),
	}).Info("Training ...")

	stats := make([]EpochStats, 0, cfg.Epochs)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var window metrics.Window
		// non-stateful: every epoch starts from zero state
		hidden := mdl.InitHidden(cfg.BatchSize)

		for i := 0; i < numBatches; i++ {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			startData := time.Now()
			lo, hi := i*cfg.BatchSize, min((i+1)*cfg.BatchSize, n)
			seq := Permute(train, lo, hi)
			targets := dataset.ClassIndices(train.Y.Slice(lo, hi, 0, train.NumClasses()))
			dataTime := time.Since(startData)

			init := &hidden
			if hi-lo != cfg.BatchSize {
				partial := mdl.InitHidden(hi - lo)
				init = &partial
			}

			startCompute := time.Now()
			loss, acc, err := step(mdl, opt, seq, targets, init)
			if err != nil {
				return stats, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			window.Record(hi-lo, dataTime, time.Since(startCompute), loss, acc)
		}

		snap := window.Snapshot()
		stats = append(stats, EpochStats{
			Epoch:    epoch,
			Batches:  snap.Batches,
			Loss:     snap.MeanLoss,
			Accuracy: snap.MeanAccuracy,
		})
		fmt.Fprintf(cfg.Out, "Epoch: %d | NLLoss: %.4f | Train Accuracy: %.2f\n", epoch, snap.MeanLoss, snap.MeanAccuracy)
		cfg.Logger.WithFields(logrus.Fields{
			"epoch":           epoch,
			"samples_per_sec": fmt.Sprintf("%.1f", snap.SamplesPerSec),
			"data_ms":         fmt.Sprintf("%.2f", snap.AvgDataMS),
			"compute_ms":      fmt.Sprintf("%.2f", snap.AvgComputeMS),
		}).Debug("epoch timing")
	}
	return stats, nil
}

// step performs one optimizer update and returns the batch loss and
// accuracy.
func step(m model.Model, opt *model.Adam, seq model.Sequence, targets []int, init *model.State) (float64, float64, error) {
	m.ZeroGrad()
	logProbs, err := m.Forward(seq, init)
	if err != nil {
		return 0, 0, err
	}
	loss, grad, err := model.NLLLoss(logProbs, targets)
	if err != nil {
		return 0, 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, 0, fmt.Errorf("%w: %v", ErrNonFiniteLoss, loss)
	}
	if err := m.Backward(grad); err != nil {
		return 0, 0, err
	}
	opt.Step(m.Params())
	return loss, model.Accuracy(logProbs, targets), nil
}

// Permute slices examples [lo, hi) of s and lays them out time-major:
// one [hi-lo, features] matrix per time step.
func Permute(s dataset.Split, lo, hi int) model.Sequence {
	dim := s.FeatureDim()
	seq := make(model.Sequence, s.SeqLen)
	for t := range seq {
		x := mat.NewDense(hi-lo, dim, nil)
		for b := lo; b < hi; b++ {
			copy(x.RawRowView(b-lo), s.X.RawRowView(b)[t*dim:(t+1)*dim])
		}
		seq[t] = x
	}
	return seq
}

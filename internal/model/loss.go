package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogSoftmax normalizes each row of logits into log-probabilities.
func LogSoftmax(logits *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(logits)
	rows, _ := out.Dims()
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		floats.AddConst(-floats.LogSumExp(row), row)
	}
	return out
}

// logSoftmaxBackward maps a gradient w.r.t. log-probabilities to one
// w.r.t. the logits that produced them.
func logSoftmaxBackward(logProbs, dLogProbs *mat.Dense) *mat.Dense {
	rows, cols := logProbs.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		lp := logProbs.RawRowView(r)
		dl := dLogProbs.RawRowView(r)
		dz := out.RawRowView(r)
		sum := floats.Sum(dl)
		for j := range dz {
			dz[j] = dl[j] - math.Exp(lp[j])*sum
		}
	}
	return out
}

// NLLLoss returns the mean negative log-likelihood of targets under
// logProbs and its gradient w.r.t. logProbs.
func NLLLoss(logProbs *mat.Dense, targets []int) (float64, *mat.Dense, error) {
	rows, cols := logProbs.Dims()
	if rows != len(targets) {
		return 0, nil, fmt.Errorf("%w: %d rows of log-probabilities for %d targets", ErrShapeMismatch, rows, len(targets))
	}
	grad := mat.NewDense(rows, cols, nil)
	scale := 1 / float64(rows)
	loss := 0.0
	for r, target := range targets {
		if target < 0 || target >= cols {
			return 0, nil, fmt.Errorf("%w: target %d outside [0, %d)", ErrShapeMismatch, target, cols)
		}
		loss -= logProbs.At(r, target)
		grad.Set(r, target, -scale)
	}
	return loss * scale, grad, nil
}

// Predictions returns the argmax class of each row.
func Predictions(logProbs *mat.Dense) []int {
	rows, _ := logProbs.Dims()
	out := make([]int, rows)
	for r := range out {
		out[r] = floats.MaxIdx(logProbs.RawRowView(r))
	}
	return out
}

// Accuracy is the percentage of rows whose argmax equals the target class
// index. The denominator is the number of targets, so partial batches are
// scored correctly.
func Accuracy(logProbs *mat.Dense, targets []int) float64 {
	if len(targets) == 0 {
		return 0
	}
	correct := 0
	for i, p := range Predictions(logProbs) {
		if i < len(targets) && p == targets[i] {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(targets))
}

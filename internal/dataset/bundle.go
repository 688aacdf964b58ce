package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Genres are the class labels, in one-hot column order.
var Genres = []string{
	"classical",
	"country",
	"disco",
	"hiphop",
	"jazz",
	"metal",
	"pop",
	"reggae",
}

// Split holds one partition of the feature data. X is [N, SeqLen*dim]
// with each row laid out time step major; Y is the one-hot [N, classes]
// label matrix.
type Split struct {
	X      *mat.Dense
	Y      *mat.Dense
	SeqLen int
}

// Len returns the number of examples.
func (s Split) Len() int {
	if s.X == nil {
		return 0
	}
	r, _ := s.X.Dims()
	return r
}

// FeatureDim returns the number of feature channels per time step.
func (s Split) FeatureDim() int {
	if s.X == nil || s.SeqLen == 0 {
		return 0
	}
	_, c := s.X.Dims()
	return c / s.SeqLen
}

// NumClasses returns the width of the label matrix.
func (s Split) NumClasses() int {
	if s.Y == nil {
		return 0
	}
	_, c := s.Y.Dims()
	return c
}

// XShape formats the feature tensor shape as (N, T, F).
func (s Split) XShape() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Len(), s.SeqLen, s.FeatureDim())
}

// YShape formats the label tensor shape as (N, C).
func (s Split) YShape() string {
	return fmt.Sprintf("(%d, %d)", s.Len(), s.NumClasses())
}

// Bundle is the complete, read-only set of feature splits for a run.
type Bundle struct {
	Train Split
	Dev   Split
	Test  Split
}

// ClassIndices converts one-hot label rows to class indices. Ties resolve
// to the first maximum.
func ClassIndices(y mat.Matrix) []int {
	rows, _ := y.Dims()
	out := make([]int, rows)
	for r := range out {
		out[r] = floats.MaxIdx(mat.Row(nil, r, y))
	}
	return out
}

// OneHot builds a one-hot label matrix from class indices.
func OneHot(labels []int, classes int) *mat.Dense {
	y := mat.NewDense(len(labels), classes, nil)
	for i, l := range labels {
		y.Set(i, l, 1)
	}
	return y
}

func (s Split) validate(name string, featureDim, classes int) error {
	if s.X == nil || s.Y == nil {
		return fmt.Errorf("%w: %s split is empty", ErrCacheCorrupt, name)
	}
	xr, xc := s.X.Dims()
	yr, yc := s.Y.Dims()
	if xr != yr {
		return fmt.Errorf("%w: %s has %d inputs but %d targets", ErrCacheCorrupt, name, xr, yr)
	}
	if yc != classes {
		return fmt.Errorf("%w: %s targets have %d classes, want %d", ErrCacheCorrupt, name, yc, classes)
	}
	if featureDim <= 0 || xc%featureDim != 0 {
		return fmt.Errorf("%w: %s inputs width %d is not a multiple of %d features", ErrCacheCorrupt, name, xc, featureDim)
	}
	return nil
}

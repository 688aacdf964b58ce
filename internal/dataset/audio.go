package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Split directories under the raw audio root.
const (
	TrainDir      = "_train"
	ValidationDir = "_validation"
	TestDir       = "_test"
)

// ErrUnsupportedAudio is returned for files the WAV decoder rejects.
var ErrUnsupportedAudio = errors.New("dataset: unsupported audio file")

// AudioExtractor rebuilds the feature bundle from WAV tracks laid out as
// <RawDir>/{_train,_validation,_test}/<genre>.<n>.wav.
type AudioExtractor struct {
	RawDir     string
	Genres     []string
	SeqLen     int
	NumWorkers int
	Seed       int64
	Logger     logrus.FieldLogger
}

// Extract decodes and analyzes every track, then z-score normalizes each
// feature channel with statistics from the training split.
func (e AudioExtractor) Extract(ctx context.Context) (Bundle, error) {
	if e.Logger == nil {
		e.Logger = logrus.StandardLogger()
	}
	if len(e.Genres) == 0 {
		e.Genres = Genres
	}
	if e.SeqLen <= 0 {
		e.SeqLen = TimeseriesLength
	}
	rng := rand.New(rand.NewSource(e.Seed))

	var b Bundle
	for _, s := range []struct {
		dir   string
		split *Split
	}{
		{TrainDir, &b.Train},
		{ValidationDir, &b.Dev},
		{TestDir, &b.Test},
	} {
		split, err := e.extractSplit(ctx, filepath.Join(e.RawDir, s.dir), rng)
		if err != nil {
			return Bundle{}, err
		}
		*s.split = split
	}

	norm := FitNormalizer(b.Train)
	for _, s := range []*Split{&b.Train, &b.Dev, &b.Test} {
		norm.Apply(*s)
	}
	return b, nil
}

func (e AudioExtractor) extractSplit(ctx context.Context, dir string, rng *rand.Rand) (Split, error) {
	paths, err := DiscoverTracks(dir)
	if err != nil {
		return Split{}, err
	}
	byGenre := GroupByGenre(paths, e.Genres)
	index := make(map[string]int, len(e.Genres))
	for i, g := range e.Genres {
		index[g] = i
	}

	order := buildRoundRobinOrder(byGenre, rng)
	if len(order) == 0 {
		return Split{}, fmt.Errorf("no tracks for %v under %s", e.Genres, dir)
	}
	tracks := make([]Track, len(order))
	for i, entry := range order {
		tracks[i] = Track{Path: entry.path, Label: index[entry.root]}
	}
	shuffleTracks(tracks, rng)

	start := time.Now()
	results, err := ExtractAll(ctx, tracks, e.NumWorkers, func(path string) (*mat.Dense, error) {
		samples, rate, err := DecodeWAV(path)
		if err != nil {
			return nil, err
		}
		return NewAnalyzer(rate).Analyze(samples, e.SeqLen), nil
	})
	if err != nil {
		return Split{}, err
	}
	e.Logger.WithFields(logrus.Fields{
		"dir":     dir,
		"tracks":  len(results),
		"workers": e.NumWorkers,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("extracted features")

	x := mat.NewDense(len(results), e.SeqLen*FeatureDim, nil)
	labels := make([]int, len(results))
	for i, r := range results {
		copy(x.RawRowView(i), r.Features.RawMatrix().Data)
		labels[i] = r.Label
	}
	return Split{X: x, Y: OneHot(labels, len(e.Genres)), SeqLen: e.SeqLen}, nil
}

// DecodeWAV reads a PCM WAV file and returns mono samples in [-1, 1] and
// the sample rate.
func DecodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedAudio, filepath.Base(path))
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	channels := int(d.NumChans)
	if channels <= 0 {
		channels = 1
	}
	depth := int(d.BitDepth)
	if depth <= 0 {
		return nil, 0, fmt.Errorf("%w: %s has bit depth %d", ErrUnsupportedAudio, filepath.Base(path), depth)
	}
	scale := 1 / (math.Pow(2, float64(depth-1)) * float64(channels))

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		out[i] = float64(sum) * scale
	}
	return out, int(d.SampleRate), nil
}

// Normalizer holds per-channel mean and standard deviation.
type Normalizer struct {
	Mean []float64
	Std  []float64
}

// FitNormalizer computes channel statistics over every example and time
// step of s.
func FitNormalizer(s Split) Normalizer {
	dim := s.FeatureDim()
	n := Normalizer{Mean: make([]float64, dim), Std: make([]float64, dim)}
	values := make([]float64, 0, s.Len()*s.SeqLen)
	for f := 0; f < dim; f++ {
		values = values[:0]
		for i := 0; i < s.Len(); i++ {
			row := s.X.RawRowView(i)
			for t := 0; t < s.SeqLen; t++ {
				values = append(values, row[t*dim+f])
			}
		}
		mean, std := stat.MeanStdDev(values, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		n.Mean[f], n.Std[f] = mean, std
	}
	return n
}

// Apply normalizes s.X in place.
func (n Normalizer) Apply(s Split) {
	dim := len(n.Mean)
	for i := 0; i < s.Len(); i++ {
		row := s.X.RawRowView(i)
		for j := range row {
			f := j % dim
			row[j] = (row[j] - n.Mean[f]) / n.Std[f]
		}
	}
}

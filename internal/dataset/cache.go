package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// ErrCacheCorrupt indicates cached arrays could not be decoded or disagree
// on shape.
var ErrCacheCorrupt = errors.New("dataset: cache corrupt")

// Extractor regenerates every split from its raw source.
type Extractor interface {
	Extract(ctx context.Context) (Bundle, error)
}

// Paths are the six cache files, one input and one target array per split.
type Paths struct {
	TrainX string
	TrainY string
	DevX   string
	DevY   string
	TestX  string
	TestY  string
}

// CachePaths returns the cache file locations under dir.
func CachePaths(dir string) Paths {
	return Paths{
		TrainX: filepath.Join(dir, "data_train_input.npy"),
		TrainY: filepath.Join(dir, "data_train_target.npy"),
		DevX:   filepath.Join(dir, "data_validation_input.npy"),
		DevY:   filepath.Join(dir, "data_validation_target.npy"),
		TestX:  filepath.Join(dir, "data_test_input.npy"),
		TestY:  filepath.Join(dir, "data_test_target.npy"),
	}
}

// All lists the paths in a fixed order.
func (p Paths) All() []string {
	return []string{p.TrainX, p.TrainY, p.DevX, p.DevY, p.TestX, p.TestY}
}

// Complete reports whether every cache file exists.
func (p Paths) Complete() bool {
	for _, path := range p.All() {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// LoadOptions configures Load.
type LoadOptions struct {
	Dir        string
	FeatureDim int
	NumClasses int
	Extractor  Extractor
	Logger     logrus.FieldLogger
}

// Load returns the feature bundle, deserializing the cache when all six
// files exist and otherwise regenerating and rewriting all of them.
func Load(ctx context.Context, opts LoadOptions) (Bundle, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	paths := CachePaths(opts.Dir)
	if paths.Complete() {
		opts.Logger.Info("Preprocessed files exist, deserializing npy files")
		return Deserialize(paths, opts.FeatureDim, opts.NumClasses)
	}

	opts.Logger.Info("Preprocessing raw audio files")
	if opts.Extractor == nil {
		return Bundle{}, errors.New("dataset: cache incomplete and no extractor configured")
	}
	// A failed rewrite must leave the cache incomplete, never mixed.
	if err := removeCache(paths); err != nil {
		return Bundle{}, err
	}
	bundle, err := opts.Extractor.Extract(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("extract features: %w", err)
	}
	for name, s := range map[string]Split{"train": bundle.Train, "validation": bundle.Dev, "test": bundle.Test} {
		if err := s.validate(name, opts.FeatureDim, opts.NumClasses); err != nil {
			return Bundle{}, err
		}
	}
	if err := bundle.checkSeqLen(); err != nil {
		return Bundle{}, err
	}
	if err := Serialize(paths, bundle); err != nil {
		return Bundle{}, err
	}
	opts.Logger.WithField("dir", opts.Dir).Debug("cache written")
	return bundle, nil
}

// Deserialize reads the six cache files into a bundle.
func Deserialize(paths Paths, featureDim, classes int) (Bundle, error) {
	var b Bundle
	splits := []struct {
		name  string
		x, y  string
		split *Split
	}{
		{"train", paths.TrainX, paths.TrainY, &b.Train},
		{"validation", paths.DevX, paths.DevY, &b.Dev},
		{"test", paths.TestX, paths.TestY, &b.Test},
	}
	for _, s := range splits {
		x, err := readMatrix(s.x)
		if err != nil {
			return Bundle{}, err
		}
		y, err := readMatrix(s.y)
		if err != nil {
			return Bundle{}, err
		}
		*s.split = Split{X: x, Y: y}
		if err := s.split.validate(s.name, featureDim, classes); err != nil {
			return Bundle{}, err
		}
		_, xc := x.Dims()
		s.split.SeqLen = xc / featureDim
	}
	if err := b.checkSeqLen(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// checkSeqLen requires every split to share the training sequence length.
func (b Bundle) checkSeqLen() error {
	for _, s := range []struct {
		name string
		seq  int
	}{
		{"validation", b.Dev.SeqLen},
		{"test", b.Test.SeqLen},
	} {
		if s.seq != b.Train.SeqLen {
			return fmt.Errorf("%w: %s sequence length %d differs from train %d", ErrCacheCorrupt, s.name, s.seq, b.Train.SeqLen)
		}
	}
	return nil
}

// Serialize writes all six cache files. Every file is first written to a
// temporary name; the renames into place happen only once all six writes
// have succeeded.
func Serialize(paths Paths, b Bundle) error {
	if err := os.MkdirAll(filepath.Dir(paths.TrainX), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	files := []struct {
		path string
		m    *mat.Dense
	}{
		{paths.TrainX, b.Train.X},
		{paths.TrainY, b.Train.Y},
		{paths.DevX, b.Dev.X},
		{paths.DevY, b.Dev.Y},
		{paths.TestX, b.Test.X},
		{paths.TestY, b.Test.Y},
	}
	written := make([]string, 0, len(files))
	cleanup := func() {
		for _, tmp := range written {
			os.Remove(tmp)
		}
	}
	for _, f := range files {
		tmp, err := writeTemp(f.path, f.m)
		if err != nil {
			cleanup()
			return err
		}
		written = append(written, tmp)
	}
	for i, f := range files {
		if err := os.Rename(written[i], f.path); err != nil {
			cleanup()
			removeCache(paths)
			return fmt.Errorf("rename %s: %w", f.path, err)
		}
	}
	return nil
}

// removeCache deletes whichever of the six cache files exist.
func removeCache(paths Paths) error {
	for _, p := range paths.All() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale cache %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func readMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, filepath.Base(path), err)
	}
	return &m, nil
}

// writeTemp encodes m next to path and returns the temporary file name.
func writeTemp(path string, m *mat.Dense) (string, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", tmp, err)
	}
	return tmp, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
	"github.com/sirupsen/logrus"

	"genre-lstm/internal/config"
	"genre-lstm/internal/dataset"
	"genre-lstm/internal/trainer"
)

// Split sizes for the synthetic source; 420 training examples is 12 batches of 35.
const (
	syntheticTrain  = 420
	syntheticDev    = 60
	syntheticTest   = 60
	syntheticSeqLen = 32
)

func main() {
	cfgPath := flag.String("config", "configs/genre.yaml", "Path to YAML config")
	cacheDir := flag.String("cache-dir", "", "Override feature cache directory")
	rawDir := flag.String("raw-dir", "", "Override raw audio root")
	source := flag.String("source", "", "Feature source: audio or synthetic")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	hiddenDim := flag.Int("hidden-dim", 0, "LSTM hidden width")
	numLayers := flag.Int("num-layers", 0, "Number of stacked LSTM layers")
	lr := flag.Float64("lr", 0, "Adam learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed")
	numWorkers := flag.Int("num-workers", 0, "Number of feature extraction workers")
	keepRemainder := flag.Bool("keep-remainder", false, "Train on the final partial batch")
	logLevel := flag.String("log-level", "", "Log level")

	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logger.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		CacheDir:      *cacheDir,
		RawDir:        *rawDir,
		Source:        *source,
		Epochs:        *epochs,
		BatchSize:     *batchSize,
		HiddenDim:     *hiddenDim,
		NumLayers:     *numLayers,
		LearningRate:  *lr,
		Seed:          *seed,
		NumWorkers:    *numWorkers,
		KeepRemainder: *keepRemainder,
		LogLevel:      *logLevel,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatalf("invalid log level: %v", err)
	}
	logger.SetLevel(level)

	log := logger.WithField("run_id", uuid.NewString())
	log.WithFields(logrus.Fields{
		"cpu":    cpuid.CPU.BrandName,
		"cores":  cpuid.CPU.LogicalCores,
		"avx2":   cpuid.CPU.Supports(cpuid.AVX2),
		"fma3":   cpuid.CPU.Supports(cpuid.FMA3),
		"source": cfg.Source,
	}).Info("starting genre classifier training")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := newExtractor(cfg, log)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	bundle, err := dataset.Load(ctx, dataset.LoadOptions{
		Dir:        cfg.CacheDir,
		FeatureDim: cfg.InputDim,
		NumClasses: cfg.NumClasses,
		Extractor:  extractor,
		Logger:     log,
	})
	if err != nil {
		log.Fatalf("load features: %v", err)
	}

	printShapes(os.Stdout, bundle)

	runCfg := trainer.RunConfig{
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.BatchSize,
		HiddenDim:     cfg.HiddenDim,
		NumLayers:     cfg.NumLayers,
		LearningRate:  cfg.LearningRate,
		Seed:          cfg.Seed,
		KeepRemainder: cfg.KeepRemainder,
		Out:           os.Stdout,
		Logger:        log,
	}

	if _, err := trainer.Run(ctx, runCfg, bundle.Train); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

// printShapes writes the tensor shape report as plain console lines.
func printShapes(w io.Writer, b dataset.Bundle) {
	fmt.Fprintf(w, "Training X shape: %s\n", b.Train.XShape())
	fmt.Fprintf(w, "Training Y shape: %s\n", b.Train.YShape())
	fmt.Fprintf(w, "Test X shape: %s\n", b.Test.XShape())
	fmt.Fprintf(w, "Test Y shape: %s\n", b.Test.YShape())
}

func newExtractor(cfg *config.Config, log logrus.FieldLogger) (dataset.Extractor, error) {
	if cfg.Source == config.SourceSynthetic {
		return dataset.SyntheticExtractor{
			TrainSize:  syntheticTrain,
			DevSize:    syntheticDev,
			TestSize:   syntheticTest,
			SeqLen:     syntheticSeqLen,
			FeatureDim: cfg.InputDim,
			NumClasses: cfg.NumClasses,
			Seed:       cfg.Seed,
		}, nil
	}
	if cfg.NumClasses > len(dataset.Genres) {
		return nil, fmt.Errorf("audio source knows %d genres, num_classes is %d", len(dataset.Genres), cfg.NumClasses)
	}
	if cfg.InputDim != dataset.FeatureDim {
		return nil, fmt.Errorf("audio source produces %d features, input_dim is %d", dataset.FeatureDim, cfg.InputDim)
	}
	return dataset.AudioExtractor{
		RawDir:     cfg.RawDir,
		Genres:     dataset.Genres[:cfg.NumClasses],
		SeqLen:     dataset.TimeseriesLength,
		NumWorkers: cfg.NumWorkers,
		Seed:       cfg.Seed,
		Logger:     log,
	}, nil
}

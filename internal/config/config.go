package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Feature sources understood by the loader.
const (
	SourceAudio     = "audio"
	SourceSynthetic = "synthetic"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	CacheDir      string  `yaml:"cache_dir"`
	RawDir        string  `yaml:"raw_dir"`
	Source        string  `yaml:"source"`
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	InputDim      int     `yaml:"input_dim"`
	HiddenDim     int     `yaml:"hidden_dim"`
	NumLayers     int     `yaml:"num_layers"`
	NumClasses    int     `yaml:"num_classes"`
	LearningRate  float64 `yaml:"learning_rate"`
	NumWorkers    int     `yaml:"num_workers"`
	Seed          int64   `yaml:"seed"`
	KeepRemainder bool    `yaml:"keep_remainder"`
	LogLevel      string  `yaml:"log_level"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	CacheDir      string
	RawDir        string
	Source        string
	Epochs        int
	BatchSize     int
	HiddenDim     int
	NumLayers     int
	LearningRate  float64
	NumWorkers    int
	Seed          int64
	KeepRemainder bool
	LogLevel      string
}

// Default returns the configuration of the reference training run.
func Default() *Config {
	return &Config{
		CacheDir:     "gtzan",
		RawDir:       "gtzan",
		Source:       SourceAudio,
		Epochs:       400,
		BatchSize:    35,
		InputDim:     33,
		HiddenDim:    128,
		NumLayers:    2,
		NumClasses:   8,
		LearningRate: 0.001,
		NumWorkers:   4,
		Seed:         1,
		LogLevel:     "info",
	}
}

// Load reads and validates a Config from YAML. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.CacheDir != "" {
		c.CacheDir = o.CacheDir
	}
	if o.RawDir != "" {
		c.RawDir = o.RawDir
	}
	if o.Source != "" {
		c.Source = o.Source
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.HiddenDim > 0 {
		c.HiddenDim = o.HiddenDim
	}
	if o.NumLayers > 0 {
		c.NumLayers = o.NumLayers
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.KeepRemainder {
		c.KeepRemainder = true
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.CacheDir == "" {
		return errors.New("cache_dir must be set")
	}
	switch c.Source {
	case SourceAudio:
		if c.RawDir == "" {
			return errors.New("raw_dir must be set for the audio source")
		}
	case SourceSynthetic:
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.InputDim <= 0 {
		return fmt.Errorf("input_dim must be > 0 (got %d)", c.InputDim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("hidden_dim must be > 0 (got %d)", c.HiddenDim)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("num_layers must be > 0 (got %d)", c.NumLayers)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("num_classes must be >= 2 (got %d)", c.NumClasses)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

package main

import (
	"bytes"
	"context"
	"testing"

	"genre-lstm/internal/config"
	"genre-lstm/internal/dataset"
)

func TestPrintShapesWritesPlainLines(t *testing.T) {
	b, err := dataset.SyntheticExtractor{
		TrainSize:  6,
		DevSize:    2,
		TestSize:   3,
		SeqLen:     4,
		FeatureDim: dataset.FeatureDim,
		NumClasses: len(dataset.Genres),
		Seed:       1,
	}.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var buf bytes.Buffer
	printShapes(&buf, b)
	want := "Training X shape: (6, 4, 33)\n" +
		"Training Y shape: (6, 8)\n" +
		"Test X shape: (3, 4, 33)\n" +
		"Test Y shape: (3, 8)\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestNewExtractorRejectsTooManyClasses(t *testing.T) {
	cfg := config.Default()
	cfg.NumClasses = len(dataset.Genres) + 1
	if _, err := newExtractor(cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}

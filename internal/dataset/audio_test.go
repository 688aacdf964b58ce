package dataset

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

func writeWAV(t *testing.T, path string, samples []float64, rate int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(s * 32767))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
}

func TestDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jazz.00000.wav")
	want := tone(440, 8000, 4000)
	writeWAV(t, path, want, 8000)

	got, rate, err := DecodeWAV(path)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 8000 || len(got) != len(want) {
		t.Fatalf("rate=%d len=%d", rate, len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-3 {
			t.Fatalf("sample %d: got %f want %f", i, got[i], want[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pop.00000.wav")
	if err := os.WriteFile(path, []byte("definitely not riff"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := DecodeWAV(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestAudioExtractorBuildsNormalizedBundle(t *testing.T) {
	root := t.TempDir()
	const rate = 8000
	genres := []string{"jazz", "pop"}
	freqs := map[string]float64{"jazz": 220, "pop": 1760}
	for _, dir := range []string{TrainDir, ValidationDir, TestDir} {
		for _, g := range genres {
			for i := 0; i < 2; i++ {
				name := fmt.Sprintf("%s.%05d.wav", g, i)
				writeWAV(t, filepath.Join(root, dir, name), tone(freqs[g]*(1+0.1*float64(i)), rate, FrameSize+4*HopLength), rate)
			}
		}
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	b, err := AudioExtractor{
		RawDir:     root,
		Genres:     genres,
		SeqLen:     4,
		NumWorkers: 3,
		Seed:       1,
		Logger:     logger,
	}.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if b.Train.XShape() != "(4, 4, 33)" || b.Test.YShape() != "(4, 2)" {
		t.Fatalf("unexpected shapes %s %s", b.Train.XShape(), b.Test.YShape())
	}
	counts := make([]int, len(genres))
	for _, l := range ClassIndices(b.Train.Y) {
		counts[l]++
	}
	if counts[0] != 2 || counts[1] != 2 {
		t.Fatalf("expected two tracks per genre, got %v", counts)
	}

	norm := FitNormalizer(b.Train)
	for f := range norm.Mean {
		if math.Abs(norm.Mean[f]) > 1e-9 {
			t.Fatalf("channel %d mean %g after normalization", f, norm.Mean[f])
		}
	}
}

func TestAudioExtractorMissingSplit(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, TrainDir, "jazz.00000.wav"), tone(220, 8000, FrameSize), 8000)
	_, err := AudioExtractor{RawDir: root, Genres: []string{"jazz"}, SeqLen: 2}.Extract(context.Background())
	if err == nil {
		t.Fatal("expected error for missing validation split")
	}
}

package metrics

import "time"

// Window accumulates loss, accuracy and timing across the batches of one
// epoch.
type Window struct {
	batches  int
	samples  int
	loss     float64
	accuracy float64
	data     time.Duration
	compute  time.Duration
}

// Record adds a new batch measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss, accuracy float64) {
	w.batches++
	w.samples += batchSize
	w.loss += loss
	w.accuracy += accuracy
	w.data += dataTime
	w.compute += computeTime
}

// Snapshot returns aggregated metrics and resets the window. Loss and
// accuracy are averaged over batches.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Batches: w.batches}
	total := w.data + w.compute
	if total > 0 {
		snap.SamplesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.batches > 0 {
		snap.MeanLoss = w.loss / float64(w.batches)
		snap.MeanAccuracy = w.accuracy / float64(w.batches)
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.batches)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.batches)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Batches       int
	MeanLoss      float64
	MeanAccuracy  float64
	SamplesPerSec float64
	AvgDataMS     float64
	AvgComputeMS  float64
}

package dataset

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ExtractFunc turns one track into a [seq_len, feature_dim] matrix.
type ExtractFunc func(path string) (*mat.Dense, error)

// Track is a labelled track, the unit of work for the extraction pool.
type Track struct {
	Path  string
	Label int
}

// TrackFeatures pairs a track with its extracted features.
type TrackFeatures struct {
	Track
	Features *mat.Dense
}

// ExtractAll runs fn over tracks on numWorkers goroutines and returns the
// results in input order. The first error cancels the remaining work.
func ExtractAll(parent context.Context, tracks []Track, numWorkers int, fn ExtractFunc) ([]TrackFeatures, error) {
	if len(tracks) == 0 {
		return nil, errors.New("extract: no tracks")
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan trackJob, numWorkers)
	results := make(chan trackResult, numWorkers*2)

	go produceJobs(ctx, jobs, tracks)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, fn)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return runAggregator(ctx, cancel, results, tracks)
}

type trackJob struct {
	id    int
	track Track
}

type trackResult struct {
	id       int
	features *mat.Dense
	err      error
}

func produceJobs(ctx context.Context, jobs chan<- trackJob, tracks []Track) {
	defer close(jobs)
	for id, track := range tracks {
		select {
		case <-ctx.Done():
			return
		case jobs <- trackJob{id: id, track: track}:
		}
	}
}

func worker(ctx context.Context, jobs <-chan trackJob, results chan<- trackResult, fn ExtractFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			features, err := fn(job.track.Path)
			select {
			case <-ctx.Done():
				return
			case results <- trackResult{id: job.id, features: features, err: err}:
			}
		}
	}
}

// runAggregator reorders results by job id so output order does not depend
// on worker scheduling.
func runAggregator(ctx context.Context, cancel context.CancelFunc, results <-chan trackResult, tracks []Track) ([]TrackFeatures, error) {
	out := make([]TrackFeatures, 0, len(tracks))
	pending := make(map[int]*mat.Dense)
	var firstErr error
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = &TrackError{Path: tracks[res.id].Path, Err: res.err}
			cancel()
			continue
		}
		pending[res.id] = res.features
		for {
			features, ok := pending[len(out)]
			if !ok {
				break
			}
			delete(pending, len(out))
			out = append(out, TrackFeatures{Track: tracks[len(out)], Features: features})
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TrackError attributes an extraction failure to its file.
type TrackError struct {
	Path string
	Err  error
}

func (e *TrackError) Error() string {
	return "extract " + e.Path + ": " + e.Err.Error()
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

type orderEntry struct {
	root string
	path string
}

// buildRoundRobinOrder shuffles each group with rng and interleaves the
// groups one entry at a time, groups visited in sorted name order.
func buildRoundRobinOrder(roots map[string][]string, rng *rand.Rand) []orderEntry {
	rootNames := make([]string, 0, len(roots))
	copied := make(map[string][]string, len(roots))
	for root, shards := range roots {
		if len(shards) == 0 {
			continue
		}
		rootNames = append(rootNames, root)
		copied[root] = append([]string(nil), shards...)
	}
	sort.Strings(rootNames)
	if rng != nil {
		for _, root := range rootNames {
			s := copied[root]
			rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		}
	}
	var order []orderEntry
	for {
		advanced := false
		for _, root := range rootNames {
			shards := copied[root]
			if len(shards) == 0 {
				continue
			}
			order = append(order, orderEntry{root: root, path: shards[0]})
			copied[root] = shards[1:]
			advanced = true
		}
		if !advanced {
			break
		}
	}
	return order
}

// shuffleTracks permutes tracks in place so labels do not cycle through the
// genres in a fixed period.
func shuffleTracks(tracks []Track, rng *rand.Rand) {
	if rng == nil {
		return
	}
	rng.Shuffle(len(tracks), func(i, j int) { tracks[i], tracks[j] = tracks[j], tracks[i] })
}

package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
)

// Track files are named <genre>.<number>.wav, e.g. jazz.00042.wav.
var trackRegexp = regexp.MustCompile(`^([a-z]+)\.[0-9]+\.wav$`)

// DiscoverTracks returns paths to track files beneath root, sorted.
func DiscoverTracks(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if trackRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover tracks: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

// TrackGenre extracts the genre prefix from a track path.
func TrackGenre(path string) (string, bool) {
	m := trackRegexp.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// GroupByGenre buckets tracks by genre, keeping only the listed genres.
func GroupByGenre(tracks []string, genres []string) map[string][]string {
	keep := make(map[string]bool, len(genres))
	for _, g := range genres {
		keep[g] = true
	}
	result := make(map[string][]string, len(genres))
	for _, path := range tracks {
		genre, ok := TrackGenre(path)
		if !ok || !keep[genre] {
			continue
		}
		result[genre] = append(result[genre], path)
	}
	return result
}

// Package matcher pairs processed images that are byte-identical or
// visually similar.
//
// Matching runs in two phases over a stable snapshot of the processed pool.
// The exact phase groups records by content digest and pairs members of a
// bucket greedily, so every record takes part in at most one exact pair.
// The perceptual phase compares every remaining pair of perceptual hashes
// and keeps those whose similarity reaches the threshold; a record may show
// up in any number of perceptual pairs.
package matcher

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"photosweep/imageprocessor"
	"photosweep/logging"
	"photosweep/scoring"
	"photosweep/types"
)

// DefaultThreshold is the minimum similarity of a perceptual pair
const DefaultThreshold = 50

// Matcher holds the matching parameters
type Matcher struct {
	similarity scoring.Normalizer
	threshold  int
	workers    int
}

// New creates a Matcher. workers bounds the goroutines of the perceptual
// phase; values below one mean runtime.NumCPU().
func New(similarity scoring.Normalizer, threshold, workers int) *Matcher {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Matcher{
		similarity: similarity,
		threshold:  threshold,
		workers:    workers,
	}
}

// Match returns the exact pairs followed by the perceptual pairs. The output
// depends only on the order of records.
func (m *Matcher) Match(records []*types.ImageRecord) []types.SimilarPair {
	exact, matched := m.exactPairs(records)

	pool := make([]*types.ImageRecord, 0, len(records)-len(matched))
	for i, r := range records {
		if !matched[i] {
			pool = append(pool, r)
		}
	}

	perceptual := m.perceptualPairs(pool)
	logging.LogInfo("matching done: %d exact pairs, %d perceptual pairs from %d records",
		len(exact), len(perceptual), len(records))

	return append(exact, perceptual...)
}

// exactPairs groups records by digest. It returns the pairs and the set of
// indices that were paired.
func (m *Matcher) exactPairs(records []*types.ImageRecord) ([]types.SimilarPair, map[int]bool) {
	buckets := make(map[string][]int)
	var order []string
	for i, r := range records {
		if _, ok := buckets[r.ContentDigest]; !ok {
			order = append(order, r.ContentDigest)
		}
		buckets[r.ContentDigest] = append(buckets[r.ContentDigest], i)
	}

	pairs := []types.SimilarPair{}
	matched := make(map[int]bool)
	for _, digest := range order {
		idx := buckets[digest]
		// consecutive members pair up; an odd one out stays in the pool
		for k := 0; k+1 < len(idx); k += 2 {
			a, b := idx[k], idx[k+1]
			pairs = append(pairs, newPair(records[a], records[b], 100, types.MatchPhaseExact))
			matched[a] = true
			matched[b] = true
		}
	}
	return pairs, matched
}

// perceptualPairs compares all unordered pairs of pool. Rows run in
// parallel and are merged back in row order.
func (m *Matcher) perceptualPairs(pool []*types.ImageRecord) []types.SimilarPair {
	n := len(pool)
	if n < 2 {
		return []types.SimilarPair{}
	}

	rows := make([][]types.SimilarPair, n)
	semaphore := make(chan struct{}, m.workers)
	var wg sync.WaitGroup

	for i := 0; i < n-1; i++ {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()
			rows[i] = m.row(pool, i)
		}(i)
	}
	wg.Wait()

	pairs := []types.SimilarPair{}
	for _, row := range rows {
		pairs = append(pairs, row...)
	}
	return pairs
}

func (m *Matcher) row(pool []*types.ImageRecord, i int) []types.SimilarPair {
	var out []types.SimilarPair
	a := pool[i]
	for j := i + 1; j < len(pool); j++ {
		b := pool[j]
		distance, err := imageprocessor.HammingDistance(a.PerceptualHash, b.PerceptualHash)
		if err != nil {
			logging.DebugLog("skipping comparison %s / %s: %v", a.Path, b.Path, err)
			continue
		}
		similarity := m.similarity.ScoreInt(distance)
		if similarity >= m.threshold {
			out = append(out, newPair(a, b, similarity, types.MatchPhasePerceptual))
		}
	}
	return out
}

func newPair(a, b *types.ImageRecord, similarity int, phase types.MatchPhase) types.SimilarPair {
	return types.SimilarPair{
		ID:          fmt.Sprintf("sim_%s_%s_%s", phase, a.ID, b.ID),
		ID1:         a.ID,
		ID2:         b.ID,
		Filename1:   a.Filename,
		Path1:       a.Path,
		Resolution1: a.Resolution,
		SizeMB1:     a.SizeMB,
		Filename2:   b.Filename,
		Path2:       b.Path,
		Resolution2: b.Resolution,
		SizeMB2:     b.SizeMB,
		Similarity:  similarity,
		MatchPhase:  phase,
		Recommended: Recommend(a, b),
	}
}

// Recommend picks the side to keep: the newer modification time, then the
// larger size. A full tie keeps file1.
func Recommend(a, b *types.ImageRecord) types.Side {
	ta := a.ModifiedAt.Truncate(time.Second)
	tb := b.ModifiedAt.Truncate(time.Second)
	switch {
	case ta.After(tb):
		return types.SideFile1
	case tb.After(ta):
		return types.SideFile2
	case b.SizeMB > a.SizeMB:
		return types.SideFile2
	}
	return types.SideFile1
}

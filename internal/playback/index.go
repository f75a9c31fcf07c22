package playback

import (
	"sort"
)

// TemporalIndex is a read-only view over a track's samples: a parallel array
// of unix-nano instants supporting "latest sample at or before T" lookups by
// binary search. It is rebuilt whole whenever the track's samples change.
type TemporalIndex struct {
	samples  []PositionSample
	instants []int64
}

// BuildIndex filters samples with unparseable timestamps and builds the
// instants array for binary search. The backend contract says samples arrive
// in non-decreasing timestamp order; that is verified while filtering and
// repaired with a stable sort only if a violation is found, so the common
// path stays a single O(n) pass.
func BuildIndex(samples []PositionSample) *TemporalIndex {
	idx := &TemporalIndex{
		samples:  make([]PositionSample, 0, len(samples)),
		instants: make([]int64, 0, len(samples)),
	}

	sorted := true
	for _, s := range samples {
		ns, ok := s.Instant()
		if !ok {
			continue
		}
		if n := len(idx.instants); n > 0 && ns < idx.instants[n-1] {
			sorted = false
		}
		idx.samples = append(idx.samples, s)
		idx.instants = append(idx.instants, ns)
	}

	if !sorted {
		order := make([]int, len(idx.instants))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return idx.instants[order[a]] < idx.instants[order[b]]
		})
		samples := make([]PositionSample, len(order))
		instants := make([]int64, len(order))
		for i, j := range order {
			samples[i] = idx.samples[j]
			instants[i] = idx.instants[j]
		}
		idx.samples = samples
		idx.instants = instants
	}

	return idx
}

// Len returns the number of indexed samples.
func (idx *TemporalIndex) Len() int {
	return len(idx.instants)
}

// Instant returns the unix-nano instant of the i-th indexed sample.
func (idx *TemporalIndex) Instant(i int) int64 {
	return idx.instants[i]
}

// Sample returns the i-th indexed sample.
func (idx *TemporalIndex) Sample(i int) PositionSample {
	return idx.samples[i]
}

// QueryAtOrBefore returns the greatest index i with instants[i] <= t, or
// false when t precedes the first instant (or the index is empty). A query
// exactly on a sample's instant returns that sample.
func (idx *TemporalIndex) QueryAtOrBefore(t int64) (int, bool) {
	// sort.Search finds the first instant strictly after t; the answer is
	// the element before it.
	i := sort.Search(len(idx.instants), func(i int) bool {
		return idx.instants[i] > t
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// Span returns the first and last instants of the index. ok is false for an
// empty index.
func (idx *TemporalIndex) Span() (start, end int64, ok bool) {
	if len(idx.instants) == 0 {
		return 0, 0, false
	}
	return idx.instants[0], idx.instants[len(idx.instants)-1], true
}

// Last returns the final (most recent) indexed sample.
func (idx *TemporalIndex) Last() (PositionSample, bool) {
	if len(idx.samples) == 0 {
		return PositionSample{}, false
	}
	return idx.samples[len(idx.samples)-1], true
}

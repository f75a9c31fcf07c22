package playback

import "math"

// Downsample reduces an ordered sample sequence to at most maxPoints+1
// elements by taking every stride-th element from index 0, where stride is
// ceil(len/maxPoints). The final element of the input is always retained so
// the most recent position survives reduction. Input order is preserved and
// no samples are fabricated; output elements alias the input.
//
// Inputs at or under the budget are returned unchanged, which also makes the
// operation idempotent for a fixed budget.
func Downsample[T any](samples []T, maxPoints int) []T {
	if maxPoints < 1 || len(samples) <= maxPoints {
		return samples
	}

	stride := int(math.Ceil(float64(len(samples)) / float64(maxPoints)))

	out := make([]T, 0, maxPoints+1)
	for i := 0; i < len(samples); i += stride {
		out = append(out, samples[i])
	}

	// Keep the true tail: the last sample is the operationally relevant one.
	if (len(samples)-1)%stride != 0 {
		out = append(out, samples[len(samples)-1])
	}

	return out
}

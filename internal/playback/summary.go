package playback

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TrackSummary aggregates a loaded track for the dashboard's entity table.
// Speeds are derived from consecutive indexed samples in metres per second
// (map units are 1:1 metres).
type TrackSummary struct {
	EntityID     string  `json:"entity_id"`
	SampleCount  int     `json:"sample_count"`
	DurationSecs float64 `json:"duration_secs"`
	DistanceM    float64 `json:"distance_m"`
	AvgSpeedMps  float64 `json:"avg_speed_mps"`
	MaxSpeedMps  float64 `json:"max_speed_mps"`
	P85SpeedMps  float64 `json:"p85_speed_mps"`
}

// Summarize computes distance travelled and speed statistics for a track.
// Consecutive samples with zero or negative time delta contribute distance
// but no speed sample. ok is false for tracks with fewer than two indexed
// samples.
func Summarize(track *EntityTrack) (TrackSummary, bool) {
	if track == nil || track.Len() < 2 {
		return TrackSummary{}, false
	}
	idx := track.Index()

	sum := TrackSummary{
		EntityID:    track.EntityID,
		SampleCount: idx.Len(),
	}

	speeds := make([]float64, 0, idx.Len()-1)
	for i := 1; i < idx.Len(); i++ {
		a, b := idx.Sample(i-1), idx.Sample(i)
		d := math.Sqrt((b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y) + (b.Z-a.Z)*(b.Z-a.Z))
		sum.DistanceM += d

		dt := float64(idx.Instant(i)-idx.Instant(i-1)) / float64(time.Second)
		if dt <= 0 {
			continue
		}
		v := d / dt
		speeds = append(speeds, v)
		if v > sum.MaxSpeedMps {
			sum.MaxSpeedMps = v
		}
	}

	start, end, _ := idx.Span()
	sum.DurationSecs = float64(end-start) / float64(time.Second)

	if len(speeds) > 0 {
		sum.AvgSpeedMps = stat.Mean(speeds, nil)
		sort.Float64s(speeds)
		sum.P85SpeedMps = stat.Quantile(0.85, stat.Empirical, speeds, nil)
	}

	return sum, true
}
